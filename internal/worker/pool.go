// Package worker runs independent jobs in parallel with a bounded number of
// goroutines. laneboard uses it to deliver change sets to every fanout sink
// at once and to drive concurrent moves in the stress command.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job is one unit of work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result holds the outcome of a single job.
type Result struct {
	Name     string
	Duration time.Duration
	Error    error
}

// Pool manages parallel job execution.
type Pool struct {
	maxWorkers int
	timeout    time.Duration
}

// PoolConfig holds configuration for creating a worker pool.
type PoolConfig struct {
	MaxWorkers int
	// Timeout bounds each job. Zero means no per-job timeout.
	Timeout time.Duration
}

// NewPool creates a new worker pool.
func NewPool(pc PoolConfig) *Pool {
	if pc.MaxWorkers < 1 {
		pc.MaxWorkers = 1
	}
	return &Pool{
		maxWorkers: pc.MaxWorkers,
		timeout:    pc.Timeout,
	}
}

// Run executes all jobs (up to maxWorkers at a time) and returns their
// results in job order.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	if p.maxWorkers <= 1 || len(jobs) <= 1 {
		return p.runSequential(ctx, jobs)
	}
	return p.runParallel(ctx, jobs)
}

func (p *Pool) runSequential(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, p.execute(ctx, job))
	}
	return results
}

func (p *Pool) runParallel(ctx context.Context, jobs []Job) []Result {
	sem := make(chan struct{}, p.maxWorkers)
	var wg sync.WaitGroup

	results := make([]Result, len(jobs))

	for i, job := range jobs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i] = Result{Name: job.Name, Error: ctx.Err()}
			continue
		}

		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.execute(ctx, job)
		}(i, job)
	}

	wg.Wait()
	return results
}

func (p *Pool) execute(ctx context.Context, job Job) (r Result) {
	start := time.Now()
	r.Name = job.Name
	defer func() {
		if rec := recover(); rec != nil {
			r.Error = fmt.Errorf("job %s panicked: %v", job.Name, rec)
		}
		r.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		r.Error = err
		return r
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	r.Error = job.Run(ctx)
	return r
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Error != nil {
			out = append(out, r)
		}
	}
	return out
}
