package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/store"
	"github.com/imkarma/laneboard/internal/worker"
)

var (
	stressTasks   int
	stressMoves   int
	stressWorkers int
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Hammer a scratch board with concurrent moves, then verify it",
	Long: "Creates a scratch team, fills it with tasks and runs random moves from\n" +
		"several workers at once. Conflicting moves are retried once; the board\n" +
		"is verified at the end.",
	RunE: runStress,
}

func init() {
	stressCmd.Flags().IntVar(&stressTasks, "tasks", 20, "Tasks to create")
	stressCmd.Flags().IntVar(&stressMoves, "moves", 200, "Moves to run")
	stressCmd.Flags().IntVar(&stressWorkers, "workers", 8, "Concurrent movers")
}

func runStress(cmd *cobra.Command, args []string) error {
	if stressTasks < 1 || stressMoves < 0 {
		return fmt.Errorf("--tasks must be positive and --moves non-negative")
	}

	s, _, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := board.WithActor(context.Background(), "stress")
	engine := newEngine(s)
	team := "stress-" + uuid.NewString()[:8]

	today := time.Now().UTC().Truncate(24 * time.Hour)
	ids := make([]string, 0, stressTasks)
	for i := 0; i < stressTasks; i++ {
		res, err := engine.Create(ctx, board.NewTask{
			TeamID:      team,
			Status:      store.Statuses[i%len(store.Statuses)],
			Date:        today,
			DueDate:     today.AddDate(0, 0, 7),
			Description: fmt.Sprintf("stress task %d", i),
		})
		if err != nil {
			return err
		}
		ids = append(ids, res.Tasks[0].ID)
	}

	var moved, noops, conflicts atomic.Int64
	jobs := make([]worker.Job, stressMoves)
	for i := range jobs {
		jobs[i] = worker.Job{
			Name: fmt.Sprintf("move-%d", i),
			Run: func(ctx context.Context) error {
				id := ids[rand.IntN(len(ids))]
				status := store.Statuses[rand.IntN(len(store.Statuses))]
				// Overshoot the lane now and then to exercise clamping.
				index := rand.IntN(stressTasks + 2)
				res, err := board.Retry(ctx, func(ctx context.Context) (board.ChangedTasks, error) {
					return engine.Move(ctx, id, status, index)
				})
				switch {
				case errors.Is(err, store.ErrConcurrencyConflict):
					conflicts.Add(1)
					return nil
				case err != nil:
					return err
				case res.Empty():
					noops.Add(1)
				default:
					moved.Add(1)
				}
				return nil
			},
		}
	}

	start := time.Now()
	pool := worker.NewPool(worker.PoolConfig{MaxWorkers: stressWorkers})
	failed := worker.Failed(pool.Run(ctx, jobs))
	elapsed := time.Since(start)

	fmt.Printf("Team %s%s%s: %d tasks, %d moves with %d workers in %s\n",
		colorBold, team, colorReset, stressTasks, stressMoves, stressWorkers, elapsed.Round(time.Millisecond))
	fmt.Printf("  moved %d, no-op %d, conflicts %d, errors %d\n", moved.Load(), noops.Load(), conflicts.Load(), len(failed))
	for _, r := range failed {
		fmt.Printf("  %s✗ %s: %v%s\n", colorRed, r.Name, r.Error, colorReset)
	}

	violations, err := engine.Verify(ctx, team)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Printf("  %s%s%s\n", colorRed, v, colorReset)
		}
		return fmt.Errorf("board %s is inconsistent after stress run", team)
	}
	fmt.Printf("  %s✓ board verified%s\n", colorGreen, colorReset)
	if len(failed) > 0 {
		return fmt.Errorf("%d move(s) failed", len(failed))
	}
	return nil
}
