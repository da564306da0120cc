package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/store"
	"github.com/imkarma/laneboard/internal/worker"
)

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return l
}

func startRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})
	return m, client
}

func change(team string, version int64, ids ...string) board.ChangedTasks {
	c := board.ChangedTasks{TeamID: team, Version: version}
	for i, id := range ids {
		c.Tasks = append(c.Tasks, store.Task{ID: id, TeamID: team, Status: store.StatusActive, Index: i})
	}
	return c
}

func TestChannel(t *testing.T) {
	if got := Channel("acme", "team-1"); got != "acme:board:team-1" {
		t.Fatalf("unexpected channel %q", got)
	}
	if got := Channel("", "team-1"); got != "laneboard:board:team-1" {
		t.Fatalf("expected default prefix, got %q", got)
	}
}

func TestDispatch_DeliversToEverySink(t *testing.T) {
	var mu sync.Mutex
	got := map[string]Event{}
	record := func(name string) Sink {
		return FuncSink{ID: name, Fn: func(_ context.Context, ev Event) error {
			mu.Lock()
			defer mu.Unlock()
			got[name] = ev
			return nil
		}}
	}

	f := NewFanout(worker.NewPool(worker.PoolConfig{MaxWorkers: 3}), quietLogger(),
		record("a"), record("b"), record("c"))

	results := f.Dispatch(context.Background(), EventUpdate, change("team-1", 7, "t1", "t2"))
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if len(got) != 3 {
		t.Fatalf("expected every sink to receive the event, got %v", got)
	}
	for name, ev := range got {
		if ev.Type != EventUpdate || ev.Change.Version != 7 || len(ev.Change.Tasks) != 2 {
			t.Errorf("sink %s got unexpected event %+v", name, ev)
		}
	}
}

func TestDispatch_FailingSinkDoesNotBlockOthers(t *testing.T) {
	delivered := false
	f := NewFanout(worker.NewPool(worker.PoolConfig{MaxWorkers: 2}), quietLogger(),
		FuncSink{ID: "broken", Fn: func(context.Context, Event) error { return errors.New("socket closed") }},
		FuncSink{ID: "ok", Fn: func(context.Context, Event) error { delivered = true; return nil }},
	)

	results := f.Dispatch(context.Background(), EventCreate, change("team-1", 1, "t1"))
	if !delivered {
		t.Fatal("expected healthy sink to receive the event")
	}
	failed := worker.Failed(results)
	if len(failed) != 1 || failed[0].Name != "broken" {
		t.Fatalf("expected only broken sink to fail, got %+v", failed)
	}
}

func TestDispatch_SkipsEmptyChange(t *testing.T) {
	called := false
	f := NewFanout(nil, quietLogger(), FuncSink{ID: "s", Fn: func(context.Context, Event) error {
		called = true
		return nil
	}})

	if results := f.Dispatch(context.Background(), EventUpdate, board.ChangedTasks{TeamID: "team-1"}); results != nil {
		t.Fatalf("expected no results, got %v", results)
	}
	if called {
		t.Fatal("empty change set must not be delivered")
	}

	var nilFanout *Fanout
	if results := nilFanout.Dispatch(context.Background(), EventUpdate, change("team-1", 1, "t1")); results != nil {
		t.Fatalf("nil fanout should be a no-op, got %v", results)
	}
}

func TestRedisSink_Publishes(t *testing.T) {
	m, client := startRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, Channel("test", "team-1"))
	t.Cleanup(func() { sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sink := NewRedisSink(client, "test")
	if err := sink.Deliver(ctx, Event{Type: EventDelete, Change: board.ChangedTasks{TeamID: "team-1", Version: 3, Removed: "t9"}}); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if msg.Channel != "test:board:team-1" {
			t.Errorf("unexpected channel %q", msg.Channel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}

	// Other teams' channels stay quiet.
	if n := m.PubSubNumSub("test:board:team-2")["test:board:team-2"]; n != 0 {
		t.Errorf("expected no subscribers on team-2, got %d", n)
	}
}

func TestSubscribe_ReceivesEvents(t *testing.T) {
	m, client := startRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		Subscribe(ctx, client, "test", "team-1", quietLogger(), func(ev Event) { events <- ev })
	}()

	channel := Channel("test", "team-1")
	deadline := time.Now().Add(2 * time.Second)
	for m.PubSubNumSub(channel)[channel] == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never attached")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Garbage on the channel is skipped.
	m.Publish(channel, "not json")

	f := NewFanout(nil, quietLogger(), NewRedisSink(client, "test"))
	f.Dispatch(ctx, EventUpdate, change("team-1", 5, "t1"))

	select {
	case ev := <-events:
		if ev.Type != EventUpdate || ev.Change.Version != 5 || ev.Change.Tasks[0].ID != "t1" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
}

func TestNewRedisClient(t *testing.T) {
	m, _ := startRedis(t)

	rc, err := NewRedisClient(m.Addr())
	if err != nil {
		t.Fatalf("bare address: %v", err)
	}
	defer rc.Close()
	if err := rc.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	rc2, err := NewRedisClient("redis://" + m.Addr() + "/0")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	rc2.Close()

	if _, err := NewRedisClient("redis://localhost:6379/notanumber"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}
