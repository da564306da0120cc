package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/config"
	"github.com/imkarma/laneboard/internal/notify"
	"github.com/imkarma/laneboard/internal/store"
	"github.com/imkarma/laneboard/internal/worker"
)

const workDirName = ".laneboard"

// workPath returns the path to a file inside .laneboard/.
func workPath(parts ...string) string {
	elems := append([]string{workDirName}, parts...)
	return filepath.Join(elems...)
}

// loadConfig reads .laneboard/config.yaml.
func loadConfig() (*config.Config, error) {
	cfgPath := workPath("config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("laneboard not initialized. Run: laneboard init")
	}
	return config.Load(cfgPath)
}

// mustStore opens the configured store, returning an error if laneboard is
// not initialized.
func mustStore() (*store.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if _, err := os.Stat(cfg.Database); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("database %s missing. Run: laneboard init", cfg.Database)
	}
	s, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

// openStore opens or creates the SQLite store the config points at.
func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.Database, store.Options{BusyTimeout: cfg.BusyTimeout()})
}

func newEngine(s *store.Store) *board.Engine {
	return board.New(s, board.WithLogger(log.StandardLogger()))
}

// newFanout builds the fanout for cfg. The Redis sink is only added when a
// URL is configured, plus one sink per webhook; the log sink is always present. The returned func
// releases the Redis client.
func newFanout(cfg *config.Config) (*notify.Fanout, func(), error) {
	logger := log.StandardLogger()
	sinks := []notify.Sink{notify.LogSink{Log: logger}}
	cleanup := func() {}

	if cfg.Redis.URL != "" {
		rc, err := notify.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, notify.NewRedisSink(rc, cfg.Redis.ChannelPrefix))
		cleanup = func() { _ = rc.Close() }
	}
	for _, w := range cfg.Webhooks {
		sinks = append(sinks, notify.NewWebhookSink(w.Name, w.URL, w.Token(), nil))
	}

	pool := worker.NewPool(worker.PoolConfig{
		MaxWorkers: cfg.Fanout.Workers,
		Timeout:    cfg.Fanout.DeliveryTimeout(),
	})
	return notify.NewFanout(pool, logger, sinks...), cleanup, nil
}

// resolveTaskID accepts a full task id or a unique prefix of one, as shown
// by `laneboard board`.
func resolveTaskID(ctx context.Context, s *store.Store, arg string) (string, error) {
	if _, err := s.GetTask(ctx, arg); err == nil {
		return arg, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}

	tasks, err := s.ListTasks(ctx, "")
	if err != nil {
		return "", err
	}
	var matches []string
	for _, t := range tasks {
		if strings.HasPrefix(t.ID, arg) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("task %s: %w", arg, store.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("task id prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func parseStatus(arg string) (store.TaskStatus, error) {
	s := store.TaskStatus(strings.ToLower(arg))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q (want one of active, ongoing, review, finished)", arg)
	}
	return s, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func actor() string {
	if v := os.Getenv("LANEBOARD_MEMBER"); v != "" {
		return v
	}
	return os.Getenv("USER")
}

func commandContext() context.Context {
	return board.WithActor(context.Background(), actor())
}
