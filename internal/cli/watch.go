package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imkarma/laneboard/internal/board"
	"github.com/imkarma/laneboard/internal/notify"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the team's board as changes are published",
	Long: "Subscribes to the team's Redis channel and keeps a local copy of the\n" +
		"board in step with every published change. Requires redis.url.",
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, cfg, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if cfg.Redis.URL == "" {
		return fmt.Errorf("redis.url is not set in %s", workPath("config.yaml"))
	}
	rc, err := notify.NewRedisClient(cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer rc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := newEngine(s)
	b, err := engine.Board(ctx, flagTeam)
	if err != nil {
		return err
	}
	fmt.Printf("Watching %s%s%s at v%d (Ctrl+C to stop)\n", colorBold, flagTeam, colorReset, b.Version)

	var mu sync.Mutex
	notify.Subscribe(ctx, rc, cfg.Redis.ChannelPrefix, flagTeam, log.StandardLogger(), func(ev notify.Event) {
		mu.Lock()
		defer mu.Unlock()

		switch b.Apply(ev.Change) {
		case board.Stale:
			log.WithField("version", ev.Change.Version).Debug("skipping stale change set")
			return
		case board.Gap:
			// Missed at least one change set; start over from the database.
			fresh, err := engine.Board(ctx, flagTeam)
			if err != nil {
				log.WithError(err).Error("unable to reload board")
				return
			}
			b = fresh
		}
		printChange(ev, b)
	})
	return nil
}

func printChange(ev notify.Event, b board.Board) {
	ts := time.Now().Format("15:04:05")
	desc := ""
	if len(ev.Change.Tasks) > 0 {
		t := ev.Change.Tasks[0]
		desc = fmt.Sprintf("%s %s#%d %s", shortID(t.ID), t.Status, t.Index, truncate(t.Description, 40))
	} else if ev.Change.Removed != "" {
		desc = shortID(ev.Change.Removed)
	}

	counts := ""
	for _, c := range columns {
		counts += fmt.Sprintf(" %s%d%s", c.color, len(b.Lane(c.status)), colorReset)
	}
	fmt.Printf("%s%s%s %-13s %s  %sv%d%s%s\n", colorDim, ts, colorReset, ev.Type, desc, colorDim, b.Version, colorReset, counts)
}
