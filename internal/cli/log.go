package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log [task-id]",
	Short: "Show the activity log for a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	s, _, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	// Deleted tasks keep their log, so fall back to the raw argument.
	id, err := resolveTaskID(ctx, s, args[0])
	if err != nil {
		id = args[0]
	}

	events, err := s.GetEvents(ctx, id)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Printf("No events for task %s\n", args[0])
		return nil
	}

	fmt.Printf("Events for task %s:\n\n", id)
	for _, e := range events {
		fmt.Printf("  %s  %s%-8s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), actorLabel(e.Actor), e.Type, e.Content)
	}
	return nil
}
