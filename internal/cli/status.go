package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imkarma/laneboard/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Quick overview of every team",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, _, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	teams, err := s.Teams(ctx)
	if err != nil {
		return err
	}

	if len(teams) == 0 {
		fmt.Printf("No tasks. Run: %slaneboard task create \"description\"%s\n", colorCyan, colorReset)
		return nil
	}

	for _, team := range teams {
		tasks, version, err := s.ListTeam(ctx, team)
		if err != nil {
			return err
		}
		counts := map[store.TaskStatus]int{}
		for _, t := range tasks {
			counts[t.Status]++
		}

		fmt.Printf("%s%s%s: %d tasks %s(v%d)%s\n", colorBold, team, colorReset, len(tasks), colorDim, version, colorReset)
		for _, c := range columns {
			fmt.Printf("  %-10s %s%d%s\n", string(c.status)+":", c.color, counts[c.status], colorReset)
		}
	}
	return nil
}
