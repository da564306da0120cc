package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var verifyAll bool

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that lanes are dense and lifecycle stamps are ordered",
	Long: "Walks every lane of the team (or of every team with --all) and reports\n" +
		"gaps, duplicate positions and lifecycle timestamps that run backwards.\n" +
		"Exits non-zero when anything is wrong.",
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "Verify every team in the database")
}

func runVerify(cmd *cobra.Command, args []string) error {
	s, _, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := context.Background()
	teams := []string{flagTeam}
	if verifyAll {
		if teams, err = s.Teams(ctx); err != nil {
			return err
		}
	}

	engine := newEngine(s)
	problems := 0
	for _, team := range teams {
		violations, err := engine.Verify(ctx, team)
		if err != nil {
			return err
		}
		if len(violations) == 0 {
			fmt.Printf("%s✓%s %s\n", colorGreen, colorReset, team)
			continue
		}
		problems += len(violations)
		fmt.Printf("%s✗%s %s\n", colorRed, colorReset, team)
		for _, v := range violations {
			fmt.Printf("    %s\n", v)
		}
	}

	if problems > 0 {
		return fmt.Errorf("%d board violation(s) found", problems)
	}
	return nil
}
