package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imkarma/laneboard/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize laneboard in the current directory",
	Long:  "Creates a .laneboard/ directory with default config and database.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check if already initialized.
	if _, err := os.Stat(workDirName); err == nil {
		return fmt.Errorf("laneboard already initialized in this directory (%s/ exists)", workDirName)
	}

	if err := os.MkdirAll(workDirName, 0755); err != nil {
		return fmt.Errorf("create %s: %w", workDirName, err)
	}

	// Write default config.
	cfg := config.DefaultConfig()
	if err := config.Save(workPath("config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// Create database by opening store (migration runs automatically).
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	s.Close()

	fmt.Printf("Initialized laneboard in %s/\n", workDirName)
	fmt.Println("")
	fmt.Println("Next steps:")
	fmt.Println("  1. Run: laneboard task create \"your first task\"")
	fmt.Println("  2. Run: laneboard board")
	fmt.Println("  3. Set redis.url in .laneboard/config.yaml to broadcast changes")

	return nil
}
