package cli

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagDebug bool
	flagTeam  string
)

var rootCmd = &cobra.Command{
	Use:   "laneboard",
	Short: "Team kanban board with dense lanes",
	Long: "laneboard keeps every team's board in order: tasks move between the\n" +
		"active, ongoing, review and finished lanes without leaving gaps, and every\n" +
		"change is broadcast to whoever is watching.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultTeam := os.Getenv("LANEBOARD_TEAM")
	if defaultTeam == "" {
		defaultTeam = "default"
	}
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&flagTeam, "team", "t", defaultTeam, "Team whose board to work on (env LANEBOARD_TEAM)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(stressCmd)
}

// configureLogging applies --debug or the configured level to the standard
// logrus logger. Logs go to stderr so command output stays pipeable.
func configureLogging() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if flagDebug {
		log.SetLevel(log.DebugLevel)
		return
	}
	cfg, err := loadConfig()
	if err != nil {
		log.SetLevel(log.WarnLevel)
		return
	}
	log.SetLevel(cfg.Level())
}
