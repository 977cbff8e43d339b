package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/swarmlabs/hive/internal/config"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "Task-tree orchestration engine for LLM agent crews",
	Long: `Hive coordinates a planner and specialist crews (coding, data
analysis, content writing, research) to accomplish a task through
iterative planning, delegation, sandboxed execution, and human-in-the-
loop correction.

State is a hierarchical task tree persisted per session; runs can be
paused, inspected, resumed, and corrected mid-flight.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional convenience for ANTHROPIC_API_KEY etc.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)
}
