package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	autoYes    bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "aide",
	Short: "aide - voice/text command pipeline for your events, tasks and notes",
	Long: `aide turns free-text (or transcribed speech) commands into concrete
changes to your personal items.

Every command flows through the same pipeline: an LLM interprets the text
into a structured operation, references are resolved against your existing
items, and each proposed change becomes a confirmation card you approve,
edit or reject before anything is committed.

Run without arguments to start the interactive prompt.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive()
	},
}

// sayCmd runs one command through the pipeline
var sayCmd = &cobra.Command{
	Use:   "say [command...]",
	Short: "Run one command through the pipeline",
	Long: `Interprets the command, resolves references against your items and
presents the proposed changes as confirmation cards.

Examples:
  aide say add task buy groceries by Friday
  aide say delete all today's meetings
  aide say --yes add note call mom about the trip`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSay,
}

// itemsCmd lists the stored items
var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "List your items",
	RunE:  runItems,
}

// configCmd groups configuration commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage aide configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "aide.yaml", "config file path")

	sayCmd.Flags().BoolVarP(&autoYes, "yes", "y", false, "approve every card without prompting")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
