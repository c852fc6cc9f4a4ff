package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fixedatc",
	Short: "Tool changer and touch-off sequencer for a fixed tool rack",
	Long: `fixedatc drives a spindle with a pneumatic collet through a fixed rack of
tool pockets: loading and touching off tools, unloading them and answering
tool change requests from the machine controller.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "fixedatc.yaml", "Configuration file (YAML or JSON).")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error).")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON.")
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	asJSON, _ := cmd.Flags().GetBool("log-json")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("log-level: %w", err)
	}
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
