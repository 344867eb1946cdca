// Package commands implements the formreps-analyze CLI.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/claude/formreps/internal/config"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
	log *slog.Logger
)

func Execute() error {
	root := &cobra.Command{
		Use:          "formreps-analyze",
		Short:        "Train and inspect form classifiers from recorded landmarks",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelInfo
			}
			log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			if configPath == "" {
				cfg = config.Default()
				return nil
			}
			var err error
			cfg, err = config.Load(configPath)
			return err
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "server config file for export and model directories (default: built-in defaults)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log training progress to stderr")

	root.AddCommand(trainCmd(), inspectCmd())
	return root.Execute()
}
