package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"archivist/internal/config"
	"archivist/internal/daemonrun"
)

// runFunc is swapped in tests to observe the resolved configuration.
var runFunc = daemonrun.Run

func newRootCommand() *cobra.Command {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:           "archivistd",
		Short:         "Run the archivist recorder daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, resolved, exists, err := config.Load(strings.TrimSpace(configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !exists {
				fmt.Fprintf(cmd.ErrOrStderr(), "config %s not found; running with defaults\n", resolved)
			}
			return runFunc(cmd.Context(), cfg, daemonrun.Options{
				ConfigPath: resolved,
				LogLevel:   logLevel,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}
