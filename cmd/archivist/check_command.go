package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"archivist/internal/deps"
	"archivist/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks for directories, services, and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var b strings.Builder
			for _, l := range renderSectionHeader("Preflight", colorize) {
				b.WriteString(l + "\n")
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				b.WriteString(renderStatusLine(r.Name, kind, r.Detail, colorize) + "\n")
			}

			b.WriteString("\n")
			for _, l := range renderSectionHeader("Dependencies", colorize) {
				b.WriteString(l + "\n")
			}
			statuses := preflight.CheckSystemDeps(cfg)
			for _, s := range statuses {
				kind, detail := statusOK, s.Path
				if !s.Available {
					kind, detail = statusError, s.Detail
					if s.Optional {
						kind = statusWarn
					}
				}
				b.WriteString(renderStatusLine(s.Name, kind, detail, colorize) + "\n")
			}
			fmt.Fprint(out, b.String())

			failed := len(preflight.Failed(results))
			missing := len(deps.MissingRequired(statuses))
			if failed > 0 || missing > 0 {
				return fmt.Errorf("%d check(s) failed, %d required binary(ies) missing", failed, missing)
			}
			return nil
		},
	}
}
