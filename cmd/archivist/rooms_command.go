package main

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/api"
)

func newRoomsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List configured rooms and their publishing policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(cfg.Rooms) == 0 {
				fmt.Fprintln(out, "No rooms configured")
				return nil
			}

			var recording []int64
			known := false
			client, _ := ctx.apiClient()
			reqCtx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			if status, err := client.Status(reqCtx); err == nil {
				recording = status.Recorders
				known = true
			} else if !api.IsAPIUnavailable(err) {
				return fmt.Errorf("query daemon: %w", err)
			}

			rows := make([][]string, 0, len(cfg.Rooms))
			for _, room := range cfg.Rooms {
				uploader := room.Uploader
				if !room.HasUploader() {
					uploader = "-"
				}
				recorder := "unknown"
				if known {
					recorder = yesNo(slices.Contains(recording, room.ID))
				}
				rows = append(rows, []string{
					strconv.FormatInt(room.ID, 10),
					uploader,
					room.ContinuationWindow().String(),
					recorder,
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{Header: "Room", Align: alignRight},
				{Header: "Uploader"},
				{Header: "Continuation"},
				{Header: "Recording"},
			}, rows))
			return nil
		},
	}
}
