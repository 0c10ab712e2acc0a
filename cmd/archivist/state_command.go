package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/api"
	"archivist/internal/config"
	"archivist/internal/state"
)

func newStateCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var offline bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the save record (published artifacts, titles, pending tasks)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reqCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			var resp api.StateResponse
			fetched := false
			if !offline {
				client, _ := ctx.apiClient()
				resp, err = client.State(reqCtx)
				switch {
				case err == nil:
					fetched = true
				case !api.IsAPIUnavailable(err):
					return fmt.Errorf("query daemon: %w", err)
				}
			}
			if !fetched {
				resp, err = readStateFile(reqCtx, cfg)
				if err != nil {
					return err
				}
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}
			renderState(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Read the state database directly instead of asking the daemon")
	return cmd
}

func readStateFile(ctx context.Context, cfg *config.Config) (api.StateResponse, error) {
	path := cfg.StatePath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return api.FromRecord(state.NewRecord()), nil
	}
	store, err := state.OpenPath(path)
	if err != nil {
		return api.StateResponse{}, err
	}
	defer store.Close()
	rec, err := store.Load(ctx)
	if err != nil {
		return api.StateResponse{}, fmt.Errorf("load save record: %w", err)
	}
	return api.FromRecord(rec), nil
}

func renderState(out io.Writer, resp api.StateResponse) {
	ids := make([]string, 0, len(resp.Titles)+len(resp.Artifacts))
	seen := make(map[string]struct{})
	for _, m := range []map[string]string{resp.Titles, resp.Artifacts} {
		for id := range m {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		fmt.Fprintln(out, "No sessions in the save record")
	} else {
		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, []string{id, resp.Titles[id], resp.Artifacts[id]})
		}
		fmt.Fprintln(out, renderTable([]column{{Header: "Session"}, {Header: "Title"}, {Header: "Artifact"}}, rows))
	}

	if len(resp.Comments) > 0 {
		rows := make([][]string, 0, len(resp.Comments))
		for _, c := range resp.Comments {
			rows = append(rows, []string{c.ID, c.SessionID, strconv.FormatInt(c.RoomID, 10), c.Account, c.CreatedAt})
		}
		fmt.Fprintln(out, "Pending comments")
		fmt.Fprintln(out, renderTable([]column{{Header: "Task"}, {Header: "Session"}, {Header: "Room", Align: alignRight}, {Header: "Account"}, {Header: "Created"}}, rows))
	}
	if len(resp.Captions) > 0 {
		rows := make([][]string, 0, len(resp.Captions))
		for _, c := range resp.Captions {
			rows = append(rows, []string{c.ID, c.SessionID, c.Variant, c.ArtifactID, c.TrackID})
		}
		fmt.Fprintln(out, "Pending captions")
		fmt.Fprintln(out, renderTable([]column{{Header: "Task"}, {Header: "Session"}, {Header: "Variant"}, {Header: "Artifact"}, {Header: "Track"}}, rows))
	}
}
