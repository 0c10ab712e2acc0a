package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"archivist/internal/api"
	"archivist/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, workflow, and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil && !api.IsAPIUnavailable(err) {
				return err
			}
			reqCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			status, err := client.Status(reqCtx)
			if err != nil && !api.IsAPIUnavailable(err) {
				return fmt.Errorf("query daemon: %w", err)
			}
			if err != nil {
				cfg, _ := ctx.ensureConfig()
				status = api.DaemonStatus{Dependencies: api.FromDependencies(preflight.CheckSystemDeps(cfg))}
			}
			if jsonOut {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderStatus(status, shouldColorize(out)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(status api.DaemonStatus, colorize bool) string {
	var b strings.Builder
	line := func(s string) { b.WriteString(s + "\n") }

	for _, l := range renderSectionHeader("Daemon", colorize) {
		line(l)
	}
	if !status.Running {
		line(renderStatusLine("Daemon", statusWarn, "Not running", colorize))
	} else {
		line(renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
		line(renderStatusLine("Pipelines", statusInfo, strconv.Itoa(status.RunningPipelines), colorize))
		line(renderStatusLine("Recorders", statusInfo, formatRooms(status.Recorders), colorize))
		wf := status.Workflow
		line(renderStatusLine("Publish queue", statusInfo, strconv.Itoa(wf.PendingPublish), colorize))
		line(renderStatusLine("Comments", statusInfo, fmt.Sprintf("%d active, %d pending", wf.ActiveComments, wf.PendingComments), colorize))
		line(renderStatusLine("Captions", statusInfo, fmt.Sprintf("%d active, %d pending", wf.ActiveCaptions, wf.PendingCaptions), colorize))
	}

	b.WriteString("\n")
	for _, l := range renderSectionHeader("Dependencies", colorize) {
		line(l)
	}
	for _, dep := range status.Dependencies {
		switch {
		case dep.Available:
			line(renderStatusLine(dep.Name, statusOK, dep.Command, colorize))
		case dep.Optional:
			line(renderStatusLine(dep.Name, statusWarn, dep.Detail, colorize))
		default:
			line(renderStatusLine(dep.Name, statusError, dep.Detail, colorize))
		}
	}

	if len(status.Sessions) > 0 {
		b.WriteString("\n")
		b.WriteString(renderSessions(status.Sessions))
		b.WriteString("\n")
	}
	return b.String()
}

func renderSessions(sessions []api.Session) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		phase := "recording"
		switch {
		case s.Done:
			phase = "done"
		case s.PipelinePending:
			phase = "pending"
		case s.Prepared:
			phase = "processing"
		}
		rows = append(rows, []string{
			s.ID,
			strconv.FormatInt(s.RoomID, 10),
			s.Name,
			s.Start,
			strconv.Itoa(s.Segments),
			(time.Duration(s.Duration * float64(time.Second))).Round(time.Second).String(),
			phase,
		})
	}
	return renderTable([]column{
		{Header: "Session"},
		{Header: "Room", Align: alignRight},
		{Header: "Name"},
		{Header: "Start"},
		{Header: "Segments", Align: alignRight},
		{Header: "Duration", Align: alignRight},
		{Header: "Phase"},
	}, rows)
}

func formatRooms(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
