package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func newReloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the running daemon to re-read its configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pidPath := cfg.PIDPath()
			pid, err := readPID(pidPath)
			if err != nil {
				return err
			}
			if err := unix.Kill(pid, unix.SIGHUP); err != nil {
				if errors.Is(err, unix.ESRCH) {
					return fmt.Errorf("daemon pid %d from %s is not running", pid, pidPath)
				}
				return fmt.Errorf("signal daemon: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent reload to archivistd (pid %d)\n", pid)
			return nil
		},
	}
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("no pid file at %s; is archivistd running?", path)
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s", path)
	}
	return pid, nil
}
