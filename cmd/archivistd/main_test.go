package main

import (
	"bytes"
	"context"
	"testing"

	"archivist/internal/config"
	"archivist/internal/daemonrun"
	"archivist/internal/testsupport"
)

func TestRootCommandPassesConfigAndLevel(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRoom(config.Room{ID: 42}))
	path := testsupport.WriteConfigFile(t, cfg)

	var gotCfg *config.Config
	var gotOpts daemonrun.Options
	runFunc = func(_ context.Context, c *config.Config, opts daemonrun.Options) error {
		gotCfg, gotOpts = c, opts
		return nil
	}
	t.Cleanup(func() { runFunc = daemonrun.Run })

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--config", path, "--log-level", "debug"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotCfg == nil || len(gotCfg.Rooms) != 1 || gotCfg.Rooms[0].ID != 42 {
		t.Fatalf("unexpected config: %+v", gotCfg)
	}
	if gotOpts.ConfigPath != path || gotOpts.LogLevel != "debug" {
		t.Fatalf("unexpected options: %+v", gotOpts)
	}
}

func TestRootCommandRejectsInvalidConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Media.Encoder = "quantum"
	path := testsupport.WriteConfigFile(t, cfg)

	called := false
	runFunc = func(context.Context, *config.Config, daemonrun.Options) error {
		called = true
		return nil
	}
	t.Cleanup(func() { runFunc = daemonrun.Run })

	cmd := newRootCommand()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--config", path})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected invalid encoder to fail")
	}
	if called {
		t.Fatal("daemon should not start with an invalid config")
	}
}
