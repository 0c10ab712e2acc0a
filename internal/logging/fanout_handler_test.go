package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected a single live handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsPerHandlerLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h).With("component", "test").WithGroup("g")

	logger.Debug("only debug", "k", "v")
	logger.Info("both")

	if strings.Contains(infoBuf.String(), "only debug") {
		t.Fatalf("info handler received debug record: %s", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), "only debug") || !strings.Contains(debugBuf.String(), `"g":{"k":"v"}`) {
		t.Fatalf("debug handler missing grouped record: %s", debugBuf.String())
	}
	for name, buf := range map[string]*bytes.Buffer{"info": &infoBuf, "debug": &debugBuf} {
		if !strings.Contains(buf.String(), `"msg":"both"`) || !strings.Contains(buf.String(), `"component":"test"`) {
			t.Fatalf("%s handler missing shared record: %s", name, buf.String())
		}
	}
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled when any handler accepts debug")
	}
}

func TestTeeLoggerCopiesToExtraHandler(t *testing.T) {
	var baseBuf, teeBuf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&baseBuf, nil))
	logger := TeeLogger(base, slog.NewJSONHandler(&teeBuf, nil))
	logger.Info("copied")
	if !strings.Contains(baseBuf.String(), "copied") || !strings.Contains(teeBuf.String(), "copied") {
		t.Fatalf("expected both outputs, base=%q tee=%q", baseBuf.String(), teeBuf.String())
	}
	if TeeLogger(nil, slog.NewJSONHandler(&teeBuf, nil)) == nil {
		t.Fatal("expected logger from nil base")
	}
}
