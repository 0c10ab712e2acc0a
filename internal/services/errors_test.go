package services

import (
	"errors"
	"strings"
	"testing"

)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(ErrExternalTool, "transcode", "ffmpeg", "exit status 1", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcode", "ffmpeg", "exit status 1"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "", "", "", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKindAndRetryable(t *testing.T) {
	cases := []struct {
		err       error
		kind      string
		retryable bool
	}{
		{Wrap(ErrValidation, "segment", "probe", "zero resolution", nil), "validation", false},
		{Wrap(ErrConfiguration, "registry", "lookup", "unknown room", nil), "configuration", false},
		{Wrap(ErrExternalTool, "media", "concat", "", errors.New("exit 1")), "external_tool", true},
		{errors.New("plain"), "transient", true},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.kind {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.kind)
		}
		if got := Retryable(tc.err); got != tc.retryable {
			t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.retryable)
		}
	}
	if Kind(nil) != "" || Retryable(nil) {
		t.Fatal("nil error should have no kind and not be retryable")
	}
}
