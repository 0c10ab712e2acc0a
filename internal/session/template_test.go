package session

import (
	"testing"
	"time"

)

func TestTemplateFields(t *testing.T) {
	start := time.Date(2026, 3, 4, 20, 0, 0, 0, time.FixedZone("CST", 8*3600))
	fields := TemplateFields(Metadata{Name: "alice", Title: "hello"}, "Main", start, "/s/a.flv")
	want := map[string]string{
		"name": "alice", "title": "hello", "uploader_name": "Main",
		"y": "2026", "m": "3", "d": "4",
		"yy": "2026", "mm": "03", "dd": "04",
		"flv_path": "/s/a.flv",
	}
	for key, value := range want {
		if fields[key] != value {
			t.Fatalf("%s = %q, want %q", key, fields[key], value)
		}
	}
}

func TestRenderTemplate(t *testing.T) {
	fields := map[string]string{"name": "alice", "title": "hi", "yy": "2026"}
	tests := []struct {
		tmpl string
		want string
	}{
		{"[$name] $title", "[alice] hi"},
		{"${name}_x", "alice_x"},
		{"cost $$5", "cost $5"},
		{"$yy-", "2026-"},
		{"plain", "plain"},
	}
	for _, tc := range tests {
		got, err := RenderTemplate(tc.tmpl, fields)
		if err != nil {
			t.Fatalf("%q: %v", tc.tmpl, err)
		}
		if got != tc.want {
			t.Fatalf("%q: got %q, want %q", tc.tmpl, got, tc.want)
		}
	}
}

func TestRenderTemplateErrors(t *testing.T) {
	fields := map[string]string{"name": "alice"}
	for _, tmpl := range []string{"$missing", "${missing}", "${name", "trailing $", "$1", "${1x}"} {
		if _, err := RenderTemplate(tmpl, fields); err == nil {
			t.Fatalf("%q: expected error", tmpl)
		}
	}
}

func TestResolveTitle(t *testing.T) {
	if got := ResolveTitle("T", nil); got != "T" {
		t.Fatalf("no collision: %q", got)
	}
	if got := ResolveTitle("T", []string{"T"}); got != "T2" {
		t.Fatalf("one collision: %q", got)
	}
	if got := ResolveTitle("T", []string{"T", "T2"}); got != "T3" {
		t.Fatalf("two collisions: %q", got)
	}
	precomposed, decomposed := "caf\u00e9", "cafe\u0301"
	if got := ResolveTitle(decomposed, []string{precomposed}); got != precomposed+"2" {
		t.Fatalf("normalized collision: %q", got)
	}
}
