package media_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/media"
	"archivist/internal/services"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func TestToolchainConcatLogsInvocation(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := writeStub(t, dir, "ffmpeg", `echo "encoding $@"`)
	cfg := config.Default().Media
	cfg.FFmpegBinary = ffmpeg

	tc := media.NewToolchain(cfg, logging.NewNop())
	logPath := filepath.Join(dir, "a.all.video.log")
	if err := tc.Concat(context.Background(), "list.txt", "out.mp4", logPath); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(content), "encoding -y -f concat -safe 0 -i list.txt -c copy out.mp4") {
		t.Fatalf("unexpected tool log: %q", content)
	}
}

func TestToolchainFailureIsExternalToolError(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Media
	cfg.FFmpegBinary = writeStub(t, dir, "ffmpeg", `echo "bad input" >&2; exit 1`)

	tc := media.NewToolchain(cfg, logging.NewNop())
	err := tc.ExtractThumbnail(context.Background(), "a.flv", 12.5, "thumb.png", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "bad input") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestToolchainAnalyzeEngagementReadsPeak(t *testing.T) {
	dir := t.TempDir()
	peak := filepath.Join(dir, "a.all.he_pos.txt")
	cfg := config.Default().Media
	cfg.DanmakuPython = writeStub(t, dir, "python3", "printf '123.5\\nignored\\n' > "+peak)

	tc := media.NewToolchain(cfg, logging.NewNop())
	offset, err := tc.AnalyzeEngagement(context.Background(), media.EngagementJob{Annotations: "clean.xml", Peak: peak})
	if err != nil {
		t.Fatalf("AnalyzeEngagement: %v", err)
	}
	if offset != 123.5 {
		t.Fatalf("unexpected offset %v", offset)
	}
}

func TestToolchainProbe(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Media
	cfg.FFprobeBinary = writeStub(t, dir, "ffprobe", `echo '{"streams":[{"codec_type":"video","width":1920,"height":1080}],"format":{"duration":"30"}}'`)

	probe, err := media.NewToolchain(cfg, logging.NewNop()).Probe(context.Background(), "a.flv")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if probe != (media.Probe{Duration: 30, Width: 1920, Height: 1080}) {
		t.Fatalf("unexpected probe %+v", probe)
	}
}

func TestToolchainEncoderSelection(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Media
	cfg.GPUProbeBinary = writeStub(t, dir, "nvidia-smi", `echo "GPU 0: Test GPU"`)

	if got := media.NewToolchain(cfg, logging.NewNop()).Encoder(); got != media.EncoderNVENC {
		t.Fatalf("expected nvenc with a working GPU probe, got %+v", got)
	}
	cfg.GPUProbeBinary = writeStub(t, dir, "no-gpu", "exit 9")
	if got := media.NewToolchain(cfg, logging.NewNop()).Encoder(); got != media.EncoderSoftware {
		t.Fatalf("expected software fallback, got %+v", got)
	}
	cfg.Encoder = "nvenc"
	if got := media.NewToolchain(cfg, logging.NewNop()).Encoder(); got != media.EncoderNVENC {
		t.Fatalf("expected forced nvenc, got %+v", got)
	}
}

func TestToolchainEncoderIgnoresCancelledCaller(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Media
	cfg.GPUProbeBinary = writeStub(t, dir, "nvidia-smi", `echo "GPU 0: Test GPU"`)
	cfg.FFmpegBinary = writeStub(t, dir, "ffmpeg", "exit 0")
	tc := media.NewToolchain(cfg, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = tc.Transcode(ctx, media.TranscodeJob{
		Output:   filepath.Join(dir, "out.mp4"),
		Duration: 60,
		LogPath:  filepath.Join(dir, "transcode.log"),
	})
	if got := tc.Encoder(); got != media.EncoderNVENC {
		t.Fatalf("encoder cached from a cancelled transcode: %+v", got)
	}
}

func TestWriteConcatManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.all.concat.txt")
	if err := media.WriteConcatManifest(path, []string{"/s/a.flv", "/s/it's.flv"}); err != nil {
		t.Fatalf("WriteConcatManifest: %v", err)
	}
	content, _ := os.ReadFile(path)
	want := "file '/s/a.flv'\nfile '/s/it'\\''s.flv'"
	if string(content) != want {
		t.Fatalf("unexpected manifest:\n%s\nwant:\n%s", content, want)
	}
}
