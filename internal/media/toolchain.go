package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/media/ffprobe"
	"archivist/internal/services"
)

const gpuDetectTimeout = 10 * time.Second

// Toolchain implements Processor by shelling out to the configured tools.
type Toolchain struct {
	cfg    config.Media
	logger *slog.Logger

	encoderOnce sync.Once
	encoder     Encoder
}

// NewToolchain builds a Toolchain from media configuration.
func NewToolchain(cfg config.Media, logger *slog.Logger) *Toolchain {
	return &Toolchain{cfg: cfg, logger: logging.NewComponentLogger(logger, "media")}
}

// Encoder reports the encoder chosen for final transcodes. With encoder =
// "auto" the GPU probe binary is run once; success selects NVENC.
func (t *Toolchain) Encoder() Encoder {
	t.encoderOnce.Do(func() {
		switch t.cfg.Encoder {
		case "nvenc":
			t.encoder = EncoderNVENC
		case "software":
			t.encoder = EncoderSoftware
		default:
			t.encoder = EncoderSoftware
			// The result is cached, so it must not depend on a caller's ctx.
			ctx, cancel := context.WithTimeout(context.Background(), gpuDetectTimeout)
			defer cancel()
			if detectGPU(ctx, t.cfg.GPUProbeBinary) {
				t.encoder = EncoderNVENC
			}
		}
		t.logger.Info("transcode encoder selected",
			logging.String("codec", t.encoder.Codec),
			logging.String("preset", t.encoder.Preset),
			logging.String("mode", t.cfg.Encoder),
		)
	})
	return t.encoder
}

func detectGPU(ctx context.Context, binary string) bool {
	if strings.TrimSpace(binary) == "" {
		return false
	}
	if _, err := exec.LookPath(binary); err != nil {
		return false
	}
	out, err := exec.CommandContext(ctx, binary, "-L").Output()
	if err != nil {
		return false
	}
	return len(bytes.TrimSpace(out)) > 0
}

// Probe reads duration and resolution of one segment.
func (t *Toolchain) Probe(ctx context.Context, path string) (Probe, error) {
	result, err := ffprobe.Inspect(ctx, t.cfg.FFprobeBinary, path)
	if err != nil {
		return Probe{}, services.Wrap(services.ErrExternalTool, "segment", "ffprobe", "inspect segment", err)
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) {
		return Probe{}, services.Wrap(services.ErrValidation, "segment", "ffprobe", "unparseable duration "+result.Format.Duration, nil)
	}
	width, height := result.Resolution()
	return Probe{Duration: duration, Width: width, Height: height}, nil
}

// MergeAnnotations merges per-segment danmaku XML files, offsetting each by
// the duration of the segments before it.
func (t *Toolchain) MergeAnnotations(ctx context.Context, inputs []string, output, logPath string) error {
	args := []string{"-m", "danmaku_tools.merge_danmaku"}
	args = append(args, inputs...)
	args = append(args, "--video_time", ".flv", "--output", output)
	return t.run(ctx, "merge_annotations", logPath, t.cfg.DanmakuPython, args...)
}

// CleanAnnotations drops malformed entries from a merged danmaku file.
func (t *Toolchain) CleanAnnotations(ctx context.Context, input, output, logPath string) error {
	return t.run(ctx, "clean_annotations", logPath, t.cfg.DanmakuPython,
		"-m", "danmaku_tools.clean_danmaku", input, "--output", output)
}

// AnalyzeEngagement runs the energy map analysis and reads back the peak offset.
func (t *Toolchain) AnalyzeEngagement(ctx context.Context, job EngagementJob) (float64, error) {
	if err := t.run(ctx, "analyze_engagement", job.LogPath, t.cfg.DanmakuPython, EngagementArgs(job)...); err != nil {
		return 0, err
	}
	return ReadPeakOffset(job.Peak)
}

// ReadPeakOffset parses the first line of the peak offset file.
func ReadPeakOffset(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "prepare", "read peak", "engagement peak file missing", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	value, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "prepare", "read peak", "engagement peak is not a number", err)
	}
	return value, nil
}

// RenderOverlay converts cleaned annotations into an ASS subtitle track.
func (t *Toolchain) RenderOverlay(ctx context.Context, job OverlayJob) error {
	return t.run(ctx, "render_overlay", job.LogPath, t.cfg.DanmakuFactoryBinary, OverlayArgs(job, t.cfg.FontName)...)
}

// ExtractThumbnail grabs one frame at offset seconds.
func (t *Toolchain) ExtractThumbnail(ctx context.Context, video string, offset float64, output, logPath string) error {
	return t.run(ctx, "thumbnail", logPath, t.cfg.FFmpegBinary,
		"-y", "-ss", formatSeconds(offset), "-i", video, "-vframes", "1", output)
}

// Concat stream-copies the segments listed in manifest into one file.
func (t *Toolchain) Concat(ctx context.Context, manifest, output, logPath string) error {
	return t.run(ctx, "concat", logPath, t.cfg.FFmpegBinary,
		"-y", "-f", "concat", "-safe", "0", "-i", manifest, "-c", "copy", output)
}

// Transcode produces the final artifact.
func (t *Toolchain) Transcode(ctx context.Context, job TranscodeJob) error {
	if job.Duration <= 0 {
		return services.Wrap(services.ErrValidation, "transcode", "bitrate", "session duration must be positive", nil)
	}
	return t.run(ctx, "transcode", job.LogPath, t.cfg.FFmpegBinary, TranscodeArgs(job, t.Encoder())...)
}

// run executes binary, appending its combined output to logPath.
func (t *Toolchain) run(ctx context.Context, operation, logPath, binary string, args ...string) error {
	var sink io.Writer = io.Discard
	if strings.TrimSpace(logPath) != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return services.Wrap(services.ErrExternalTool, "media", operation, "create log directory", err)
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "media", operation, "open tool log", err)
		}
		defer file.Close()
		fmt.Fprintf(file, "$ %s %s\n", binary, strings.Join(args, " "))
		sink = file
	}

	var tail tailBuffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = io.MultiWriter(sink, &tail)
	cmd.Stderr = io.MultiWriter(sink, &tail)

	logging.WithContext(ctx, t.logger).Debug("running tool",
		logging.String("operation", operation),
		logging.String("binary", binary),
	)
	if err := cmd.Run(); err != nil {
		msg := fmt.Sprintf("%s failed", filepath.Base(binary))
		if detail := tail.String(); detail != "" {
			msg += ": " + detail
		}
		return services.Wrap(services.ErrExternalTool, "media", operation, msg, err)
	}
	return nil
}

// tailBuffer keeps the last few hundred bytes of tool output for error messages.
type tailBuffer struct {
	buf []byte
}

const tailLimit = 512

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > tailLimit {
		b.buf = b.buf[len(b.buf)-tailLimit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return strings.TrimSpace(string(b.buf))
}
