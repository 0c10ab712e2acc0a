package media

import (
	"fmt"
	"strconv"
	"strings"
)

// Encoder selects the video codec arguments for the final transcode.
type Encoder struct {
	Codec  string
	Preset string
}

var (
	// EncoderNVENC is used when an NVIDIA GPU is available.
	EncoderNVENC = Encoder{Codec: "h264_nvenc", Preset: "slow"}
	// EncoderSoftware is the CPU fallback.
	EncoderSoftware = Encoder{Codec: "libx264", Preset: "medium"}
)

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
)

// escapeFilterPath escapes a path for use as a filter option value inside a
// filter_complex graph: once for the option parser, once for the graph parser.
func escapeFilterPath(path string) string {
	return graphEscaper.Replace(optionEscaper.Replace(path))
}

// OverlayFilter builds the filter graph that stretches the engagement graph
// into a progress bar along the bottom of the video, colored up to the
// current playback position and gray after it, then burns in the subtitles.
func OverlayFilter(duration float64, width, height int, subtitles string) string {
	total := formatSeconds(duration)
	lines := []string{
		fmt.Sprintf("[1:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:-1:-1:color=black[v_fixed]", width, height, width, height),
		"[0:v][v_fixed]scale2ref=iw:iw*(main_h/main_w)[color][ref]",
		"[color]split[color1][color2]",
		"[color1]hue=s=0[gray]",
		"[color2]negate=negate_alpha=1[color_neg]",
		"[gray]negate=negate_alpha=1[gray_neg]",
		fmt.Sprintf("color=black:d=%s[black]", total),
		"[black][ref]scale2ref[blackref][ref2]",
		"[blackref]split[blackref1][blackref2]",
		fmt.Sprintf("[color_neg][blackref1]overlay=x=t/%s*W-W[color_crop_neg]", total),
		fmt.Sprintf("[gray_neg][blackref2]overlay=x=t/%s*W[gray_crop_neg]", total),
		"[color_crop_neg]negate=negate_alpha=1[color_crop]",
		"[gray_crop_neg]negate=negate_alpha=1[gray_crop]",
		"[ref2][color_crop]overlay=y=main_h-overlay_h[out_color]",
		"[out_color][gray_crop]overlay=y=main_h-overlay_h[out]",
		fmt.Sprintf("[out]ass=%s[out_sub]", escapeFilterPath(subtitles)),
	}
	return strings.Join(lines, ";")
}

// TranscodeArgs returns the ffmpeg arguments for the final transcode.
func TranscodeArgs(job TranscodeJob, encoder Encoder) []string {
	total := formatSeconds(job.Duration)
	return []string{
		"-y",
		"-loop", "1", "-t", total, "-i", job.Graph,
		"-f", "concat", "-safe", "0", "-i", job.Manifest,
		"-t", total,
		"-filter_complex", OverlayFilter(job.Duration, job.Width, job.Height, job.Subtitles),
		"-map", "[out_sub]", "-map", "1:a",
		"-c:v", encoder.Codec, "-preset", encoder.Preset,
		"-b:v", strconv.Itoa(TargetBitrateKbps(job.Duration)) + "K",
		"-b:a", strconv.Itoa(AudioBitrateKbps) + "K",
		"-ar", strconv.Itoa(AudioSampleRate),
		job.Output,
	}
}

// OverlayArgs returns the DanmakuFactory arguments for the subtitle overlay.
func OverlayArgs(job OverlayJob, fontName string) []string {
	return []string{
		"-x", strconv.Itoa(job.Width),
		"-y", strconv.Itoa(job.Height),
		"--ignore-warnings",
		"-o", job.Output,
		"-i", job.Annotations,
		"--fontname", fontName,
		"-S", strconv.Itoa(FontSize(job.Width, job.Height)),
		"-O", "255", "-L", "1", "-D", "1",
		"--showusernames", "true",
		"--showmsgbox", "false",
	}
}

// EngagementArgs returns the danmaku_energy_map module arguments.
func EngagementArgs(job EngagementJob) []string {
	args := []string{
		"-m", "danmaku_tools.danmaku_energy_map",
		"--graph", job.Graph,
		"--he_map", job.Highlights,
		"--sc_list", job.SuperChats,
		"--he_time", job.Peak,
		"--sc_srt", job.SuperChatSRT,
		"--he_range", job.Ranges,
	}
	if job.UserDict != "" {
		args = append(args, "--user_dict", job.UserDict)
	}
	if job.RegexRules != "" {
		args = append(args, "--regex_rules", job.RegexRules)
	}
	return append(args, job.Annotations)
}
