package media

import "math"

const (
	// sizeCeilingKbits is the platform upload ceiling expressed in kilobits.
	sizeCeilingKbits = 8000_000 * 8
	// AudioBitrateKbps is the fixed audio bitrate of the final artifact.
	AudioBitrateKbps = 320
	// AudioSampleRate is the fixed audio sample rate of the final artifact.
	AudioSampleRate     = 44100
	bitrateMarginKbps   = 500
	maxVideoBitrateKbps = 8000
)

// TargetBitrateKbps computes the video bitrate that keeps a transcode of the
// given duration (seconds) under the platform size ceiling. The result is
// truncated toward zero.
func TargetBitrateKbps(duration float64) int {
	budget := (sizeCeilingKbits/duration - AudioBitrateKbps) - bitrateMarginKbps
	return int(math.Min(maxVideoBitrateKbps, budget))
}

// FontSize scales the overlay font with the larger video dimension.
func FontSize(width, height int) int {
	return max(width, height) * 55 / 1920
}
