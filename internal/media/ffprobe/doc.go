// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe against one recorded segment; the Result helpers pick
// out the first video stream's dimensions and the container duration, which
// is all segment validation needs.
package ffprobe
