// Package media drives the external tools that turn a session's recorded
// segments into publishable artifacts.
//
// Processor is the narrow contract the pipeline depends on. Toolchain is the
// production implementation: ffprobe for segment metadata, the danmaku_tools
// Python modules for annotation merging, cleaning, and engagement analysis,
// DanmakuFactory for the subtitle overlay, and ffmpeg for thumbnails,
// concatenation, and the final filter-graph transcode. Every tool appends its
// output to a per-session log file next to the artifacts.
package media
