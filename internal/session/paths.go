package session

// Paths lists every artifact derived from a session. All paths share the
// first segment's base path with an ".all" infix.
type Paths struct {
	Base             string
	Annotations      string
	CleanAnnotations string
	Subtitles        string
	EarlyVideo       string
	FinalVideo       string
	Manifest         string
	Thumbnail        string
	Graph            string
	Highlights       string
	Ranges           string
	SuperChats       string
	SuperChatSRT     string
	Peak             string
	ExtrasLog        string
	VideoLog         string
}

// PathsFor derives the artifact layout from the first segment's base path.
func PathsFor(firstSegmentBase string) Paths {
	base := firstSegmentBase + ".all"
	return Paths{
		Base:             base,
		Annotations:      base + ".xml",
		CleanAnnotations: base + ".clean.xml",
		Subtitles:        base + ".ass",
		EarlyVideo:       base + ".mp4",
		FinalVideo:       base + ".bar.mp4",
		Manifest:         base + ".concat.txt",
		Thumbnail:        base + ".thumb.png",
		Graph:            base + ".he.png",
		Highlights:       base + ".he.txt",
		Ranges:           base + ".he_range.txt",
		SuperChats:       base + ".sc.txt",
		SuperChatSRT:     base + ".sc.srt",
		Peak:             base + ".he_pos.txt",
		ExtrasLog:        base + ".extras.log",
		VideoLog:         base + ".video.log",
	}
}
