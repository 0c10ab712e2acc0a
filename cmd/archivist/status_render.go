package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var statusColors = map[statusKind]*color.Color{
	statusInfo:  color.New(color.FgBlue),
	statusOK:    color.New(color.FgGreen),
	statusWarn:  color.New(color.FgYellow),
	statusError: color.New(color.FgRed),
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	return paint(base, statusColors[kind], colorize)
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	heading := statusColors[statusInfo]
	return []string{paint(line, heading, colorize), paint(rule, heading, colorize)}
}

// paint applies c regardless of color.NoColor, which only tracks stdout.
func paint(s string, c *color.Color, colorize bool) string {
	if !colorize || c == nil {
		return s
	}
	painted := *c
	painted.EnableColor()
	return painted.Sprint(s)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
