package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"winivox/internal/submissions"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func statusColor(status string) string {
	parsed, ok := submissions.ParseStatus(status)
	if !ok {
		return ""
	}
	switch parsed {
	case submissions.StatusApproved:
		return ansiGreen
	case submissions.StatusRejected:
		return ansiRed
	case submissions.StatusQuarantined:
		return ansiYellow
	case submissions.StatusProcessing, submissions.StatusUploaded:
		return ansiBlue
	default:
		return ""
	}
}

func renderStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	if color := statusColor(status); color != "" {
		return color + status + ansiReset
	}
	return status
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
