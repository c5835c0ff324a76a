package deps

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// AudioRequirements names the ffmpeg and ffprobe binaries used for
// normalization, pitch shifting and sample-rate probing.
func AudioRequirements(ffmpeg, ffprobe string) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Loudness normalization and pitch shifting"},
		{Name: "FFprobe", Command: ffprobe, Description: "Sample rate detection", Optional: true},
	}
}

// CheckAudio checks the audio binaries and records the first line of their
// -version output for available ones.
func CheckAudio(ctx context.Context, ffmpeg, ffprobe string) []Status {
	statuses := CheckBinaries(AudioRequirements(ffmpeg, ffprobe))
	for i := range statuses {
		if statuses[i].Available {
			statuses[i].Version = probeVersion(ctx, statuses[i].Command)
		}
	}
	return statuses
}

func probeVersion(ctx context.Context, command string) string {
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, command, "-version").Output()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}
