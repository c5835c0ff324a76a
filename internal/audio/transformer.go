package audio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"winivox/internal/config"
	"winivox/internal/fileutil"
	"winivox/internal/logging"
	"winivox/internal/services"
)

// Method names the level of the degrade chain that produced an output.
type Method string

const (
	MethodFilter   Method = "filter"
	MethodReencode Method = "reencode"
	MethodCopy     Method = "copy"
)

// Outcome describes a finished transform.
type Outcome struct {
	Method Method
	// Degraded is set when the intended filter could not be applied.
	Degraded bool
	// Cause holds the filter failure that forced a degraded result.
	Cause error
}

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Transformer runs ffmpeg-based transforms.
type Transformer struct {
	ffmpeg            string
	ffprobe           string
	loudnorm          string
	defaultSampleRate int
	logger            *slog.Logger
	run               runner
}

// NewTransformer builds a transformer from the audio config section.
func NewTransformer(cfg config.Audio, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Transformer{
		ffmpeg:            strings.TrimSpace(cfg.FFmpegBinary),
		ffprobe:           strings.TrimSpace(cfg.FFprobeBinary),
		loudnorm:          strings.TrimSpace(cfg.LoudnormFilter),
		defaultSampleRate: cfg.DefaultSampleRate,
		logger:            logging.NewComponentLogger(logger, "audio"),
		run:               execRunner,
	}
	if t.ffmpeg == "" {
		t.ffmpeg = "ffmpeg"
	}
	if t.ffprobe == "" {
		t.ffprobe = "ffprobe"
	}
	if t.loudnorm == "" {
		t.loudnorm = "loudnorm=I=-16:TP=-1.5:LRA=11"
	}
	if t.defaultSampleRate <= 0 {
		t.defaultSampleRate = 44100
	}
	return t
}

// Normalize applies the loudness filter to in and writes out.
func (t *Transformer) Normalize(ctx context.Context, in, out string) (Outcome, error) {
	return t.degrade(ctx, "normalize", in, out, []string{"-y", "-i", in, "-af", t.loudnorm, out})
}

// PitchShift shifts in by semitones and writes out. Zero semitones is a
// byte copy and not a degradation.
func (t *Transformer) PitchShift(ctx context.Context, in, out string, semitones int) (Outcome, error) {
	if semitones == 0 {
		if err := fileutil.CopyFile(in, out); err != nil {
			return Outcome{}, services.Wrap(services.ErrExternalTool, "audio", "pitch_shift", "copy input", err)
		}
		return Outcome{Method: MethodCopy}, nil
	}
	rate := t.ProbeSampleRate(ctx, in)
	filter := PitchFilter(rate, semitones)
	return t.degrade(ctx, "pitch_shift", in, out, []string{"-y", "-i", in, "-filter:a", filter, out})
}

// ProbeSampleRate reads the first audio stream's sample rate, falling back
// to the configured default when ffprobe fails or prints nothing usable.
func (t *Transformer) ProbeSampleRate(ctx context.Context, path string) int {
	output, err := t.run(ctx, t.ffprobe,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate",
		"-of", "default=nokey=1:noprint_wrappers=1",
		path,
	)
	if err != nil {
		t.logger.Debug("sample rate probe failed; using default",
			logging.Int("sample_rate", t.defaultSampleRate),
			logging.Error(err),
		)
		return t.defaultSampleRate
	}
	for _, line := range strings.Split(string(output), "\n") {
		if rate, convErr := strconv.Atoi(strings.TrimSpace(line)); convErr == nil && rate > 0 {
			return rate
		}
	}
	return t.defaultSampleRate
}

// PitchFilter builds the ffmpeg filter that shifts pitch by semitones while
// keeping duration: asetrate raises pitch and tempo by r = 2^(semitones/12),
// aresample restores the rate, atempo undoes the tempo change.
func PitchFilter(sampleRate, semitones int) string {
	ratio := math.Pow(2, float64(semitones)/12)
	return fmt.Sprintf("asetrate=%d*%s,aresample=%d,atempo=%s",
		sampleRate,
		formatFloat(ratio),
		sampleRate,
		formatFloat(1/ratio),
	)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (t *Transformer) degrade(ctx context.Context, operation, in, out string, filterArgs []string) (Outcome, error) {
	logger := logging.WithContext(ctx, t.logger).With(logging.String("operation", operation))

	cause := t.attempt(ctx, out, filterArgs)
	if cause == nil {
		return Outcome{Method: MethodFilter}, nil
	}
	logging.WarnWithContext(logger, "audio filter failed; re-encoding without filter", "audio_filter_failed",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "verify ffmpeg supports the configured filter"),
		logging.String(logging.FieldImpact, "output is produced without the intended filter"),
	)

	reencodeErr := t.attempt(ctx, out, []string{"-y", "-i", in, out})
	if reencodeErr == nil {
		return Outcome{Method: MethodReencode, Degraded: true, Cause: cause}, nil
	}
	logging.WarnWithContext(logger, "audio re-encode failed; copying input", "audio_reencode_failed",
		logging.Error(reencodeErr),
		logging.String(logging.FieldErrorHint, "check ffmpeg installation and input format"),
		logging.String(logging.FieldImpact, "output is a byte copy of the input"),
	)

	_ = os.Remove(out)
	if err := fileutil.CopyFile(in, out); err != nil {
		return Outcome{}, services.Wrap(services.ErrExternalTool, "audio", operation, "copy input after ffmpeg failures", err)
	}
	return Outcome{Method: MethodCopy, Degraded: true, Cause: cause}, nil
}

// attempt runs ffmpeg and treats a missing or empty output as failure.
func (t *Transformer) attempt(ctx context.Context, out string, args []string) error {
	output, err := t.run(ctx, t.ffmpeg, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(string(output)))
	}
	if !fileutil.NonEmpty(out) {
		return fmt.Errorf("ffmpeg produced no output at %s", out)
	}
	return nil
}
