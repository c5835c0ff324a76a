// Package metadata produces the public title, summary, tags and virality
// score of a story from its transcript.
//
// Generation fails open. Missing credentials, provider errors and unparsable
// responses all fall back to deterministic values built from the transcript.
package metadata

import (
	"context"
	"log/slog"
	"strings"

	"winivox/internal/logging"
	"winivox/internal/services"
	"winivox/internal/services/llm"
	"winivox/internal/textutil"
)

// Result is the generated metadata. UsedProvider is false when the values
// come from the fallback path.
type Result struct {
	Title        string
	Summary      string
	Tags         []string
	Score        int
	UsedProvider bool
}

// Completer is the chat completion surface the generator needs.
type Completer interface {
	Configured() bool
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Generator turns transcripts into metadata.
type Generator struct {
	client Completer
	logger *slog.Logger
}

// New builds a Generator. client may be nil, which always falls back.
func New(client Completer, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{client: client, logger: logging.NewComponentLogger(logger, "metadata")}
}

// NewWithLLM is New for the shared OpenAI client.
func NewWithLLM(client *llm.Client, logger *slog.Logger) *Generator {
	if client == nil {
		return New(nil, logger)
	}
	return New(client, logger)
}

type response struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	ViralityScore any      `json:"virality_score"`
}

// Generate never fails; see Result.UsedProvider.
func (g *Generator) Generate(ctx context.Context, transcript string) Result {
	logger := logging.WithContext(ctx, g.logger)
	transcript = strings.TrimSpace(transcript)

	if !UsableTranscript(transcript) {
		logger.Info("metadata fallback; no usable speech in transcript")
		return Fallback(transcript)
	}
	if g.client == nil || !g.client.Configured() {
		logging.WarnWithContext(logger, "metadata fallback; api key missing", "metadata_skipped",
			logging.String(logging.FieldErrorHint, "set openai.api_key or OPENAI_API_KEY"),
			logging.String(logging.FieldImpact, "story published with default tags"),
		)
		return Fallback(transcript)
	}

	content, err := g.client.CompleteJSON(ctx, SystemPrompt, userPrompt(textutil.Clip(transcript, MaxTranscriptChars)))
	if err != nil {
		g.warnFallback(logger, "metadata request failed", err)
		return Fallback(transcript)
	}
	var parsed response
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		g.warnFallback(logger, "metadata response not json",
			services.Wrap(services.ErrValidation, "metadata", "decode", "provider payload", err))
		return Fallback(transcript)
	}

	tags := parsed.Tags
	if len(tags) == 0 {
		tags = DefaultTags()
	}
	result := Result{
		Title:        CleanTitle(parsed.Title),
		Summary:      CleanSummary(parsed.Summary),
		Tags:         CleanTags(tags),
		Score:        ClampScore(parsed.ViralityScore),
		UsedProvider: true,
	}
	logger.Debug("metadata generated",
		logging.Int("tags", len(result.Tags)),
		logging.Int("virality_score", result.Score),
	)
	return result
}

func (g *Generator) warnFallback(logger *slog.Logger, msg string, err error) {
	logging.WarnWithContext(logger, msg+"; using fallback", "metadata_fallback",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, services.Kind(err)),
		logging.String(logging.FieldErrorHint, "check provider status or model output"),
		logging.String(logging.FieldImpact, "story published with fallback summary and tags"),
	)
}

// Fallback builds deterministic metadata from the transcript alone.
func Fallback(transcript string) Result {
	summary := SilentSummary
	if UsableTranscript(transcript) {
		summary = strings.TrimSpace(textutil.Clip(strings.TrimSpace(transcript), fallbackSnippet))
	}
	return Result{
		Title:   DefaultTitle,
		Summary: summary,
		Tags:    DefaultTags(),
		Score:   NeutralScore,
	}
}
