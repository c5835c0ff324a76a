// Package moderation screens transcripts with the OpenAI moderation endpoint
// and maps the result to a verdict.
//
// The policy fails closed. A missing key or an empty transcript approves by
// default; provider errors and empty results quarantine; a flagged result
// rejects.
package moderation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"winivox/internal/logging"
	"winivox/internal/services"
	"winivox/internal/services/llm"
)

const (
	moderationsPath = "moderations"
	// MaxChars bounds the text sent for moderation.
	MaxChars = 4000
)

// Verdict is the moderation decision.
type Verdict string

const (
	Approve    Verdict = "APPROVE"
	Reject     Verdict = "REJECT"
	Quarantine Verdict = "QUARANTINE"
)

// Reasons recorded when the verdict is not backed by a provider result.
const (
	ReasonMissingAPIKey   = "missing_api_key"
	ReasonEmptyTranscript = "empty_transcript"
	ReasonModerationError = "moderation_error"
	ReasonEmptyResult     = "empty_result"
)

// Result is a verdict with the details stored on the submission and in the
// audio.moderated event.
type Result struct {
	Verdict Verdict
	Details map[string]any
}

// Moderator applies the moderation policy.
type Moderator struct {
	client *llm.Client
	logger *slog.Logger
}

// New wraps an OpenAI client configured with the moderation model.
func New(client *llm.Client, logger *slog.Logger) *Moderator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Moderator{client: client, logger: logging.NewComponentLogger(logger, "moderation")}
}

// Moderate decides on transcript. It never returns an error; failures are
// folded into a QUARANTINE verdict.
func (m *Moderator) Moderate(ctx context.Context, transcript string) Result {
	logger := logging.WithContext(ctx, m.logger)
	text := strings.TrimSpace(transcript)

	if m.client == nil || !m.client.Configured() {
		logger.Info("moderation skipped; api key missing", logging.String("verdict", string(Approve)))
		return reasoned(Approve, ReasonMissingAPIKey)
	}
	if text == "" {
		logger.Info("moderation skipped; empty transcript", logging.String("verdict", string(Approve)))
		return reasoned(Approve, ReasonEmptyTranscript)
	}

	resp, err := m.request(ctx, truncate(text, MaxChars))
	if err != nil {
		logging.WarnWithContext(logger, "moderation failed; quarantining", "moderation_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "review the submission manually or reprocess"),
			logging.String(logging.FieldImpact, "submission held in quarantine"),
		)
		return reasoned(Quarantine, ReasonModerationError)
	}
	if len(resp.Results) == 0 {
		logging.WarnWithContext(logger, "moderation returned no results; quarantining", "moderation_empty",
			logging.String(logging.FieldImpact, "submission held in quarantine"),
		)
		return reasoned(Quarantine, ReasonEmptyResult)
	}

	first := resp.Results[0]
	verdict := Approve
	if first.Flagged {
		verdict = Reject
	}
	model := m.client.Model()
	if strings.TrimSpace(resp.Model) != "" {
		model = resp.Model
	}
	categories := first.Categories
	if categories == nil {
		categories = map[string]any{}
	}
	scores := first.CategoryScores
	if scores == nil {
		scores = map[string]any{}
	}
	logger.Info("moderation complete",
		logging.String("verdict", string(verdict)),
		logging.Bool("flagged", first.Flagged),
	)
	return Result{
		Verdict: verdict,
		Details: map[string]any{
			"flagged":    first.Flagged,
			"categories": categories,
			"scores":     scores,
			"model":      model,
		},
	}
}

type moderationRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type moderationResponse struct {
	Model   string `json:"model"`
	Results []struct {
		Flagged        bool           `json:"flagged"`
		Categories     map[string]any `json:"categories"`
		CategoryScores map[string]any `json:"category_scores"`
	} `json:"results"`
}

func (m *Moderator) request(ctx context.Context, text string) (moderationResponse, error) {
	var parsed moderationResponse
	body, err := json.Marshal(moderationRequest{Model: m.client.Model(), Input: text})
	if err != nil {
		return parsed, err
	}
	resp, err := m.client.Post(ctx, "moderate", moderationsPath, "application/json", body)
	if err != nil {
		return parsed, services.Wrap(services.ErrExternalTool, "moderation", "request", "moderation api", err)
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return parsed, services.Wrap(services.ErrExternalTool, "moderation", "decode", "moderation response", err)
	}
	return parsed, nil
}

func reasoned(verdict Verdict, reason string) Result {
	return Result{Verdict: verdict, Details: map[string]any{"reason": reason}}
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
