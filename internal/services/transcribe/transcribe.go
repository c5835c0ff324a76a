// Package transcribe turns story audio into text with the OpenAI
// transcription endpoint. Transcription fails open: any provider problem
// yields an empty transcript and a warning, never an error.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"winivox/internal/logging"
	"winivox/internal/services"
	"winivox/internal/services/llm"
)

const transcriptionsPath = "audio/transcriptions"

// Prompt steers the model toward a faithful Spanish transcript.
const Prompt = "Transcribi este audio en espanol neutro. " +
	"Es una historia en audio anonima. " +
	"No inventes contenido: solo lo dicho. " +
	"Mantené la puntuacion y agregá signos donde ayude a la lectura."

// Transcriber produces transcripts for the pipeline.
type Transcriber struct {
	client *llm.Client
	logger *slog.Logger
}

// New wraps an OpenAI client configured with the transcription model.
func New(client *llm.Client, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcriber{client: client, logger: logging.NewComponentLogger(logger, "transcribe")}
}

// Transcribe returns the trimmed transcript of the audio at path, or "" when
// the provider is unconfigured or fails.
func (t *Transcriber) Transcribe(ctx context.Context, path string) string {
	logger := logging.WithContext(ctx, t.logger)
	if t.client == nil || !t.client.Configured() {
		logging.WarnWithContext(logger, "transcription skipped; api key missing", "transcription_skipped",
			logging.String(logging.FieldErrorHint, "set openai.api_key or OPENAI_API_KEY"),
			logging.String(logging.FieldImpact, "story continues with an empty transcript"),
		)
		return ""
	}
	text, err := t.Request(ctx, path)
	if err != nil {
		logging.WarnWithContext(logger, "transcription failed; continuing with empty transcript", "transcription_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "check provider status and audio format"),
			logging.String(logging.FieldImpact, "moderation and metadata run on an empty transcript"),
		)
		return ""
	}
	logger.Debug("transcription complete", logging.Int("chars", len(text)))
	return text
}

// Request performs one transcription call and surfaces errors.
func (t *Transcriber) Request(ctx context.Context, path string) (string, error) {
	body, contentType, err := buildRequest(t.client.Model(), path)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Post(ctx, "transcribe", transcriptionsPath, contentType, body)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "transcribe", "request", "transcription api", err)
	}
	return parseResponse(resp), nil
}

func buildRequest(model, path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", services.Wrap(services.ErrValidation, "transcribe", "open", "audio file", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"model", model},
		{"prompt", Prompt},
		{"response_format", "text"},
	}
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", field[0], err)
		}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// parseResponse accepts the plain-text body requested above and tolerates
// providers that answer with {"text": "..."} regardless.
func parseResponse(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			return strings.TrimSpace(payload.Text)
		}
	}
	return trimmed
}
