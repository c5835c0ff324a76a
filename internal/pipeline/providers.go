package pipeline

import (
	"context"
	"log/slog"

	"winivox/internal/audio"
	"winivox/internal/config"
	"winivox/internal/metadata"
	"winivox/internal/notifications"
	"winivox/internal/objectstore"
	"winivox/internal/services/llm"
	"winivox/internal/services/moderation"
	"winivox/internal/services/transcribe"
	"winivox/internal/submissions"
)

// NewFromConfig wires the production providers: OpenAI clients for text,
// ffmpeg for audio, the configured object store and notifiers.
func NewFromConfig(ctx context.Context, cfg *config.Config, store *submissions.Store, logger *slog.Logger) (*Executor, error) {
	objects, err := objectstore.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(Options{
		Storage:     cfg.Storage,
		TempDir:     cfg.Paths.TempDir,
		Store:       store,
		Objects:     objects,
		Transcriber: transcribe.New(openAIClient(cfg, cfg.OpenAI.TranscribeModel), logger),
		Moderator:   moderation.New(openAIClient(cfg, cfg.OpenAI.ModerationModel), logger),
		Metadata:    metadata.NewWithLLM(openAIClient(cfg, cfg.OpenAI.MetadataModel), logger),
		Audio:       audio.NewTransformer(cfg.Audio, logger),
		Notifier:    notifications.NewService(cfg),
		Logger:      logger,
	})
}

func openAIClient(cfg *config.Config, model string) *llm.Client {
	return llm.NewClient(
		llm.ConfigFromOpenAI(cfg.OpenAI, model),
		llm.WithRetryMaxAttempts(cfg.OpenAI.RetryAttempts),
	)
}
