package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"winivox/internal/audio"
	"winivox/internal/config"
	"winivox/internal/logging"
	"winivox/internal/metadata"
	"winivox/internal/notifications"
	"winivox/internal/objectstore"
	"winivox/internal/services"
	"winivox/internal/services/moderation"
	"winivox/internal/submissions"
)

// Transcriber turns audio into text. It returns "" instead of failing.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) string
}

// Moderator screens a transcript.
type Moderator interface {
	Moderate(ctx context.Context, text string) moderation.Result
}

// MetadataGenerator derives public metadata from a transcript.
type MetadataGenerator interface {
	Generate(ctx context.Context, transcript string) metadata.Result
}

// AudioTransform runs local audio transforms. Both methods leave an output
// file behind unless they return an error.
type AudioTransform interface {
	Normalize(ctx context.Context, in, out string) (audio.Outcome, error)
	PitchShift(ctx context.Context, in, out string, semitones int) (audio.Outcome, error)
}

// Options wires an Executor.
type Options struct {
	Storage     config.Storage
	TempDir     string
	Store       *submissions.Store
	Objects     objectstore.Store
	Transcriber Transcriber
	Moderator   Moderator
	Metadata    MetadataGenerator
	Audio       AudioTransform
	Notifier    notifications.Service
	Logger      *slog.Logger
}

// Executor is the step state machine.
type Executor struct {
	storage     config.Storage
	tempDir     string
	store       *submissions.Store
	objects     objectstore.Store
	transcriber Transcriber
	moderator   Moderator
	metadata    MetadataGenerator
	audio       AudioTransform
	notifier    notifications.Service
	logger      *slog.Logger
	steps       []step
}

// New validates opts and builds an Executor.
func New(opts Options) (*Executor, error) {
	switch {
	case opts.Store == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "submission store required", nil)
	case opts.Objects == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "object store required", nil)
	case opts.Transcriber == nil, opts.Moderator == nil, opts.Metadata == nil, opts.Audio == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "transform providers required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	e := &Executor{
		storage:     opts.Storage,
		tempDir:     strings.TrimSpace(opts.TempDir),
		store:       opts.Store,
		objects:     opts.Objects,
		transcriber: opts.Transcriber,
		moderator:   opts.Moderator,
		metadata:    opts.Metadata,
		audio:       opts.Audio,
		notifier:    notifier,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
	}
	e.steps = e.stepTable()
	return e, nil
}

// run holds the working files of one Advance call.
type run struct {
	sub        *submissions.Submission
	dir        string
	raw        string
	normalized string
	anonymized string
}

// Advance runs every remaining step for id. Missing, halted, not yet uploaded
// and fully published submissions are no-ops. A returned error leaves the
// submission at its last committed step.
func (e *Executor) Advance(ctx context.Context, id string) error {
	ctx = services.WithSubmissionID(ctx, id)
	logger := logging.WithContext(ctx, e.logger)

	sub, err := e.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}
	if sub == nil {
		logger.Debug("submission not found; nothing to do")
		return nil
	}
	switch {
	case sub.Status.Halted():
		logger.Debug("submission halted by moderation; nothing to do", logging.String("status", string(sub.Status)))
		return nil
	case sub.Status == submissions.StatusCreated:
		logger.Debug("audio not uploaded yet; nothing to do")
		return nil
	case sub.Status == submissions.StatusUploaded:
		if _, err := e.store.MarkProcessing(ctx, sub.ID); err != nil {
			return err
		}
		sub.Status = submissions.StatusProcessing
	}
	if strings.TrimSpace(sub.RawAudioKey) == "" {
		logger.Warn("submission has no raw audio; skipping", logging.String(logging.FieldEventType, "missing_audio"))
		return nil
	}
	if sub.Done(submissions.StepPublished) {
		return nil
	}

	r, cleanup, err := e.prepare(sub)
	if err != nil {
		return err
	}
	defer cleanup()

	if !sub.Done(submissions.StepNormalized) {
		if err := e.objects.Download(ctx, e.storage.PrivateBucket, sub.RawAudioKey, r.raw); err != nil {
			return services.Wrap(services.ErrStorage, "pipeline", "download", "raw audio "+sub.RawAudioKey, err)
		}
	}

	logger.Info("pipeline run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("resume_from", sub.Step.String()),
	)
	for _, st := range e.steps {
		if sub.Done(st.index) {
			logger.Debug("step already completed", logging.String(logging.FieldStep, st.name))
			continue
		}
		halted, err := e.execute(ctx, r, st)
		if err != nil {
			return err
		}
		if halted {
			return nil
		}
	}
	logger.Info("pipeline run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("status", string(sub.Status)),
	)
	return nil
}

func (e *Executor) execute(ctx context.Context, r *run, st step) (bool, error) {
	stepCtx := services.WithStep(ctx, st.name)
	logger := logging.WithContext(stepCtx, e.logger)
	start := time.Now()
	logger.Info("step started", logging.String(logging.FieldEventType, "step_start"))

	res, err := st.run(stepCtx, r)
	if err != nil {
		logging.ErrorWithContext(logger, "step failed", "step_failure",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldImpact, "submission stays at "+r.sub.Step.String()),
		)
		return false, err
	}
	r.sub.Step = st.index
	if err := e.store.CommitStep(stepCtx, r.sub, res.records...); err != nil {
		return false, fmt.Errorf("commit %s: %w", st.name, err)
	}
	logger.Info("step completed",
		logging.String(logging.FieldEventType, "step_complete"),
		logging.Duration("duration", time.Since(start)),
		logging.String("status", string(r.sub.Status)),
	)
	if res.notify != "" {
		e.notify(stepCtx, res.notify, res.notifyPayload)
	}
	return res.halt, nil
}

func (e *Executor) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := e.notifier.Publish(ctx, event, payload); err != nil {
		logging.WithContext(ctx, e.logger).Debug("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

func (e *Executor) prepare(sub *submissions.Submission) (*run, func(), error) {
	base := e.tempDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create temp dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "run-")
	if err != nil {
		return nil, nil, fmt.Errorf("create run dir: %w", err)
	}
	ext := strings.ToLower(path.Ext(sub.RawAudioKey))
	if ext == "" {
		ext = ".bin"
	}
	r := &run{
		sub:        sub,
		dir:        dir,
		raw:        filepath.Join(dir, "original"+ext),
		normalized: filepath.Join(dir, normalizedArtifact),
		anonymized: filepath.Join(dir, anonymizedArtifact),
	}
	return r, func() { _ = os.RemoveAll(dir) }, nil
}

// Artifact names inside the artifacts bucket.
const (
	normalizedArtifact = "normalized.wav"
	anonymizedArtifact = "anonymized.wav"
)

func (e *Executor) storeArtifact(ctx context.Context, r *run, name, local string) error {
	key := submissions.ArtifactKey(r.sub.OwnerID, r.sub.ID, name)
	if err := e.objects.Upload(ctx, local, e.storage.ArtifactsBucket, key); err != nil {
		return services.Wrap(services.ErrStorage, "pipeline", "store artifact", key, err)
	}
	return nil
}

// ensureArtifact makes sure local holds the named artifact, fetching it from
// the artifacts bucket when an earlier run produced it.
func (e *Executor) ensureArtifact(ctx context.Context, r *run, name, local string) error {
	if _, err := os.Stat(local); err == nil {
		return nil
	}
	key := submissions.ArtifactKey(r.sub.OwnerID, r.sub.ID, name)
	if err := e.objects.Download(ctx, e.storage.ArtifactsBucket, key, local); err != nil {
		return services.Wrap(services.ErrStorage, "pipeline", "fetch artifact", key, err)
	}
	return nil
}
