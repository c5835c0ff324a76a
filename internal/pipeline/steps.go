package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"winivox/internal/audio"
	"winivox/internal/events"
	"winivox/internal/logging"
	"winivox/internal/notifications"
	"winivox/internal/services"
	"winivox/internal/services/moderation"
	"winivox/internal/submissions"
)

// step is one gated entry of the pipeline.
type step struct {
	index submissions.Step
	name  string
	run   func(ctx context.Context, r *run) (stepResult, error)
}

// stepResult is what a step hands back for the commit.
type stepResult struct {
	records       []events.Record
	halt          bool
	notify        notifications.Event
	notifyPayload notifications.Payload
}

func (e *Executor) stepTable() []step {
	return []step{
		{index: submissions.StepNormalized, name: "normalize", run: e.normalize},
		{index: submissions.StepTranscribed, name: "transcribe", run: e.transcribe},
		{index: submissions.StepModerated, name: "moderate", run: e.moderate},
		{index: submissions.StepTagged, name: "tag", run: e.tag},
		{index: submissions.StepAnonymized, name: "anonymize", run: e.anonymize},
		{index: submissions.StepPublished, name: "publish", run: e.publish},
	}
}

func (e *Executor) normalize(ctx context.Context, r *run) (stepResult, error) {
	outcome, err := e.audio.Normalize(ctx, r.raw, r.normalized)
	if err != nil {
		return stepResult{}, err
	}
	if err := e.storeArtifact(ctx, r, normalizedArtifact, r.normalized); err != nil {
		return stepResult{}, err
	}
	return stepResult{records: []events.Record{
		events.New(events.Normalized, outcomePayload(outcome)),
	}}, nil
}

func (e *Executor) transcribe(ctx context.Context, r *run) (stepResult, error) {
	if err := e.ensureArtifact(ctx, r, normalizedArtifact, r.normalized); err != nil {
		return stepResult{}, err
	}
	text := e.transcriber.Transcribe(ctx, r.normalized)
	r.sub.TranscriptPreview = text
	return stepResult{records: []events.Record{
		events.New(events.Transcribed, map[string]any{"chars": len([]rune(text))}),
	}}, nil
}

func (e *Executor) moderate(ctx context.Context, r *run) (stepResult, error) {
	result := e.moderator.Moderate(ctx, r.sub.TranscriptPreview)
	details := result.Details
	if details == nil {
		details = map[string]any{}
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return stepResult{}, fmt.Errorf("encode moderation details: %w", err)
	}
	r.sub.Verdict = string(result.Verdict)
	r.sub.ModerationJSON = string(encoded)

	payload := make(map[string]any, len(details)+1)
	for k, v := range details {
		payload[k] = v
	}
	payload["result"] = string(result.Verdict)
	res := stepResult{records: []events.Record{events.New(events.Moderated, payload)}}

	notice := notifications.Payload{"submission_id": r.sub.ID}
	if reason, ok := details["reason"].(string); ok {
		notice["reason"] = reason
	}
	switch result.Verdict {
	case moderation.Reject:
		r.sub.Status = submissions.StatusRejected
		res.records = append(res.records, events.New(events.Rejected, nil))
		res.halt, res.notify, res.notifyPayload = true, notifications.EventRejected, notice
	case moderation.Quarantine:
		r.sub.Status = submissions.StatusQuarantined
		res.records = append(res.records, events.New(events.Quarantined, nil))
		res.halt, res.notify, res.notifyPayload = true, notifications.EventQuarantined, notice
	case moderation.Approve:
	default:
		// Unknown verdicts are treated like provider failures.
		r.sub.Verdict = string(moderation.Quarantine)
		r.sub.Status = submissions.StatusQuarantined
		payload["result"] = string(moderation.Quarantine)
		notice["reason"] = "unknown_verdict"
		res.records = append(res.records, events.New(events.Quarantined, nil))
		res.halt, res.notify, res.notifyPayload = true, notifications.EventQuarantined, notice
	}
	return res, nil
}

func (e *Executor) tag(ctx context.Context, r *run) (stepResult, error) {
	meta := e.metadata.Generate(ctx, r.sub.TranscriptPreview)
	score := meta.Score
	r.sub.Title = meta.Title
	r.sub.Summary = meta.Summary
	r.sub.Tags = meta.Tags
	r.sub.ViralityScore = &score
	return stepResult{records: []events.Record{
		events.New(events.Tagged, map[string]any{
			"title":          meta.Title,
			"summary":        meta.Summary,
			"tags":           meta.Tags,
			"virality_score": score,
			"high_potential": r.sub.HighPotential(),
			"llm_used":       meta.UsedProvider,
		}),
	}}, nil
}

func (e *Executor) anonymize(ctx context.Context, r *run) (stepResult, error) {
	if err := e.ensureArtifact(ctx, r, normalizedArtifact, r.normalized); err != nil {
		return stepResult{}, err
	}
	mode := r.sub.Mode
	if mode == "" {
		mode = submissions.DefaultMode
	}
	semitones := mode.Semitones()
	outcome, err := e.audio.PitchShift(ctx, r.normalized, r.anonymized, semitones)
	if err != nil {
		return stepResult{}, err
	}
	if outcome.Degraded && semitones != 0 {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "voice not disguised; publishing degraded output", "anonymization_degraded",
			logging.Alert("anonymization_degraded"),
			logging.String("method", string(outcome.Method)),
			logging.String("mode", string(mode)),
			logging.String(logging.FieldErrorHint, "check ffmpeg installation and reprocess the submission"),
			logging.String(logging.FieldImpact, "published audio may not be pitch shifted"),
		)
	}
	if err := e.storeArtifact(ctx, r, anonymizedArtifact, r.anonymized); err != nil {
		return stepResult{}, err
	}
	payload := outcomePayload(outcome)
	payload["mode"] = string(mode)
	payload["semitones"] = semitones
	return stepResult{records: []events.Record{events.New(events.Anonymized, payload)}}, nil
}

func (e *Executor) publish(ctx context.Context, r *run) (stepResult, error) {
	if err := e.ensureArtifact(ctx, r, anonymizedArtifact, r.anonymized); err != nil {
		return stepResult{}, err
	}
	key := submissions.PublicAudioKey(r.sub.OwnerID, r.sub.ID)
	if err := e.objects.Upload(ctx, r.anonymized, e.storage.PublicBucket, key); err != nil {
		return stepResult{}, services.Wrap(services.ErrStorage, "pipeline", "publish", key, err)
	}
	now := time.Now().UTC()
	r.sub.PublicAudioKey = key
	r.sub.PublishedAt = &now
	r.sub.Status = submissions.StatusApproved
	notice := notifications.Payload{
		"submission_id":  r.sub.ID,
		"title":          r.sub.Title,
		"summary":        r.sub.Summary,
		"high_potential": r.sub.HighPotential(),
	}
	return stepResult{
		records:       []events.Record{events.New(events.Published, map[string]any{"key": key})},
		notify:        notifications.EventPublished,
		notifyPayload: notice,
	}, nil
}

func outcomePayload(outcome audio.Outcome) map[string]any {
	return map[string]any{
		"method":   string(outcome.Method),
		"degraded": outcome.Degraded,
	}
}
