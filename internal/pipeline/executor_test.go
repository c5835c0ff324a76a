package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"winivox/internal/audio"
	"winivox/internal/config"
	"winivox/internal/events"
	"winivox/internal/fileutil"
	"winivox/internal/metadata"
	"winivox/internal/notifications"
	"winivox/internal/objectstore"
	"winivox/internal/pipeline"
	"winivox/internal/services"
	"winivox/internal/services/moderation"
	"winivox/internal/submissions"
	"winivox/internal/testsupport"
)

type fakeTranscriber struct {
	text  string
	calls int
}

func (f *fakeTranscriber) Transcribe(context.Context, string) string {
	f.calls++
	return f.text
}

type fakeModerator struct {
	result moderation.Result
	calls  int
	input  string
}

func (f *fakeModerator) Moderate(_ context.Context, text string) moderation.Result {
	f.calls++
	f.input = text
	return f.result
}

type fakeMetadata struct {
	result metadata.Result
	calls  int
}

func (f *fakeMetadata) Generate(context.Context, string) metadata.Result {
	f.calls++
	return f.result
}

type fakeAudio struct {
	normalizeCalls int
	pitchCalls     int
	semitones      []int
	pitchOutcome   audio.Outcome
}

func (f *fakeAudio) Normalize(_ context.Context, in, out string) (audio.Outcome, error) {
	f.normalizeCalls++
	return audio.Outcome{Method: audio.MethodFilter}, fileutil.CopyFile(in, out)
}

func (f *fakeAudio) PitchShift(_ context.Context, in, out string, semitones int) (audio.Outcome, error) {
	f.pitchCalls++
	f.semitones = append(f.semitones, semitones)
	outcome := f.pitchOutcome
	if outcome.Method == "" {
		outcome.Method = audio.MethodFilter
	}
	return outcome, fileutil.CopyFile(in, out)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// flakyObjects fails uploads to one bucket a fixed number of times.
type flakyObjects struct {
	objectstore.Store
	bucket   string
	failures int
}

func (f *flakyObjects) Upload(ctx context.Context, localPath, bucket, key string) error {
	if bucket == f.bucket && f.failures > 0 {
		f.failures--
		return errors.New("bucket unavailable")
	}
	return f.Store.Upload(ctx, localPath, bucket, key)
}

type harness struct {
	cfg         *config.Config
	store       *submissions.Store
	objects     objectstore.Store
	transcriber *fakeTranscriber
	moderator   *fakeModerator
	metadata    *fakeMetadata
	audio       *fakeAudio
	notifier    *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	local, err := objectstore.NewLocal(cfg.Storage.LocalRoot)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return &harness{
		cfg:         cfg,
		store:       testsupport.MustOpenStore(t, cfg),
		objects:     local,
		transcriber: &fakeTranscriber{text: "hola mundo"},
		moderator: &fakeModerator{result: moderation.Result{
			Verdict: moderation.Approve,
			Details: map[string]any{"flagged": false},
		}},
		metadata: &fakeMetadata{result: metadata.Result{
			Title:        "Hola",
			Summary:      "resumen",
			Tags:         []string{"historia personal"},
			Score:        50,
			UsedProvider: true,
		}},
		audio:    &fakeAudio{},
		notifier: &recordingNotifier{},
	}
}

func (h *harness) executor(t *testing.T) *pipeline.Executor {
	t.Helper()
	exec, err := pipeline.New(pipeline.Options{
		Storage:     h.cfg.Storage,
		TempDir:     h.cfg.Paths.TempDir,
		Store:       h.store,
		Objects:     h.objects,
		Transcriber: h.transcriber,
		Moderator:   h.moderator,
		Metadata:    h.metadata,
		Audio:       h.audio,
		Notifier:    h.notifier,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return exec
}

func (h *harness) upload(t *testing.T, mode submissions.Mode) *submissions.Submission {
	t.Helper()
	return testsupport.NewUploaded(t, h.cfg, h.store, "user-1", mode, []byte("hola mundo"))
}

func (h *harness) reload(t *testing.T, id string) *submissions.Submission {
	t.Helper()
	sub, err := h.store.GetByID(context.Background(), id)
	if err != nil || sub == nil {
		t.Fatalf("GetByID: %v (sub=%v)", err, sub)
	}
	return sub
}

func (h *harness) eventNames(t *testing.T, id string) []string {
	t.Helper()
	list, err := events.NewLog(h.store.DB()).ForSubmission(context.Background(), id)
	if err != nil {
		t.Fatalf("ForSubmission: %v", err)
	}
	return events.Names(list)
}

func (h *harness) objectPath(bucket, key string) string {
	return filepath.Join(h.cfg.Storage.LocalRoot, bucket, filepath.FromSlash(key))
}

func TestAdvanceApprovedPublishes(t *testing.T) {
	h := newHarness(t)
	sub := h.upload(t, submissions.ModeSoft)

	if err := h.executor(t).Advance(context.Background(), sub.ID); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	got := h.reload(t, sub.ID)
	if got.Status != submissions.StatusApproved || got.Step != submissions.StepPublished {
		t.Fatalf("status=%s step=%s", got.Status, got.Step)
	}
	if got.PublicAudioKey != submissions.PublicAudioKey("user-1", sub.ID) || got.PublishedAt == nil {
		t.Fatalf("publish fields not set: %#v", got)
	}
	if got.Summary != "resumen" || !reflect.DeepEqual(got.Tags, []string{"historia personal"}) {
		t.Fatalf("metadata not stored: %#v", got)
	}
	if got.TranscriptPreview != "hola mundo" || got.Verdict != string(moderation.Approve) {
		t.Fatalf("transcript/verdict not stored: %#v", got)
	}
	if got.ViralityScore == nil || *got.ViralityScore != 50 {
		t.Fatalf("virality = %v", got.ViralityScore)
	}

	want := []string{
		events.Uploaded,
		events.Normalized,
		events.Transcribed,
		events.Moderated,
		events.Tagged,
		events.Anonymized,
		events.Published,
	}
	if names := h.eventNames(t, sub.ID); !reflect.DeepEqual(names, want) {
		t.Fatalf("events = %v, want %v", names, want)
	}

	published, err := os.ReadFile(h.objectPath(h.cfg.Storage.PublicBucket, got.PublicAudioKey))
	if err != nil {
		t.Fatalf("read published audio: %v", err)
	}
	if string(published) != "hola mundo" {
		t.Fatalf("published content = %q", published)
	}
	for _, name := range []string{"normalized.wav", "anonymized.wav"} {
		key := submissions.ArtifactKey("user-1", sub.ID, name)
		if !fileutil.NonEmpty(h.objectPath(h.cfg.Storage.ArtifactsBucket, key)) {
			t.Fatalf("artifact %s missing", name)
		}
	}
	if !reflect.DeepEqual(h.audio.semitones, []int{2}) {
		t.Fatalf("semitones = %v", h.audio.semitones)
	}
	if !reflect.DeepEqual(h.notifier.events, []notifications.Event{notifications.EventPublished}) {
		t.Fatalf("notifications = %v", h.notifier.events)
	}
	if h.moderator.input != "hola mundo" {
		t.Fatalf("moderator saw %q", h.moderator.input)
	}
}

func TestAdvanceRejectedHalts(t *testing.T) {
	h := newHarness(t)
	h.transcriber.text = "bad stuff"
	h.moderator.result = moderation.Result{Verdict: moderation.Reject, Details: map[string]any{"flagged": true}}
	sub := h.upload(t, submissions.ModeSoft)

	if err := h.executor(t).Advance(context.Background(), sub.ID); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	got := h.reload(t, sub.ID)
	if got.Status != submissions.StatusRejected || got.Step != submissions.StepModerated {
		t.Fatalf("status=%s step=%s", got.Status, got.Step)
	}
	if got.Summary != "" || got.Tags != nil || got.PublicAudioKey != "" {
		t.Fatalf("derived fields leaked past moderation: %#v", got)
	}
	if got.ModerationJSON != `{"flagged":true}` {
		t.Fatalf("moderation json = %q", got.ModerationJSON)
	}
	want := []string{events.Uploaded, events.Normalized, events.Transcribed, events.Moderated, events.Rejected}
	if names := h.eventNames(t, sub.ID); !reflect.DeepEqual(names, want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	if h.metadata.calls != 0 || h.audio.pitchCalls != 0 {
		t.Fatalf("later steps ran: metadata=%d pitch=%d", h.metadata.calls, h.audio.pitchCalls)
	}
	if !reflect.DeepEqual(h.notifier.events, []notifications.Event{notifications.EventRejected}) {
		t.Fatalf("notifications = %v", h.notifier.events)
	}

	// A halted submission stays halted on redelivery.
	if err := h.executor(t).Advance(context.Background(), sub.ID); err != nil {
		t.Fatalf("second Advance: %v", err)
	}
	if h.transcriber.calls != 1 || h.moderator.calls != 1 {
		t.Fatalf("halted submission reprocessed: transcribe=%d moderate=%d", h.transcriber.calls, h.moderator.calls)
	}
}

func TestAdvanceQuarantineHalts(t *testing.T) {
	h := newHarness(t)
	h.moderator.result = moderation.Result{
		Verdict: moderation.Quarantine,
		Details: map[string]any{"reason": moderation.ReasonModerationError},
	}
	sub := h.upload(t, submissions.ModeMedium)

	if err := h.executor(t).Advance(context.Background(), sub.ID); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	got := h.reload(t, sub.ID)
	if got.Status != submissions.StatusQuarantined || got.Verdict != string(moderation.Quarantine) {
		t.Fatalf("status=%s verdict=%s", got.Status, got.Verdict)
	}
	list, err := events.NewLog(h.store.DB()).ForSubmission(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("ForSubmission: %v", err)
	}
	moderated := list[len(list)-2]
	if moderated.Name != events.Moderated || moderated.Payload["result"] != "QUARANTINE" || moderated.Payload["reason"] != moderation.ReasonModerationError {
		t.Fatalf("unexpected moderated event %#v", moderated)
	}
	if list[len(list)-1].Name != events.Quarantined {
		t.Fatalf("last event = %s", list[len(list)-1].Name)
	}
}

func TestAdvanceResumesAfterPublishFailure(t *testing.T) {
	h := newHarness(t)
	base := h.objects
	h.objects = &flakyObjects{Store: base, bucket: h.cfg.Storage.PublicBucket, failures: 1}
	sub := h.upload(t, submissions.ModeStrong)

	err := h.executor(t).Advance(context.Background(), sub.ID)
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	got := h.reload(t, sub.ID)
	if got.Status != submissions.StatusProcessing || got.Step != submissions.StepAnonymized {
		t.Fatalf("after failure status=%s step=%s", got.Status, got.Step)
	}
	if got.PublicAudioKey != "" || got.PublishedAt != nil {
		t.Fatalf("publish fields set on failure: %#v", got)
	}

	if err := h.executor(t).Advance(context.Background(), sub.ID); err != nil {
		t.Fatalf("resume Advance: %v", err)
	}
	got = h.reload(t, sub.ID)
	if got.Status != submissions.StatusApproved {
		t.Fatalf("after resume status=%s", got.Status)
	}
	if h.audio.normalizeCalls != 1 || h.audio.pitchCalls != 1 || h.transcriber.calls != 1 || h.moderator.calls != 1 || h.metadata.calls != 1 {
		t.Fatalf("completed steps re-ran: %+v transcribe=%d moderate=%d metadata=%d",
			h.audio, h.transcriber.calls, h.moderator.calls, h.metadata.calls)
	}
	want := []string{
		events.Uploaded,
		events.Normalized,
		events.Transcribed,
		events.Moderated,
		events.Tagged,
		events.Anonymized,
		events.Published,
	}
	if names := h.eventNames(t, sub.ID); !reflect.DeepEqual(names, want) {
		t.Fatalf("events = %v, want %v", names, want)
	}

	// Nothing left to do for a published submission.
	if err := h.executor(t).Advance(context.Background(), sub.ID); err != nil {
		t.Fatalf("third Advance: %v", err)
	}
	if len(h.eventNames(t, sub.ID)) != len(want) {
		t.Fatal("published submission emitted more events")
	}
}

func TestAdvanceResumesMidPipelineFromArtifacts(t *testing.T) {
	h := newHarness(t)
	sub := h.upload(t, submissions.ModeSoft)
	ctx := context.Background()

	// Simulate a crash after transcription: the moderator panics before the
	// moderation step commits.
	exec := h.executor(t)
	crashExec, err := pipeline.New(pipeline.Options{
		Storage:     h.cfg.Storage,
		TempDir:     h.cfg.Paths.TempDir,
		Store:       h.store,
		Objects:     h.objects,
		Transcriber: h.transcriber,
		Moderator:   panicModerator{},
		Metadata:    h.metadata,
		Audio:       h.audio,
	})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	func() {
		defer func() { _ = recover() }()
		_ = crashExec.Advance(ctx, sub.ID)
	}()
	if got := h.reload(t, sub.ID); got.Step != submissions.StepTranscribed {
		t.Fatalf("step after crash = %s", got.Step)
	}

	// Remove the raw upload: a resumed run must not need it.
	if err := os.Remove(h.objectPath(h.cfg.Storage.PrivateBucket, sub.RawAudioKey)); err != nil {
		t.Fatalf("remove raw: %v", err)
	}
	if err := exec.Advance(ctx, sub.ID); err != nil {
		t.Fatalf("resume Advance: %v", err)
	}
	got := h.reload(t, sub.ID)
	if got.Status != submissions.StatusApproved {
		t.Fatalf("status = %s", got.Status)
	}
	if h.audio.normalizeCalls != 1 || h.transcriber.calls != 1 {
		t.Fatalf("normalize=%d transcribe=%d", h.audio.normalizeCalls, h.transcriber.calls)
	}
}

type panicModerator struct{}

func (panicModerator) Moderate(context.Context, string) moderation.Result {
	panic("moderation crashed")
}

func TestReprocessReplaysFullSequence(t *testing.T) {
	h := newHarness(t)
	sub := h.upload(t, submissions.ModeOff)
	ctx := context.Background()
	exec := h.executor(t)

	if err := exec.Advance(ctx, sub.ID); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	reset, err := h.store.Reprocess(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if reset.Step != submissions.StepNone || reset.Summary != "" || reset.PublicAudioKey != "" {
		t.Fatalf("reprocess did not reset: %#v", reset)
	}
	if err := exec.Advance(ctx, sub.ID); err != nil {
		t.Fatalf("second Advance: %v", err)
	}

	names := h.eventNames(t, sub.ID)
	steps := []string{events.Normalized, events.Transcribed, events.Moderated, events.Tagged, events.Anonymized, events.Published}
	want := append([]string{events.Uploaded}, steps...)
	want = append(want, events.ReprocessRequested)
	want = append(want, steps...)
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	if !reflect.DeepEqual(h.audio.semitones, []int{0, 0}) {
		t.Fatalf("semitones = %v", h.audio.semitones)
	}
	if got := h.reload(t, sub.ID); got.Status != submissions.StatusApproved {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestAdvanceNoops(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exec := h.executor(t)

	if err := exec.Advance(ctx, "missing"); err != nil {
		t.Fatalf("missing submission: %v", err)
	}

	created, err := h.store.Create(ctx, "user-1", "story.wav")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := exec.Advance(ctx, created.ID); err != nil {
		t.Fatalf("created submission: %v", err)
	}
	if got := h.reload(t, created.ID); got.Status != submissions.StatusCreated {
		t.Fatalf("created submission moved to %s", got.Status)
	}
	if h.audio.normalizeCalls != 0 {
		t.Fatal("transforms ran for a no-op")
	}
}

func TestAdvanceDownloadFailureAbortsBeforeSteps(t *testing.T) {
	h := newHarness(t)
	sub := h.upload(t, submissions.ModeSoft)
	if err := os.Remove(h.objectPath(h.cfg.Storage.PrivateBucket, sub.RawAudioKey)); err != nil {
		t.Fatalf("remove raw: %v", err)
	}

	err := h.executor(t).Advance(context.Background(), sub.ID)
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	got := h.reload(t, sub.ID)
	if got.Status != submissions.StatusProcessing || got.Step != submissions.StepNone {
		t.Fatalf("status=%s step=%s", got.Status, got.Step)
	}
	if names := h.eventNames(t, sub.ID); !reflect.DeepEqual(names, []string{events.Uploaded}) {
		t.Fatalf("events = %v", names)
	}
	if h.audio.normalizeCalls != 0 {
		t.Fatal("normalize ran without input")
	}
}

func TestAnonymizedEventFlagsDegradation(t *testing.T) {
	h := newHarness(t)
	h.audio.pitchOutcome = audio.Outcome{Method: audio.MethodCopy, Degraded: true}
	sub := h.upload(t, submissions.ModeSoft)

	if err := h.executor(t).Advance(context.Background(), sub.ID); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	list, err := events.NewLog(h.store.DB()).ForSubmission(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("ForSubmission: %v", err)
	}
	var anonymized *events.Event
	for i := range list {
		if list[i].Name == events.Anonymized {
			anonymized = &list[i]
		}
	}
	if anonymized == nil {
		t.Fatal("no anonymized event")
	}
	if anonymized.Payload["degraded"] != true || anonymized.Payload["method"] != "copy" || anonymized.Payload["mode"] != "SOFT" {
		t.Fatalf("unexpected payload %#v", anonymized.Payload)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := pipeline.New(pipeline.Options{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestUploadCompletionCannotRestartFinishedRun(t *testing.T) {
	cases := []struct {
		verdict    moderation.Verdict
		wantStatus submissions.Status
		wantStep   submissions.Step
	}{
		{moderation.Reject, submissions.StatusRejected, submissions.StepModerated},
		{moderation.Approve, submissions.StatusApproved, submissions.StepPublished},
	}
	for _, tc := range cases {
		t.Run(string(tc.verdict), func(t *testing.T) {
			h := newHarness(t)
			h.moderator.result = moderation.Result{Verdict: tc.verdict}
			sub := h.upload(t, submissions.ModeSoft)
			exec := h.executor(t)
			ctx := context.Background()

			if err := exec.Advance(ctx, sub.ID); err != nil {
				t.Fatalf("Advance: %v", err)
			}
			before := h.reload(t, sub.ID)
			if _, err := h.store.MarkUploaded(ctx, sub.ID, submissions.UploadDetails{Mode: submissions.ModeOff}); !errors.Is(err, submissions.ErrInvalidTransition) {
				t.Fatalf("expected ErrInvalidTransition, got %v", err)
			}
			if err := exec.Advance(ctx, sub.ID); err != nil {
				t.Fatalf("second Advance: %v", err)
			}

			got := h.reload(t, sub.ID)
			if got.Status != tc.wantStatus || got.Step != tc.wantStep {
				t.Fatalf("status=%s step=%s, want %s/%s", got.Status, got.Step, tc.wantStatus, tc.wantStep)
			}
			if got.PublicAudioKey != before.PublicAudioKey || got.Mode != submissions.ModeSoft {
				t.Fatalf("row changed: public=%q mode=%s", got.PublicAudioKey, got.Mode)
			}
			if h.moderator.calls != 1 {
				t.Fatalf("moderator calls = %d", h.moderator.calls)
			}
		})
	}
}
