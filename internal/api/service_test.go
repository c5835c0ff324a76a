package api_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"winivox/internal/api"
	"winivox/internal/config"
	"winivox/internal/events"
	"winivox/internal/objectstore"
	"winivox/internal/services"
	"winivox/internal/submissions"
	"winivox/internal/testsupport"
	"winivox/internal/workqueue"
)

type signingObjects struct {
	*objectstore.Local
	err error
}

func (s signingObjects) PresignPut(_ context.Context, bucket, key, contentType string, ttl time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://signed.example/" + bucket + "/" + key + "?put&type=" + contentType, nil
}

func (s signingObjects) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://signed.example/" + bucket + "/" + key, nil
}

type failingDeletes struct {
	*objectstore.Local
}

func (failingDeletes) Delete(context.Context, string, string) error {
	return services.Wrap(services.ErrStorage, "objectstore", "delete", "bucket offline", nil)
}

type harness struct {
	cfg     *config.Config
	store   *submissions.Store
	queue   *workqueue.Memory
	local   *objectstore.Local
	service *api.Service
}

func newHarness(t *testing.T, wrap func(*objectstore.Local) objectstore.Store) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	local, err := objectstore.NewLocal(cfg.Storage.LocalRoot)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	var objects objectstore.Store = local
	if wrap != nil {
		objects = wrap(local)
	}
	queue := workqueue.NewMemory()
	svc, err := api.NewService(api.ServiceOptions{
		Store:      store,
		Queue:      queue,
		Objects:    objects,
		Storage:    cfg.Storage,
		PresignTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &harness{cfg: cfg, store: store, queue: queue, local: local, service: svc}
}

func (h *harness) objectPath(bucket, key string) string {
	return filepath.Join(h.cfg.Storage.LocalRoot, bucket, filepath.FromSlash(key))
}

func (h *harness) writeObject(t *testing.T, bucket, key string) string {
	t.Helper()
	path := h.objectPath(bucket, key)
	testsupport.WriteFile(t, path, 64)
	return path
}

func (h *harness) dequeue(t *testing.T) string {
	t.Helper()
	id, ok, err := h.queue.Dequeue(context.Background(), 50*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("Dequeue = %q, %v, %v", id, ok, err)
	}
	return id
}

func (h *harness) eventNames(t *testing.T, id string) []string {
	t.Helper()
	list, err := h.service.Events(context.Background(), "", id)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	names := make([]string, 0, len(list))
	for _, evt := range list {
		names = append(names, evt.Name)
	}
	return names
}

func TestAddFileUploadsAndEnqueues(t *testing.T) {
	h := newHarness(t, nil)
	src := filepath.Join(t.TempDir(), "Story.M4A")
	testsupport.WriteFile(t, src, 128)

	sub, err := h.service.AddFile(context.Background(), "owner-1", src, submissions.UploadDetails{
		Mode:        "medium",
		Description: "  una historia  ",
	})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if sub.Status != string(submissions.StatusUploaded) || sub.AnonymizationMode != string(submissions.ModeMedium) {
		t.Fatalf("unexpected submission %#v", sub)
	}
	if sub.Description != "una historia" {
		t.Fatalf("description = %q", sub.Description)
	}
	if !strings.HasSuffix(sub.RawAudioKey, "/original.m4a") {
		t.Fatalf("raw key = %q", sub.RawAudioKey)
	}
	if _, err := os.Stat(h.objectPath(h.cfg.Storage.PrivateBucket, sub.RawAudioKey)); err != nil {
		t.Fatalf("raw audio not uploaded: %v", err)
	}
	if got := h.dequeue(t); got != sub.ID {
		t.Fatalf("enqueued %q, want %q", got, sub.ID)
	}
	if got := h.eventNames(t, sub.ID); !reflect.DeepEqual(got, []string{events.Uploaded}) {
		t.Fatalf("events = %v", got)
	}
}

func TestAddFileRejectsInvalidModeBeforeUpload(t *testing.T) {
	h := newHarness(t, nil)
	src := filepath.Join(t.TempDir(), "story.wav")
	testsupport.WriteFile(t, src, 16)

	_, err := h.service.AddFile(context.Background(), "owner-1", src, submissions.UploadDetails{Mode: "LOUD"})
	if !errors.Is(err, submissions.ErrInvalidMode) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected invalid mode validation error, got %v", err)
	}
	list, err := h.service.List(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no submissions, got %d", len(list))
	}
}

func TestAddFileRollsBackWhenUploadFails(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.service.AddFile(context.Background(), "owner-1", filepath.Join(t.TempDir(), "missing.wav"), submissions.UploadDetails{})
	if err == nil {
		t.Fatal("expected upload error")
	}
	list, err := h.service.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected rollback, got %d submissions", len(list))
	}
	if n, _ := h.queue.Len(context.Background()); n != 0 {
		t.Fatalf("queue length = %d", n)
	}
}

func TestCreateWithoutPresignSupport(t *testing.T) {
	h := newHarness(t, nil)
	ticket, err := h.service.Create(context.Background(), "owner-1", "voice.webm", "audio/webm")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ticket.UploadURL != "" || ticket.UploadMethod != "" {
		t.Fatalf("local backend should not sign urls: %#v", ticket)
	}
	if ticket.Submission.Status != string(submissions.StatusCreated) {
		t.Fatalf("status = %q", ticket.Submission.Status)
	}
	if ticket.ObjectKey != "owner-1/"+ticket.Submission.ID+"/original.webm" {
		t.Fatalf("object key = %q", ticket.ObjectKey)
	}
	if n, _ := h.queue.Len(context.Background()); n != 0 {
		t.Fatalf("create must not enqueue, queue length %d", n)
	}
}

func TestCreateReturnsPresignedUpload(t *testing.T) {
	h := newHarness(t, func(l *objectstore.Local) objectstore.Store { return signingObjects{Local: l} })
	ticket, err := h.service.Create(context.Background(), "owner-1", "voice.webm", "audio/webm")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ticket.UploadMethod != "PUT" {
		t.Fatalf("method = %q", ticket.UploadMethod)
	}
	want := "https://signed.example/" + h.cfg.Storage.PrivateBucket + "/" + ticket.ObjectKey
	if !strings.HasPrefix(ticket.UploadURL, want) || !strings.Contains(ticket.UploadURL, "type=audio/webm") {
		t.Fatalf("upload url = %q", ticket.UploadURL)
	}
	if ticket.ExpiresAt == "" {
		t.Fatal("expected expiry")
	}
}

func TestCreatePresignFailureRollsBack(t *testing.T) {
	h := newHarness(t, func(l *objectstore.Local) objectstore.Store {
		return signingObjects{Local: l, err: errors.New("signer offline")}
	})
	_, err := h.service.Create(context.Background(), "owner-1", "voice.webm", "audio/webm")
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	list, err := h.service.List(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected rollback, got %d submissions", len(list))
	}
}

func TestOwnerMismatchIsNotFound(t *testing.T) {
	h := newHarness(t, nil)
	sub := testsupport.NewUploaded(t, h.cfg, h.store, "owner-1", submissions.ModeSoft, []byte("raw"))
	ctx := context.Background()

	if _, err := h.service.Get(ctx, "owner-2", sub.ID); !errors.Is(err, submissions.ErrNotFound) {
		t.Fatalf("Get other owner: %v", err)
	}
	if _, err := h.service.Events(ctx, "owner-2", sub.ID); !errors.Is(err, submissions.ErrNotFound) {
		t.Fatalf("Events other owner: %v", err)
	}
	if _, err := h.service.Reprocess(ctx, "owner-2", sub.ID); !errors.Is(err, submissions.ErrNotFound) {
		t.Fatalf("Reprocess other owner: %v", err)
	}
	if _, err := h.service.Cancel(ctx, "owner-2", sub.ID); !errors.Is(err, submissions.ErrNotFound) {
		t.Fatalf("Cancel other owner: %v", err)
	}
	if _, err := h.service.Get(ctx, "owner-1", "missing"); !errors.Is(err, submissions.ErrNotFound) {
		t.Fatalf("Get missing: %v", err)
	}

	got, err := h.service.Get(ctx, "owner-1", sub.ID)
	if err != nil || got.ID != sub.ID {
		t.Fatalf("Get owner = %#v, %v", got, err)
	}
	if _, err := h.service.Get(ctx, "", sub.ID); err != nil {
		t.Fatalf("operator Get: %v", err)
	}
}

func TestMarkUploadedEnqueues(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ticket, err := h.service.Create(ctx, "owner-1", "voice.webm", "audio/webm")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.writeObject(t, h.cfg.Storage.PrivateBucket, ticket.ObjectKey)

	coverKey := submissions.CoverImageKey("owner-1", ticket.Submission.ID, ".jpg")
	sub, err := h.service.MarkUploaded(ctx, "owner-1", ticket.Submission.ID, submissions.UploadDetails{
		Mode:          "strong",
		SuggestedTags: []string{"miedo"},
		CoverImageKey: coverKey,
	})
	if err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}
	if sub.AnonymizationMode != string(submissions.ModeStrong) || sub.CoverImageKey != coverKey {
		t.Fatalf("unexpected submission %#v", sub)
	}
	if !reflect.DeepEqual(sub.SuggestedTags, []string{"miedo"}) {
		t.Fatalf("suggested tags = %v", sub.SuggestedTags)
	}
	if got := h.dequeue(t); got != sub.ID {
		t.Fatalf("enqueued %q", got)
	}

	if _, err := h.service.MarkUploaded(ctx, "owner-1", sub.ID, submissions.UploadDetails{Mode: "LOUD"}); !errors.Is(err, submissions.ErrInvalidMode) {
		t.Fatalf("expected invalid mode, got %v", err)
	}
}

func TestMarkUploadedGuards(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	victim := testsupport.NewUploaded(t, h.cfg, h.store, "owner-2", submissions.ModeSoft, []byte("raw"))
	ticket, err := h.service.Create(ctx, "owner-1", "voice.webm", "audio/webm")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := ticket.Submission.ID

	_, err = h.service.MarkUploaded(ctx, "owner-1", id, submissions.UploadDetails{CoverImageKey: victim.RawAudioKey})
	if !errors.Is(err, submissions.ErrInvalidCoverKey) {
		t.Fatalf("expected invalid cover key, got %v", err)
	}
	if n, _ := h.queue.Len(ctx); n != 0 {
		t.Fatalf("rejected upload must not enqueue, queue length %d", n)
	}

	if _, err := h.service.MarkUploaded(ctx, "owner-1", id, submissions.UploadDetails{}); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}
	h.dequeue(t)
	sub, err := h.store.GetByID(ctx, id)
	if err != nil || sub == nil {
		t.Fatalf("GetByID = %v, %v", sub, err)
	}
	sub.Status = submissions.StatusRejected
	sub.Step = submissions.StepModerated
	if err := h.store.CommitStep(ctx, sub); err != nil {
		t.Fatalf("CommitStep: %v", err)
	}
	if _, err := h.service.MarkUploaded(ctx, "owner-1", id, submissions.UploadDetails{}); !errors.Is(err, submissions.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if n, _ := h.queue.Len(ctx); n != 0 {
		t.Fatalf("finished submission must not be enqueued, queue length %d", n)
	}
}

func TestCreateCoverUpload(t *testing.T) {
	h := newHarness(t, func(l *objectstore.Local) objectstore.Store { return signingObjects{Local: l} })
	ctx := context.Background()
	sub := testsupport.NewUploaded(t, h.cfg, h.store, "owner-1", submissions.ModeSoft, []byte("raw"))

	cover, err := h.service.CreateCoverUpload(ctx, "owner-1", sub.ID, "Portada.PNG", "image/png")
	if err != nil {
		t.Fatalf("CreateCoverUpload: %v", err)
	}
	if cover.ObjectKey != "owner-1/"+sub.ID+"/cover.png" {
		t.Fatalf("object key = %q", cover.ObjectKey)
	}
	want := "https://signed.example/" + h.cfg.Storage.PublicBucket + "/" + cover.ObjectKey
	if cover.UploadMethod != "PUT" || !strings.HasPrefix(cover.UploadURL, want) || cover.ExpiresAt == "" {
		t.Fatalf("unexpected ticket %#v", cover)
	}

	if _, err := h.service.CreateCoverUpload(ctx, "owner-1", sub.ID, "voz.webm", "audio/webm"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := h.service.CreateCoverUpload(ctx, "owner-2", sub.ID, "cara.png", "image/png"); !errors.Is(err, submissions.ErrNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
}

func TestCreateCoverUploadWithoutPresignSupport(t *testing.T) {
	h := newHarness(t, nil)
	sub := testsupport.NewUploaded(t, h.cfg, h.store, "owner-1", submissions.ModeOff, []byte("raw"))
	cover, err := h.service.CreateCoverUpload(context.Background(), "owner-1", sub.ID, "cara", "image/jpeg")
	if err != nil {
		t.Fatalf("CreateCoverUpload: %v", err)
	}
	if cover.ObjectKey != "owner-1/"+sub.ID+"/cover.jpg" || cover.UploadURL != "" || cover.UploadMethod != "" {
		t.Fatalf("unexpected ticket %#v", cover)
	}
}

func TestReprocessResetsAndEnqueues(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sub := testsupport.NewUploaded(t, h.cfg, h.store, "owner-1", submissions.ModeSoft, []byte("raw"))
	score := 70
	sub.Status = submissions.StatusRejected
	sub.Step = submissions.StepModerated
	sub.TranscriptPreview = "hola"
	sub.Verdict = "REJECT"
	sub.ViralityScore = &score
	if err := h.store.CommitStep(ctx, sub); err != nil {
		t.Fatalf("CommitStep: %v", err)
	}

	got, err := h.service.Reprocess(ctx, "owner-1", sub.ID)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if got.Status != string(submissions.StatusUploaded) || got.Step != 0 {
		t.Fatalf("unexpected state %#v", got)
	}
	if got.TranscriptPreview != "" || got.Moderation != nil || got.ViralityScore != nil {
		t.Fatalf("derived fields not cleared: %#v", got)
	}
	if id := h.dequeue(t); id != sub.ID {
		t.Fatalf("enqueued %q", id)
	}
	want := []string{events.Uploaded, events.ReprocessRequested}
	if names := h.eventNames(t, sub.ID); !reflect.DeepEqual(names, want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
}

func TestCancelPurgesObjects(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	sub := testsupport.NewUploaded(t, h.cfg, h.store, "owner-1", submissions.ModeSoft, []byte("raw"))
	sub.Step = submissions.StepPublished
	sub.Status = submissions.StatusApproved
	sub.PublicAudioKey = submissions.PublicAudioKey(sub.OwnerID, sub.ID)
	if err := h.store.CommitStep(ctx, sub); err != nil {
		t.Fatalf("CommitStep: %v", err)
	}
	paths := []string{
		h.objectPath(h.cfg.Storage.PrivateBucket, sub.RawAudioKey),
		h.writeObject(t, h.cfg.Storage.PublicBucket, sub.PublicAudioKey),
		h.writeObject(t, h.cfg.Storage.ArtifactsBucket, submissions.ArtifactKey(sub.OwnerID, sub.ID, "normalized.wav")),
		h.writeObject(t, h.cfg.Storage.ArtifactsBucket, submissions.ArtifactKey(sub.OwnerID, sub.ID, "anonymized.wav")),
	}

	if _, err := h.service.Cancel(ctx, "owner-1", sub.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("object %s still present: %v", path, err)
		}
	}
	if _, err := h.service.Get(ctx, "", sub.ID); !errors.Is(err, submissions.ErrNotFound) {
		t.Fatalf("expected deleted submission, got %v", err)
	}
	all, err := h.service.EventsBetween(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("events not deleted: %v", all)
	}
}

func TestCancelIgnoresStorageFailures(t *testing.T) {
	h := newHarness(t, func(l *objectstore.Local) objectstore.Store { return failingDeletes{Local: l} })
	sub := testsupport.NewUploaded(t, h.cfg, h.store, "owner-1", submissions.ModeSoft, []byte("raw"))

	got, err := h.service.Cancel(context.Background(), "owner-1", sub.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.ID != sub.ID {
		t.Fatalf("cancelled %q", got.ID)
	}
	if _, err := h.service.Get(context.Background(), "", sub.ID); !errors.Is(err, submissions.ErrNotFound) {
		t.Fatalf("row should be gone, got %v", err)
	}
}

func publish(t *testing.T, h *harness, owner string, at time.Time, score int) *submissions.Submission {
	t.Helper()
	sub := testsupport.NewUploaded(t, h.cfg, h.store, owner, submissions.ModeSoft, []byte("raw"))
	sub.Status = submissions.StatusApproved
	sub.Step = submissions.StepPublished
	sub.Title = "Titulo " + sub.ID[:4]
	sub.Summary = "Resumen"
	sub.Tags = []string{"historia", "anonimo", "vida"}
	sub.ViralityScore = &score
	sub.PublicAudioKey = submissions.PublicAudioKey(sub.OwnerID, sub.ID)
	sub.PublishedAt = &at
	if err := h.store.CommitStep(context.Background(), sub); err != nil {
		t.Fatalf("CommitStep: %v", err)
	}
	return sub
}

func TestFeedNewestFirstWithSignedURLs(t *testing.T) {
	h := newHarness(t, func(l *objectstore.Local) objectstore.Store { return signingObjects{Local: l} })
	now := time.Now().UTC()
	older := publish(t, h, "owner-1", now.Add(-time.Hour), 40)
	newer := publish(t, h, "owner-2", now, 90)
	testsupport.NewUploaded(t, h.cfg, h.store, "owner-3", submissions.ModeSoft, []byte("raw"))

	feed, err := h.service.Feed(context.Background(), 10)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(feed) != 2 || feed[0].ID != newer.ID || feed[1].ID != older.ID {
		t.Fatalf("unexpected feed order %#v", feed)
	}
	if !feed[0].HighPotential || feed[1].HighPotential {
		t.Fatalf("high potential flags wrong: %#v", feed)
	}
	want := "https://signed.example/" + h.cfg.Storage.PublicBucket + "/" + newer.PublicAudioKey
	if feed[0].AudioURL != want {
		t.Fatalf("audio url = %q, want %q", feed[0].AudioURL, want)
	}
	if feed[0].CoverURL != "" {
		t.Fatalf("no cover expected, got %q", feed[0].CoverURL)
	}

	limited, err := h.service.Feed(context.Background(), 1)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != newer.ID {
		t.Fatalf("limited feed = %#v", limited)
	}
}

func TestStatsCountsEveryStatus(t *testing.T) {
	h := newHarness(t, nil)
	testsupport.NewUploaded(t, h.cfg, h.store, "owner-1", submissions.ModeSoft, []byte("raw"))
	if _, err := h.service.Create(context.Background(), "owner-1", "a.wav", "audio/wav"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := h.queue.Enqueue(context.Background(), "x"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	stats, err := h.service.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Counts[string(submissions.StatusUploaded)] != 1 || stats.Counts[string(submissions.StatusCreated)] != 1 {
		t.Fatalf("counts = %v", stats.Counts)
	}
	if _, ok := stats.Counts[string(submissions.StatusApproved)]; !ok {
		t.Fatalf("every status should be present: %v", stats.Counts)
	}
	if stats.QueueDepth != 1 {
		t.Fatalf("queue depth = %d", stats.QueueDepth)
	}
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	if _, err := api.NewService(api.ServiceOptions{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
