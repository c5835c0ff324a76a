package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"winivox/internal/config"
	"winivox/internal/events"
	"winivox/internal/logging"
	"winivox/internal/objectstore"
	"winivox/internal/services"
	"winivox/internal/submissions"
	"winivox/internal/workqueue"
)

const purgeConcurrency = 4

// ServiceOptions wires a Service.
type ServiceOptions struct {
	Store      *submissions.Store
	Queue      workqueue.Queue
	Objects    objectstore.Store
	Storage    config.Storage
	PresignTTL time.Duration
	Logger     *slog.Logger
}

// Service exposes owner-scoped submission operations returning API DTOs.
// An empty owner addresses every submission and is reserved for operators.
type Service struct {
	store   *submissions.Store
	log     *events.Log
	queue   workqueue.Queue
	objects objectstore.Store
	storage config.Storage
	ttl     time.Duration
	logger  *slog.Logger
}

// NewService validates opts.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Store == nil || opts.Queue == nil || opts.Objects == nil {
		return nil, services.Wrap(services.ErrConfiguration, "api", "init", "store, queue and object store required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ttl := opts.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		store:   opts.Store,
		log:     events.NewLog(opts.Store.DB()),
		queue:   opts.Queue,
		objects: opts.Objects,
		storage: opts.Storage,
		ttl:     ttl,
		logger:  logging.NewComponentLogger(logger, "api"),
	}, nil
}

// Create registers a submission and, when the backend can sign URLs, returns
// a presigned PUT for its raw audio.
func (s *Service) Create(ctx context.Context, owner, filename, contentType string) (UploadTicket, error) {
	sub, err := s.store.Create(ctx, owner, filename)
	if err != nil {
		return UploadTicket{}, services.Wrap(services.ErrValidation, "api", "create", "create submission", err)
	}
	ticket := UploadTicket{
		Submission: FromSubmission(sub),
		ObjectKey:  sub.RawAudioKey,
	}
	url, err := objectstore.Presign(ctx, s.objects, "PUT", s.storage.PrivateBucket, sub.RawAudioKey, contentType, s.ttl)
	switch {
	case errors.Is(err, objectstore.ErrPresignUnsupported):
		return ticket, nil
	case err != nil:
		if _, derr := s.store.Delete(ctx, sub.ID); derr != nil {
			s.logger.Warn("rollback after presign failure failed",
				logging.String(logging.FieldSubmissionID, sub.ID),
				logging.Error(derr),
			)
		}
		return UploadTicket{}, services.Wrap(services.ErrStorage, "api", "create", "storage unavailable", err)
	}
	ticket.UploadURL = url
	ticket.UploadMethod = "PUT"
	ticket.ExpiresAt = FormatTime(time.Now().Add(s.ttl))
	return ticket, nil
}

// CreateCoverUpload returns a presigned PUT for the submission's cover image
// in the public bucket. The key is derived from the submission, so a cover
// can only ever land under its own {owner}/{id}/ prefix.
func (s *Service) CreateCoverUpload(ctx context.Context, owner, id, filename, contentType string) (CoverTicket, error) {
	contentType = strings.TrimSpace(contentType)
	if !strings.HasPrefix(contentType, "image/") {
		return CoverTicket{}, services.Wrap(services.ErrValidation, "api", "cover", "content type must be image/*", nil)
	}
	sub, err := s.owned(ctx, owner, id)
	if err != nil {
		return CoverTicket{}, err
	}
	key := submissions.CoverImageKey(sub.OwnerID, sub.ID, filepath.Ext(strings.TrimSpace(filename)))
	ticket := CoverTicket{ObjectKey: key}
	url, err := objectstore.Presign(ctx, s.objects, "PUT", s.storage.PublicBucket, key, contentType, s.ttl)
	switch {
	case errors.Is(err, objectstore.ErrPresignUnsupported):
		return ticket, nil
	case err != nil:
		return CoverTicket{}, services.Wrap(services.ErrStorage, "api", "cover", "storage unavailable", err)
	}
	ticket.UploadURL = url
	ticket.UploadMethod = "PUT"
	ticket.ExpiresAt = FormatTime(time.Now().Add(s.ttl))
	return ticket, nil
}

// AddFile creates a submission, uploads the local file as its raw audio and
// marks it uploaded.
func (s *Service) AddFile(ctx context.Context, owner, localPath string, details submissions.UploadDetails) (Submission, error) {
	details, err := normalizeDetails(details)
	if err != nil {
		return Submission{}, err
	}
	sub, err := s.store.Create(ctx, owner, filepath.Base(localPath))
	if err != nil {
		return Submission{}, services.Wrap(services.ErrValidation, "api", "add", "create submission", err)
	}
	if err := s.objects.Upload(ctx, localPath, s.storage.PrivateBucket, sub.RawAudioKey); err != nil {
		if _, derr := s.store.Delete(ctx, sub.ID); derr != nil {
			s.logger.Warn("rollback after upload failure failed",
				logging.String(logging.FieldSubmissionID, sub.ID),
				logging.Error(derr),
			)
		}
		return Submission{}, err
	}
	s.logger.Info("raw audio uploaded",
		logging.String(logging.FieldSubmissionID, sub.ID),
		logging.String("object_key", sub.RawAudioKey),
	)
	return s.MarkUploaded(ctx, owner, sub.ID, details)
}

// MarkUploaded records upload completion and enqueues the submission. A
// repeated call for an UPLOADED submission enqueues it again without changing
// the row; later statuses are refused with submissions.ErrInvalidTransition.
func (s *Service) MarkUploaded(ctx context.Context, owner, id string, details submissions.UploadDetails) (Submission, error) {
	details, err := normalizeDetails(details)
	if err != nil {
		return Submission{}, err
	}
	if _, err := s.owned(ctx, owner, id); err != nil {
		return Submission{}, err
	}
	sub, err := s.store.MarkUploaded(ctx, id, details)
	if err != nil {
		return Submission{}, err
	}
	if err := s.enqueue(ctx, sub.ID); err != nil {
		return FromSubmission(sub), err
	}
	return FromSubmission(sub), nil
}

// Reprocess resets a submission to step zero and enqueues it again.
func (s *Service) Reprocess(ctx context.Context, owner, id string) (Submission, error) {
	if _, err := s.owned(ctx, owner, id); err != nil {
		return Submission{}, err
	}
	sub, err := s.store.Reprocess(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if err := s.enqueue(ctx, sub.ID); err != nil {
		return FromSubmission(sub), err
	}
	return FromSubmission(sub), nil
}

// Cancel deletes a submission with its events and purges its objects. Object
// deletion is best effort.
func (s *Service) Cancel(ctx context.Context, owner, id string) (Submission, error) {
	if _, err := s.owned(ctx, owner, id); err != nil {
		return Submission{}, err
	}
	sub, err := s.store.Delete(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	s.purge(ctx, sub)
	s.logger.Info("submission cancelled", logging.String(logging.FieldSubmissionID, sub.ID))
	return FromSubmission(sub), nil
}

type objectRef struct {
	bucket string
	key    string
}

func (s *Service) purge(ctx context.Context, sub *submissions.Submission) {
	private, public, artifacts := sub.ObjectKeys()
	var refs []objectRef
	for _, key := range private {
		refs = append(refs, objectRef{s.storage.PrivateBucket, key})
	}
	for _, key := range public {
		refs = append(refs, objectRef{s.storage.PublicBucket, key})
	}
	for _, key := range artifacts {
		refs = append(refs, objectRef{s.storage.ArtifactsBucket, key})
	}

	var g errgroup.Group
	g.SetLimit(purgeConcurrency)
	for _, ref := range refs {
		g.Go(func() error {
			if err := s.objects.Delete(ctx, ref.bucket, ref.key); err != nil {
				s.logger.Warn("object purge failed",
					logging.String(logging.FieldSubmissionID, sub.ID),
					logging.String("bucket", ref.bucket),
					logging.String("object_key", ref.key),
					logging.Error(err),
				)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.WarnWithContext(s.logger, "objects left behind after cancel", "purge_incomplete",
			logging.String(logging.FieldSubmissionID, sub.ID),
			logging.String(logging.FieldErrorHint, "delete the listed keys manually"),
			logging.String(logging.FieldImpact, "orphaned objects remain in storage"),
			logging.Error(err),
		)
	}
}

// Get returns one submission.
func (s *Service) Get(ctx context.Context, owner, id string) (Submission, error) {
	sub, err := s.owned(ctx, owner, id)
	if err != nil {
		return Submission{}, err
	}
	return FromSubmission(sub), nil
}

// List returns an owner's submissions newest first.
func (s *Service) List(ctx context.Context, owner string, statuses ...submissions.Status) ([]Submission, error) {
	list, err := s.store.List(ctx, submissions.Filter{OwnerID: owner, Statuses: statuses})
	if err != nil {
		return nil, err
	}
	return FromSubmissions(list), nil
}

// Feed returns published stories, most recently published first, with signed
// download URLs when the backend supports them.
func (s *Service) Feed(ctx context.Context, limit int) ([]FeedItem, error) {
	list, err := s.store.Feed(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]FeedItem, 0, len(list))
	for _, sub := range list {
		item := FromFeedEntry(sub)
		item.AudioURL = s.signedGet(ctx, sub.PublicAudioKey)
		item.CoverURL = s.signedGet(ctx, sub.CoverImageKey)
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) signedGet(ctx context.Context, key string) string {
	if strings.TrimSpace(key) == "" {
		return ""
	}
	url, err := objectstore.Presign(ctx, s.objects, "GET", s.storage.PublicBucket, key, "", s.ttl)
	if err != nil {
		if !errors.Is(err, objectstore.ErrPresignUnsupported) {
			s.logger.Debug("presign get failed", logging.String("object_key", key), logging.Error(err))
		}
		return ""
	}
	return url
}

// Events returns a submission's events in append order.
func (s *Service) Events(ctx context.Context, owner, id string) ([]Event, error) {
	if _, err := s.owned(ctx, owner, id); err != nil {
		return nil, err
	}
	list, err := s.log.ForSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromEvents(list), nil
}

// EventsBetween returns every event in [from, to). Zero bounds are open.
func (s *Service) EventsBetween(ctx context.Context, from, to time.Time) ([]Event, error) {
	list, err := s.log.Between(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return FromEvents(list), nil
}

// Stats returns submission counts and the number of waiting queue messages.
func (s *Service) Stats(ctx context.Context) (StatsResponse, error) {
	counts, err := s.store.Stats(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	depth, err := s.queue.Len(ctx)
	if err != nil {
		return StatsResponse{}, err
	}
	return StatsResponse{Counts: MergeStats(counts), QueueDepth: depth}, nil
}

func (s *Service) owned(ctx context.Context, owner, id string) (*submissions.Submission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, submissions.ErrNotFound
	}
	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, submissions.ErrNotFound
	}
	if owner = strings.TrimSpace(owner); owner != "" && sub.OwnerID != owner {
		return nil, submissions.ErrNotFound
	}
	return sub, nil
}

func normalizeDetails(details submissions.UploadDetails) (submissions.UploadDetails, error) {
	if strings.TrimSpace(string(details.Mode)) == "" {
		details.Mode = submissions.DefaultMode
		return details, nil
	}
	mode, err := submissions.ParseMode(string(details.Mode))
	if err != nil {
		return details, services.Wrap(services.ErrValidation, "api", "upload", "invalid anonymization mode", err)
	}
	details.Mode = mode
	return details, nil
}

func (s *Service) enqueue(ctx context.Context, id string) error {
	if err := s.queue.Enqueue(ctx, id); err != nil {
		return services.Wrap(services.ErrTransient, "api", "enqueue", fmt.Sprintf("queue unavailable for %s", id), err)
	}
	s.logger.Debug("submission enqueued", logging.String(logging.FieldSubmissionID, id))
	return nil
}
