package submissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"winivox/internal/events"
)

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getByID(ctx context.Context, q rowQuerier, id string) (*Submission, error) {
	row := q.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM audio_submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// Create inserts a CREATED submission and assigns the private object key its
// raw audio must be uploaded to.
func (s *Store) Create(ctx context.Context, ownerID, filename string) (*Submission, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, errors.New("create submission: owner required")
	}
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if ext == "" {
		ext = ".bin"
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	sub := &Submission{
		ID:          id,
		OwnerID:     ownerID,
		Status:      StatusCreated,
		Step:        StepNone,
		Mode:        DefaultMode,
		RawAudioKey: RawAudioKey(ownerID, id, ext),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO audio_submissions (
            id, owner_id, status, processing_step, anonymization_mode, raw_audio_key, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.OwnerID, sub.Status, int(sub.Step), sub.Mode, sub.RawAudioKey,
		formatTime(now), formatTime(now),
	); err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

// GetByID fetches a submission by identifier. A missing row yields nil, nil.
func (s *Store) GetByID(ctx context.Context, id string) (*Submission, error) {
	return getByID(ensureContext(ctx), s.db, id)
}

// List returns submissions newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM audio_submissions WHERE 1=1`
	var args []any
	if owner := strings.TrimSpace(filter.OwnerID); owner != "" {
		query += ` AND owner_id = ?`
		args = append(args, owner)
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + makePlaceholders(len(filter.Statuses)) + `)`
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.query(ctx, query, args...)
}

// Feed returns published submissions, most recently published first.
func (s *Store) Feed(ctx context.Context, limit int) ([]*Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM audio_submissions
        WHERE status = ? AND published_at IS NOT NULL
        ORDER BY published_at DESC, id`
	args := []any{StatusApproved}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// Unfinished returns the ids of submissions that are UPLOADED or PROCESSING,
// oldest first. A worker re-enqueues them at start so runs cut short by a
// crash resume from their last committed step.
func (s *Store) Unfinished(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id FROM audio_submissions WHERE status IN (?, ?) ORDER BY created_at, id`,
		StatusUploaded, StatusProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("query unfinished submissions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unfinished submission: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()
	var result []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

// MarkProcessing flips an UPLOADED submission to PROCESSING. It reports
// whether the row changed.
func (s *Store) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE audio_submissions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusProcessing, formatTime(time.Now()), id, StatusUploaded,
	)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	return affected > 0, nil
}

// CommitStep persists the pipeline-owned fields of sub and appends records in
// a single transaction. The stored step counter may only stay or grow.
func (s *Store) CommitStep(ctx context.Context, sub *Submission, records ...events.Record) error {
	ctx = ensureContext(ctx)
	if sub == nil {
		return errors.New("commit step: submission is nil")
	}
	sub.UpdatedAt = time.Now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		tags, err := encodeTags(sub.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE audio_submissions
             SET status = ?, processing_step = ?, public_audio_key = ?, transcript_preview = ?,
                 title = ?, summary = ?, tags_json = ?, virality_score = ?,
                 moderation_verdict = ?, moderation_json = ?, updated_at = ?, published_at = ?
             WHERE id = ? AND processing_step <= ?`,
			sub.Status,
			int(sub.Step),
			nullableString(sub.PublicAudioKey),
			nullableString(sub.TranscriptPreview),
			nullableString(sub.Title),
			nullableString(sub.Summary),
			tags,
			nullableInt(sub.ViralityScore),
			nullableString(sub.Verdict),
			nullableString(sub.ModerationJSON),
			formatTime(sub.UpdatedAt),
			nullableTime(sub.PublishedAt),
			sub.ID,
			int(sub.Step),
		)
		if err != nil {
			return fmt.Errorf("commit step %s: %w", sub.Step, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("commit step %s: %w", sub.Step, err)
		}
		if affected == 0 {
			existing, err := getByID(ctx, tx, sub.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				return ErrNotFound
			}
			return fmt.Errorf("%w: stored %s, attempted %s", ErrStepRegression, existing.Step, sub.Step)
		}
		for _, rec := range records {
			if _, err := events.Append(ctx, tx, sub.ID, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkUploaded records upload completion details and moves a CREATED
// submission to UPLOADED together with its audio.uploaded event. An UPLOADED
// submission is returned unchanged; any later status yields
// ErrInvalidTransition since only Reprocess may restart a run.
func (s *Store) MarkUploaded(ctx context.Context, id string, details UploadDetails) (*Submission, error) {
	ctx = ensureContext(ctx)
	mode := details.Mode
	if mode == "" {
		mode = DefaultMode
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	var result *Submission
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sub, err := getByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrNotFound
		}
		switch sub.Status {
		case StatusCreated:
		case StatusUploaded:
			result = sub
			return nil
		default:
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, sub.Status, StatusUploaded)
		}
		if key := strings.TrimSpace(details.CoverImageKey); key != "" {
			if !sub.OwnsKey(key) {
				return fmt.Errorf("%w: %q", ErrInvalidCoverKey, key)
			}
			sub.CoverImageKey = key
		}
		sub.Status = StatusUploaded
		sub.Mode = mode
		sub.Description = strings.TrimSpace(details.Description)
		sub.SuggestedTags = details.SuggestedTags
		sub.UpdatedAt = time.Now().UTC()
		suggested, err := encodeTags(sub.SuggestedTags)
		if err != nil {
			return fmt.Errorf("encode suggested tags: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE audio_submissions
             SET status = ?, anonymization_mode = ?, description = ?, suggested_tags_json = ?,
                 cover_image_key = ?, updated_at = ?
             WHERE id = ?`,
			sub.Status, sub.Mode, nullableString(sub.Description), suggested,
			nullableString(sub.CoverImageKey), formatTime(sub.UpdatedAt), sub.ID,
		); err != nil {
			return fmt.Errorf("mark uploaded: %w", err)
		}
		if _, err := events.Append(ctx, tx, sub.ID, events.New(events.Uploaded, map[string]any{
			"object_key": sub.RawAudioKey,
		})); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reprocess resets a submission to UPLOADED at step zero, clearing every
// derived field, and records audio.reprocess_requested.
func (s *Store) Reprocess(ctx context.Context, id string) (*Submission, error) {
	ctx = ensureContext(ctx)
	var result *Submission
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sub, err := getByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrNotFound
		}
		if strings.TrimSpace(sub.RawAudioKey) == "" {
			return ErrNoAudio
		}
		sub.clearDerived()
		sub.Status = StatusUploaded
		sub.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE audio_submissions
             SET status = ?, processing_step = 0, public_audio_key = NULL, transcript_preview = NULL,
                 title = NULL, summary = NULL, tags_json = NULL, virality_score = NULL,
                 moderation_verdict = NULL, moderation_json = NULL, published_at = NULL, updated_at = ?
             WHERE id = ?`,
			sub.Status, formatTime(sub.UpdatedAt), sub.ID,
		); err != nil {
			return fmt.Errorf("reprocess: %w", err)
		}
		if _, err := events.Append(ctx, tx, sub.ID, events.New(events.ReprocessRequested, nil)); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a submission and its events in one transaction and returns
// the deleted row so the caller can purge its objects.
func (s *Store) Delete(ctx context.Context, id string) (*Submission, error) {
	ctx = ensureContext(ctx)
	var deleted *Submission
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sub, err := getByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return ErrNotFound
		}
		if _, err := events.DeleteForSubmission(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM audio_submissions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete submission: %w", err)
		}
		deleted = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Stats returns submission counts keyed by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(*) FROM audio_submissions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("submission stats: %w", err)
	}
	defer rows.Close()
	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}
