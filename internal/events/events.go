package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event names recorded by the pipeline and the submission lifecycle.
const (
	Uploaded           = "audio.uploaded"
	Normalized         = "audio.normalized"
	Transcribed        = "audio.transcribed"
	Moderated          = "audio.moderated"
	Rejected           = "audio.rejected"
	Quarantined        = "audio.quarantined"
	Tagged             = "audio.tagged"
	Anonymized         = "audio.anonymized"
	Published          = "audio.published"
	ReprocessRequested = "audio.reprocess_requested"
)

// Version is stamped on every row so consumers can evolve payload shapes.
const Version = 1

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Event is one immutable audit fact.
type Event struct {
	Seq          int64
	ID           string
	Name         string
	Version      int
	SubmissionID string
	Timestamp    time.Time
	Payload      map[string]any
}

// Record is an event waiting to be appended.
type Record struct {
	Name    string
	Payload map[string]any
}

// New builds a Record, tolerating a nil payload.
func New(name string, payload map[string]any) Record {
	return Record{Name: name, Payload: payload}
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append inserts one event row using exec. Pass a transaction to bind the
// event to the caller's commit.
func Append(ctx context.Context, exec Execer, submissionID string, rec Record) (Event, error) {
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		return Event{}, errors.New("append event: name required")
	}
	payload := rec.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("append event %s: encode payload: %w", name, err)
	}
	evt := Event{
		ID:           strings.ReplaceAll(uuid.NewString(), "-", ""),
		Name:         name,
		Version:      Version,
		SubmissionID: submissionID,
		Timestamp:    time.Now().UTC(),
		Payload:      payload,
	}
	res, err := exec.ExecContext(ctx,
		`INSERT INTO events (id, event_name, event_version, submission_id, timestamp, payload)
         VALUES (?, ?, ?, ?, ?, ?)`,
		evt.ID, evt.Name, evt.Version, nullableString(submissionID), evt.Timestamp.Format(timeLayout), string(encoded),
	)
	if err != nil {
		return Event{}, fmt.Errorf("append event %s: %w", name, err)
	}
	if seq, err := res.LastInsertId(); err == nil {
		evt.Seq = seq
	}
	return evt, nil
}

// DeleteForSubmission removes every event tied to a submission. Only the
// cancellation path calls this.
func DeleteForSubmission(ctx context.Context, exec Execer, submissionID string) (int64, error) {
	res, err := exec.ExecContext(ctx, `DELETE FROM events WHERE submission_id = ?`, submissionID)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return res.RowsAffected()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
