package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const eventColumns = "seq, id, event_name, event_version, submission_id, timestamp, payload"

// Log reads and writes the events table.
type Log struct {
	db *sql.DB
}

// NewLog wraps an open database that already carries the events table.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Record appends a standalone event outside any caller transaction.
func (l *Log) Record(ctx context.Context, name, submissionID string, payload map[string]any) (Event, error) {
	return Append(ctx, l.db, submissionID, New(name, payload))
}

// ForSubmission returns a submission's events in the order they were recorded.
func (l *Log) ForSubmission(ctx context.Context, submissionID string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE submission_id = ? ORDER BY seq`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Between returns events whose timestamp falls within [from, to).
// A zero bound is open.
func (l *Log) Between(ctx context.Context, from, to time.Time) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []any
	if !from.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, from.UTC().Format(timeLayout))
	}
	if !to.IsZero() {
		query += ` AND timestamp < ?`
		args = append(args, to.UTC().Format(timeLayout))
	}
	query += ` ORDER BY seq`
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Names is a convenience for tests and CLI output.
func Names(list []Event) []string {
	names := make([]string, 0, len(list))
	for _, evt := range list {
		names = append(names, evt.Name)
	}
	return names
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var result []Event
	for rows.Next() {
		var (
			evt        Event
			subID      sql.NullString
			tsRaw      string
			payloadRaw sql.NullString
		)
		if err := rows.Scan(&evt.Seq, &evt.ID, &evt.Name, &evt.Version, &subID, &tsRaw, &payloadRaw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.SubmissionID = subID.String
		if ts, err := time.Parse(time.RFC3339Nano, tsRaw); err == nil {
			evt.Timestamp = ts
		}
		evt.Payload = map[string]any{}
		if payloadRaw.Valid && payloadRaw.String != "" {
			if err := json.Unmarshal([]byte(payloadRaw.String), &evt.Payload); err != nil {
				return nil, fmt.Errorf("decode event %s payload: %w", evt.ID, err)
			}
		}
		result = append(result, evt)
	}
	return result, rows.Err()
}
