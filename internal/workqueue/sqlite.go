package workqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"winivox/internal/services"
)

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLite keeps the queue in the work_queue table of the submissions database
// so a single-host deployment needs no broker.
type SQLite struct {
	db   *sql.DB
	name string
	poll time.Duration
}

// NewSQLite binds a queue name to db. poll is how often an empty queue is
// re-checked while a Dequeue waits.
func NewSQLite(db *sql.DB, name string, poll time.Duration) *SQLite {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &SQLite{db: db, name: name, poll: poll}
}

func (q *SQLite) Enqueue(ctx context.Context, id string) error {
	id, err := validID(id)
	if err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO work_queue (queue_name, submission_id, enqueued_at) VALUES (?, ?, ?)`,
		q.name, id, time.Now().UTC().Format(sqliteTimeLayout),
	); err != nil {
		return services.Wrap(services.ErrTransient, "workqueue", "enqueue", "insert queue row", err)
	}
	return nil
}

func (q *SQLite) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		id, ok, err := q.pop(ctx)
		if err != nil || ok {
			return id, ok, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false, nil
		}
		wait := q.poll
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

func (q *SQLite) pop(ctx context.Context) (string, bool, error) {
	var id string
	err := q.db.QueryRowContext(ctx,
		`DELETE FROM work_queue
         WHERE seq = (SELECT seq FROM work_queue WHERE queue_name = ? ORDER BY seq LIMIT 1)
         RETURNING submission_id`,
		q.name,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, services.Wrap(services.ErrTransient, "workqueue", "dequeue", "pop queue row", err)
	}
	return id, true, nil
}

func (q *SQLite) Len(ctx context.Context) (int, error) {
	var count int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM work_queue WHERE queue_name = ?`, q.name,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count queue rows: %w", err)
	}
	return count, nil
}

// Close is a no-op; the database belongs to the submissions store.
func (q *SQLite) Close() error {
	return nil
}
