// Package workqueue carries submission identifiers from the upload path to
// the worker. The queue holds identifiers only; submission state lives in the
// submissions store, so a lost or duplicated message is harmless.
package workqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"winivox/internal/config"
	"winivox/internal/services"
)

// ErrClosed is returned by operations on a queue after Close.
var ErrClosed = errors.New("work queue closed")

// Queue is a FIFO of submission identifiers.
type Queue interface {
	// Enqueue appends id to the tail of the queue.
	Enqueue(ctx context.Context, id string) error
	// Dequeue waits up to timeout for the head of the queue. ok is false when
	// the wait expired without a message.
	Dequeue(ctx context.Context, timeout time.Duration) (id string, ok bool, err error)
	// Len reports the number of waiting messages.
	Len(ctx context.Context) (int, error)
	Close() error
}

// New builds the queue selected by cfg. db is required for the sqlite backend
// and ignored otherwise.
func New(cfg *config.Config, db *sql.DB) (Queue, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workqueue", "init", "config is nil", nil)
	}
	name := strings.TrimSpace(cfg.Queue.Name)
	switch strings.ToLower(strings.TrimSpace(cfg.Queue.Backend)) {
	case config.QueueBackendMemory:
		return NewMemory(), nil
	case config.QueueBackendRedis:
		return NewRedis(cfg.Queue.RedisURL, name)
	case config.QueueBackendSQLite, "":
		if db == nil {
			return nil, services.Wrap(services.ErrConfiguration, "workqueue", "init", "sqlite queue requires a database", nil)
		}
		return NewSQLite(db, name, cfg.PollInterval()), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "workqueue", "init",
			fmt.Sprintf("unsupported queue backend %q", cfg.Queue.Backend), nil)
	}
}

func validID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", services.Wrap(services.ErrValidation, "workqueue", "enqueue", "submission id required", nil)
	}
	return id, nil
}
