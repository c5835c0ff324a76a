// Package worker drains the work queue one submission at a time.
//
// The loop never exits because a single submission failed: errors and panics
// from the executor are logged, reported as notifications, and followed by a
// short pause. Only one worker may run per data directory; Run holds a file
// lock for its whole lifetime.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"winivox/internal/logging"
	"winivox/internal/notifications"
	"winivox/internal/services"
	"winivox/internal/workqueue"
)

// Advancer runs the pipeline for one submission.
type Advancer interface {
	Advance(ctx context.Context, id string) error
}

// Backlog lists submissions whose runs have not finished.
type Backlog interface {
	Unfinished(ctx context.Context) ([]string, error)
}

// ErrLocked is returned by Run when another worker holds the lock.
var ErrLocked = errors.New("another winivox worker is already running")

// Options configures a Worker.
type Options struct {
	Queue          workqueue.Queue
	Executor       Advancer
	Notifier       notifications.Service
	Backlog        Backlog
	Logger         *slog.Logger
	DequeueTimeout time.Duration
	ErrorPause     time.Duration
	// LockPath enables single-instance enforcement when set.
	LockPath string
}

// Stats counts finished submissions since start.
type Stats struct {
	Processed int64
	Failed    int64
}

// Worker is the queue consumer.
type Worker struct {
	queue    workqueue.Queue
	exec     Advancer
	notifier notifications.Service
	backlog  Backlog
	logger   *slog.Logger
	timeout  time.Duration
	pause    time.Duration
	lockPath string

	processed atomic.Int64
	failed    atomic.Int64
}

// New validates opts.
func New(opts Options) (*Worker, error) {
	if opts.Queue == nil || opts.Executor == nil {
		return nil, services.Wrap(services.ErrConfiguration, "worker", "init", "queue and executor required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	timeout := opts.DequeueTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pause := opts.ErrorPause
	if pause < 0 {
		pause = 0
	}
	return &Worker{
		queue:    opts.Queue,
		exec:     opts.Executor,
		notifier: notifier,
		backlog:  opts.Backlog,
		logger:   logging.NewComponentLogger(logger, "worker"),
		timeout:  timeout,
		pause:    pause,
		lockPath: strings.TrimSpace(opts.LockPath),
	}, nil
}

// Stats returns the counters.
func (w *Worker) Stats() Stats {
	return Stats{Processed: w.processed.Load(), Failed: w.failed.Load()}
}

// Run consumes the queue until ctx is cancelled or the queue is closed.
func (w *Worker) Run(ctx context.Context) error {
	if w.lockPath != "" {
		lock := flock.New(w.lockPath)
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire worker lock: %w", err)
		}
		if !ok {
			return ErrLocked
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				w.logger.Warn("failed to release worker lock", logging.Error(err))
			}
		}()
	}

	if err := w.requeueBacklog(ctx); err != nil {
		return err
	}

	w.logger.Info("worker started",
		logging.String(logging.FieldEventType, "worker_start"),
		logging.Duration("dequeue_timeout", w.timeout),
		logging.String("lock", w.lockPath),
	)
	defer w.logger.Info("worker stopped",
		logging.String(logging.FieldEventType, "worker_stop"),
		logging.Int64("processed", w.processed.Load()),
		logging.Int64("failed", w.failed.Load()),
	)

	for {
		if ctx.Err() != nil {
			return nil
		}
		id, ok, err := w.queue.Dequeue(ctx, w.timeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, workqueue.ErrClosed) {
				return nil
			}
			logging.ErrorWithContext(w.logger, "dequeue failed", "dequeue_failure",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the queue backend connection"),
			)
			w.sleep(ctx)
			continue
		}
		if !ok {
			continue
		}
		if err := w.Process(ctx, id); err != nil {
			w.sleep(ctx)
		}
	}
}

// requeueBacklog enqueues every unfinished submission. Dequeue removes a
// message before its run starts, so a run cut short by a crash has no queue
// entry left. Duplicates are harmless because Advance skips committed steps.
func (w *Worker) requeueBacklog(ctx context.Context) error {
	if w.backlog == nil {
		return nil
	}
	ids, err := w.backlog.Unfinished(ctx)
	if err != nil {
		return fmt.Errorf("list unfinished submissions: %w", err)
	}
	for _, id := range ids {
		if err := w.queue.Enqueue(ctx, id); err != nil {
			return fmt.Errorf("requeue %s: %w", id, err)
		}
	}
	if len(ids) > 0 {
		w.logger.Info("requeued unfinished submissions",
			logging.String(logging.FieldEventType, "backlog_requeued"),
			logging.Int("count", len(ids)),
		)
	}
	return nil
}

// Process advances one submission, converting panics into errors. Failures
// are logged and notified before being returned.
func (w *Worker) Process(ctx context.Context, id string) (err error) {
	ctx = services.WithRequestID(services.WithSubmissionID(ctx, id), uuid.NewString())
	logger := logging.WithContext(ctx, w.logger)
	start := time.Now()
	logger.Info("processing submission", logging.String(logging.FieldEventType, "submission_start"))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s: %v", id, r)
			logger.Debug("panic stack", logging.String("stack", string(debug.Stack())))
		}
		if err != nil {
			w.failed.Add(1)
			logging.ErrorWithContext(logger, "submission processing failed", "submission_failure",
				logging.Error(err),
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.String(logging.FieldErrorHint, "the submission resumes from its last completed step when requeued"),
				logging.Duration("duration", time.Since(start)),
			)
			if notifyErr := w.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
				"submission_id": id,
				"context":       "submission " + id,
				"error":         err.Error(),
			}); notifyErr != nil {
				logger.Debug("error notification failed", logging.Error(notifyErr))
			}
			return
		}
		w.processed.Add(1)
		logger.Info("submission processed",
			logging.String(logging.FieldEventType, "submission_complete"),
			logging.Duration("duration", time.Since(start)),
		)
	}()

	return w.exec.Advance(ctx, id)
}

func (w *Worker) sleep(ctx context.Context) {
	if w.pause <= 0 {
		return
	}
	timer := time.NewTimer(w.pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
