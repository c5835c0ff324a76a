package workqueue

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process queue for tests and single-binary runs.
type Memory struct {
	mu     sync.Mutex
	items  []string
	signal chan struct{}
	closed bool
}

// NewMemory returns an empty in-process queue.
func NewMemory() *Memory {
	return &Memory{signal: make(chan struct{}, 1)}
}

func (m *Memory) Enqueue(_ context.Context, id string) error {
	id, err := validID(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.items = append(m.items, id)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return nil
}

func (m *Memory) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		id, ok, closed := m.pop()
		if closed {
			return "", false, ErrClosed
		}
		if ok {
			return id, true, nil
		}
		select {
		case <-m.signal:
		case <-timer.C:
			id, ok, _ := m.pop()
			return id, ok, nil
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}

func (m *Memory) pop() (id string, ok bool, closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, true
	}
	if len(m.items) == 0 {
		return "", false, false
	}
	id = m.items[0]
	m.items = m.items[1:]
	return id, true, false
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.items = nil
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return nil
}
