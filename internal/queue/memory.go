package queue

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue: closed")

// Memory is the in-process work queue used in single-binary deployments and
// tests. Same contract as the broker publisher: accepted means it will be
// picked up by a worker loop.
type Memory struct {
	ch   chan string
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	senders sync.WaitGroup
}

func NewMemory(buffer int) *Memory {
	if buffer <= 0 {
		buffer = 64
	}
	return &Memory{
		ch:   make(chan string, buffer),
		done: make(chan struct{}),
	}
}

func (m *Memory) Enqueue(ctx context.Context, jobID string) error {
	// Register as a sender under the lock so Close cannot close the channel
	// while a send is in flight.
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.senders.Add(1)
	m.mu.Unlock()
	defer m.senders.Done()

	select {
	case m.ch <- jobID:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs is the worker-side channel. It closes after Close.
func (m *Memory) Jobs() <-chan string {
	return m.ch
}

// Close rejects further enqueues, waits for in-flight sends to settle, then
// closes the worker channel. Idempotent.
func (m *Memory) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	m.senders.Wait()
	close(m.ch)
}
