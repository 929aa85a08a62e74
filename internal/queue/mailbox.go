package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrMailboxClosed is returned by Wait when the mailbox has been closed and drained.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is an unbounded multi-producer, single-consumer FIFO.
//
// Producers never block: Push appends under a mutex and pokes a one-slot notify channel.
// The consumer takes everything queued so far with Wait, which makes it easy to batch
// consecutive items.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  Queue[T]
	notify chan struct{}
	closed bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any](prealloc int) *Mailbox[T] {
	return &Mailbox[T]{
		items:  NewSliceQueue[T](prealloc),
		notify: make(chan struct{}, 1),
	}
}

// Push appends items to the mailbox. It returns false if the mailbox is closed.
func (m *Mailbox[T]) Push(items ...T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}

	for _, item := range items {
		m.items.Enqueue(item)
	}
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}

	return true
}

// Wait blocks until at least one item is queued and returns all queued items.
//
// It returns ctx.Err() if ctx is done first, or ErrMailboxClosed once the mailbox is closed
// and no items remain.
func (m *Mailbox[T]) Wait(ctx context.Context) ([]T, error) {
	for {
		m.mu.Lock()
		items := m.items.DrainAll()
		closed := m.closed
		m.mu.Unlock()

		if len(items) > 0 {
			return items, nil
		}

		if closed {
			return nil, ErrMailboxClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.notify:
		}
	}
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.items.Length()
}

// Close stops accepting new items. Items already queued can still be received.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}
