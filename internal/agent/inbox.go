// ABOUTME: Bounded FIFO inbox that delivers envelopes to a single agent
// ABOUTME: Closing is idempotent and never races with concurrent senders

package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultInboxCapacity is used when no capacity is configured.
const DefaultInboxCapacity = 100

var (
	// ErrInboxClosed means the receiving agent has stopped.
	ErrInboxClosed = errors.New("inbox closed")
	// ErrInboxFull means a non-blocking send found no free slot.
	ErrInboxFull = errors.New("inbox full")
)

// Envelope wraps a message for delivery.
type Envelope struct {
	ID     uuid.UUID
	From   string
	SentAt time.Time
	Msg    Message
	// Origin is the node id an envelope was relayed from; empty when it
	// was produced on this node.
	Origin string

	// reply, when set, receives the handler result exactly once.
	reply chan error
}

// NewEnvelope wraps msg from sender.
func NewEnvelope(from string, msg Message) Envelope {
	return Envelope{
		ID:     uuid.New(),
		From:   from,
		SentAt: time.Now().UTC(),
		Msg:    msg,
	}
}

// Relayed reports whether the envelope arrived from another node.
func (e Envelope) Relayed() bool { return e.Origin != "" }

// Inbox is a bounded queue owned by one agent. Any number of goroutines may
// send; only the owning agent receives.
type Inbox struct {
	owner string
	ch    chan Envelope
	// done is closed first to wake blocked senders; sealed is closed once
	// no sender can still enqueue.
	done      chan struct{}
	sealed    chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewInbox creates an inbox for the named agent.
func NewInbox(owner string, capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	return &Inbox{
		owner:  owner,
		ch:     make(chan Envelope, capacity),
		done:   make(chan struct{}),
		sealed: make(chan struct{}),
	}
}

// Owner returns the id of the agent reading this inbox.
func (in *Inbox) Owner() string {
	return in.owner
}

// Send enqueues env, waiting for space until ctx is done.
func (in *Inbox) Send(ctx context.Context, env Envelope) error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.closed {
		return ErrInboxClosed
	}

	select {
	case <-in.done:
		return ErrInboxClosed
	default:
	}

	select {
	case in.ch <- env:
		return nil
	case <-in.done:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues env only if a slot is free right now.
func (in *Inbox) TrySend(env Envelope) error {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.closed {
		return ErrInboxClosed
	}

	select {
	case <-in.done:
		return ErrInboxClosed
	default:
	}

	select {
	case in.ch <- env:
		return nil
	default:
		return ErrInboxFull
	}
}

// Close stops accepting envelopes. Already buffered envelopes are still
// processed by the owning agent. Once Close returns no envelope can be
// enqueued.
func (in *Inbox) Close() {
	in.closeOnce.Do(func() {
		close(in.done)
		in.mu.Lock()
		in.closed = true
		in.mu.Unlock()
		close(in.sealed)
	})
}

// Closed reports whether Close has been called.
func (in *Inbox) Closed() bool {
	select {
	case <-in.done:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered envelopes.
func (in *Inbox) Len() int {
	return len(in.ch)
}

// Cap returns the inbox capacity.
func (in *Inbox) Cap() int {
	return cap(in.ch)
}
