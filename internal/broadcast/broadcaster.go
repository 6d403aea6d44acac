// ABOUTME: Best-effort fan-out of agent messages to registered peer inboxes
// ABOUTME: Snapshots targets under lock, sends outside it, never aborts on failure

package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/hvac-mesh/internal/agent"
)

// Mode selects how a full inbox is handled.
type Mode string

const (
	// ModeBlock waits up to the send timeout for inbox space.
	ModeBlock Mode = "block"
	// ModeDrop drops the delivery immediately when the inbox is full.
	ModeDrop Mode = "drop"
)

// DefaultSendTimeout bounds a blocking delivery to one peer.
const DefaultSendTimeout = time.Second

// ParseMode validates a configured delivery mode. Empty selects ModeBlock.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBlock:
		return ModeBlock, nil
	case ModeDrop:
		return ModeDrop, nil
	}
	return "", fmt.Errorf("unknown delivery mode %q", s)
}

// Forwarder receives locally originated broadcasts after local delivery.
type Forwarder interface {
	Forward(ctx context.Context, env agent.Envelope)
}

// Observer receives per-broadcast delivery counts. metrics.Recorder
// satisfies it.
type Observer interface {
	ObserveBroadcast(kind string, delivered, dropped int)
}

type nopObserver struct{}

func (nopObserver) ObserveBroadcast(string, int, int) {}

// Options configures a Broadcaster.
type Options struct {
	Mode        Mode
	SendTimeout time.Duration
	Logger      *slog.Logger
	Observer    Observer
}

// Broadcaster delivers messages to every registered peer.
type Broadcaster struct {
	registry *Registry
	mode     Mode
	timeout  time.Duration
	logger   *slog.Logger
	observer Observer

	mu         sync.RWMutex
	forwarders []Forwarder
}

// New creates a broadcaster over registry.
func New(registry *Registry, opts Options) *Broadcaster {
	if opts.Mode == "" {
		opts.Mode = ModeBlock
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Broadcaster{
		registry: registry,
		mode:     opts.Mode,
		timeout:  opts.SendTimeout,
		logger:   opts.Logger.With("component", "broadcaster"),
		observer: opts.Observer,
	}
}

// Registry returns the peer registry this broadcaster delivers to.
func (b *Broadcaster) Registry() *Registry {
	return b.registry
}

// AddForwarder registers f to receive locally originated broadcasts.
func (b *Broadcaster) AddForwarder(f Forwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarders = append(b.forwarders, f)
}

// Broadcast delivers msg to every registered peer except from, then hands
// it to the forwarders.
func (b *Broadcaster) Broadcast(ctx context.Context, from string, msg agent.Message) agent.Report {
	rep := b.Deliver(ctx, from, msg)

	b.mu.RLock()
	fwd := make([]Forwarder, len(b.forwarders))
	copy(fwd, b.forwarders)
	b.mu.RUnlock()

	if len(fwd) > 0 {
		env := agent.NewEnvelope(from, msg.Clone())
		for _, f := range fwd {
			f.Forward(ctx, env)
		}
	}
	return rep
}

// Deliver sends msg to local peers only.
func (b *Broadcaster) Deliver(ctx context.Context, from string, msg agent.Message) agent.Report {
	return b.deliver(ctx, "", from, msg)
}

// DeliverRemote sends a message relayed from node origin to local peers.
// The envelopes carry origin, so nothing their handlers broadcast is
// forwarded back to other nodes.
func (b *Broadcaster) DeliverRemote(ctx context.Context, origin, from string, msg agent.Message) agent.Report {
	return b.deliver(ctx, origin, from, msg)
}

func (b *Broadcaster) deliver(ctx context.Context, origin, from string, msg agent.Message) agent.Report {
	targets := b.registry.targets(from)

	var rep agent.Report
	for _, in := range targets {
		env := agent.NewEnvelope(from, msg.Clone())
		env.Origin = origin
		if err := b.send(ctx, in, env); err != nil {
			rep.Dropped++
			b.logger.Debug("dropped broadcast delivery",
				"from", from,
				"to", in.Owner(),
				"kind", msg.Kind(),
				"envelope_id", env.ID,
				"error", err)
			continue
		}
		rep.Delivered++
	}

	b.observer.ObserveBroadcast(string(msg.Kind()), rep.Delivered, rep.Dropped)
	return rep
}

func (b *Broadcaster) send(ctx context.Context, in *agent.Inbox, env agent.Envelope) error {
	if b.mode == ModeDrop {
		return in.TrySend(env)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return in.Send(ctx, env)
}
