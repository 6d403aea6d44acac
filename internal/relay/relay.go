// ABOUTME: NATS relay forwarding local broadcasts to other nodes and delivering remote ones locally
// ABOUTME: Implements broadcast.Forwarder; drops its own packets and transport redeliveries

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/2389/hvac-mesh/internal/agent"
)

// Defaults.
const (
	DefaultSubjectPrefix = "hvac.mesh"
	DefaultSeenTTL       = 5 * time.Minute
	DefaultSeenMax       = 10000
)

// Relay directions and results reported to the Observer.
const (
	DirectionOut = "out"
	DirectionIn  = "in"

	ResultOK        = "ok"
	ResultFailed    = "failed"
	ResultDuplicate = "duplicate"
	ResultOwn       = "own"
)

// Transport publishes and subscribes raw payloads.
type Transport interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(subject string, data []byte)) (unsubscribe func() error, err error)
}

// Deliverer hands a relayed message to local peers only, tagging the
// envelopes with the node they came from. *broadcast.Broadcaster satisfies it.
type Deliverer interface {
	DeliverRemote(ctx context.Context, origin, from string, msg agent.Message) agent.Report
}

// Observer receives relay events. metrics.Recorder satisfies it.
type Observer interface {
	ObserveRelay(direction, result string)
}

type nopObserver struct{}

func (nopObserver) ObserveRelay(string, string) {}

// Options configures a Relay.
type Options struct {
	NodeID        string // empty generates a random id
	SubjectPrefix string
	SeenTTL       time.Duration
	SeenMax       int
	Logger        *slog.Logger
	Observer      Observer
}

// Relay bridges broadcasts between nodes.
type Relay struct {
	transport Transport
	local     Deliverer
	node      string
	prefix    string
	seen      *seenCache
	logger    *slog.Logger
	observer  Observer

	mu          sync.Mutex
	unsubscribe func() error
}

// New creates a relay. Call Start to receive remote packets.
func New(t Transport, local Deliverer, opts Options) *Relay {
	if opts.NodeID == "" {
		opts.NodeID = uuid.NewString()
	}
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = DefaultSubjectPrefix
	}
	if opts.SeenTTL <= 0 {
		opts.SeenTTL = DefaultSeenTTL
	}
	if opts.SeenMax <= 0 {
		opts.SeenMax = DefaultSeenMax
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Relay{
		transport: t,
		local:     local,
		node:      opts.NodeID,
		prefix:    strings.TrimSuffix(opts.SubjectPrefix, "."),
		seen:      newSeenCache(opts.SeenTTL, opts.SeenMax, time.Minute),
		logger:    opts.Logger.With("component", "relay", "node_id", opts.NodeID),
		observer:  opts.Observer,
	}
}

// NodeID returns this node's id.
func (r *Relay) NodeID() string { return r.node }

// Subject returns the subject a message kind is published on.
func (r *Relay) Subject(kind agent.Kind) string {
	return r.prefix + "." + string(kind)
}

// Start subscribes to every kind under the prefix.
func (r *Relay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		return errors.New("relay already started")
	}
	unsub, err := r.transport.Subscribe(r.prefix+".>", r.receive)
	if err != nil {
		return fmt.Errorf("subscribing to %s.>: %w", r.prefix, err)
	}
	r.unsubscribe = unsub
	r.logger.Info("relay started", "subject", r.prefix+".>")
	return nil
}

// Close unsubscribes and stops the seen-cache sweep.
func (r *Relay) Close() error {
	r.mu.Lock()
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	r.seen.close()
	if unsub == nil {
		return nil
	}
	return unsub()
}

// Forward implements broadcast.Forwarder. Failures are logged only.
func (r *Relay) Forward(_ context.Context, env agent.Envelope) {
	data, err := newPacket(r.node, env).Encode()
	if err != nil {
		r.fail(DirectionOut, "encode failed", env, err)
		return
	}
	r.seen.checkAndMark(Fingerprint(data))

	subject := r.Subject(env.Msg.Kind())
	if err := r.transport.Publish(subject, data); err != nil {
		r.fail(DirectionOut, "publish failed", env, err)
		return
	}
	r.observer.ObserveRelay(DirectionOut, ResultOK)
	r.logger.Debug("relayed broadcast", "subject", subject, "envelope_id", env.ID, "bytes", len(data))
}

func (r *Relay) fail(direction, what string, env agent.Envelope, err error) {
	r.observer.ObserveRelay(direction, ResultFailed)
	r.logger.Error("relay "+what, "envelope_id", env.ID, "kind", env.Msg.Kind(), "error", err)
}

func (r *Relay) receive(subject string, data []byte) {
	if r.seen.checkAndMark(Fingerprint(data)) {
		r.observer.ObserveRelay(DirectionIn, ResultDuplicate)
		return
	}

	p, err := DecodePacket(data)
	if err != nil {
		r.observer.ObserveRelay(DirectionIn, ResultFailed)
		r.logger.Warn("dropping undecodable packet", "subject", subject, "error", err)
		return
	}
	if p.Node == r.node {
		r.observer.ObserveRelay(DirectionIn, ResultOwn)
		return
	}
	msg, err := p.Message.Message()
	if err != nil {
		r.observer.ObserveRelay(DirectionIn, ResultFailed)
		r.logger.Warn("dropping packet with invalid message", "subject", subject, "origin", p.Node, "error", err)
		return
	}

	rep := r.local.DeliverRemote(context.Background(), p.Node, p.From, msg)
	r.observer.ObserveRelay(DirectionIn, ResultOK)
	r.logger.Debug("delivered remote broadcast",
		"origin", p.Node,
		"from", p.From,
		"kind", msg.Kind(),
		"delivered", rep.Delivered,
		"dropped", rep.Dropped)
}

// NATSTransport adapts a NATS connection to Transport.
type NATSTransport struct {
	conn *nats.Conn
}

// Connect dials NATS at url.
func Connect(url string, name string) (*NATSTransport, error) {
	conn, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	return &NATSTransport{conn: conn}, nil
}

// Publish implements Transport.
func (t *NATSTransport) Publish(subject string, data []byte) error {
	return t.conn.Publish(subject, data)
}

// Subscribe implements Transport.
func (t *NATSTransport) Subscribe(subject string, handler func(string, []byte)) (func() error, error) {
	sub, err := t.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(m.Subject, m.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

// Close drains and closes the connection.
func (t *NATSTransport) Close() error {
	return t.conn.Drain()
}
