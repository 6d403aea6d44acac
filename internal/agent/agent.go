// ABOUTME: Device agent actor that owns one state record and consumes its inbox
// ABOUTME: Handlers never hold a lock across persistence calls or broadcasts

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/hvac-mesh/internal/state"
)

// StateStore is the subset of state.Store used by agents.
type StateStore interface {
	Snapshot(ctx context.Context, id int64) (state.Record, error)
	Put(ctx context.Context, rec state.Record) error
	UpdatePredictions(ctx context.Context, id int64, preds []state.FailurePrediction) error
	QueryByCorrelationThreshold(ctx context.Context, minDegree float64) ([]state.Record, error)
}

// Report summarizes one fan-out.
type Report struct {
	Delivered int
	Dropped   int
}

// Peers fans a message out to every registered agent except from.
// Broadcast also hands the message to other nodes; Deliver stays local.
type Peers interface {
	Broadcast(ctx context.Context, from string, msg Message) Report
	Deliver(ctx context.Context, from string, msg Message) Report
}

// Observer receives per-message outcomes. metrics.Recorder satisfies it.
type Observer interface {
	ObserveMessage(kind string, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveMessage(string, string) {}

// Message outcomes reported to Observer.
const (
	OutcomeApplied  = "applied"
	OutcomeObserved = "observed"
	OutcomeDropped  = "dropped"
	OutcomeFailed   = "failed"
)

// Config holds everything needed to construct an Agent.
type Config struct {
	ID            string
	StateID       int64
	Store         StateStore
	Peers         Peers
	Predictor     Predictor
	InboxCapacity int
	Logger        *slog.Logger
	Observer      Observer
	Now           func() time.Time
}

// Agent owns exactly one state record. It processes one envelope at a time
// in arrival order.
type Agent struct {
	id        string
	stateID   int64
	store     StateStore
	peers     Peers
	predictor Predictor
	inbox     *Inbox
	logger    *slog.Logger
	observer  Observer
	now       func() time.Time

	processed atomic.Uint64
	failed    atomic.Uint64

	// mu guards the peer view below; never held across I/O.
	mu            sync.Mutex
	observed      map[int64]state.Record
	lastEntangled []int64
}

// New creates an agent. Call Run to start processing.
func New(cfg Config) (*Agent, error) {
	if cfg.ID == "" {
		return nil, errors.New("agent id is required")
	}
	if cfg.StateID <= 0 {
		return nil, fmt.Errorf("agent %s: state id must be positive", cfg.ID)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("agent %s: store is required", cfg.ID)
	}
	if cfg.Peers == nil {
		cfg.Peers = noPeers{}
	}
	if cfg.Predictor == nil {
		cfg.Predictor, _ = NewPredictor(PredictorFixed)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Agent{
		id:        cfg.ID,
		stateID:   cfg.StateID,
		store:     cfg.Store,
		peers:     cfg.Peers,
		predictor: cfg.Predictor,
		inbox:     NewInbox(cfg.ID, cfg.InboxCapacity),
		logger:    cfg.Logger.With("component", "agent", "agent_id", cfg.ID, "state_id", cfg.StateID),
		observer:  cfg.Observer,
		now:       cfg.Now,
		observed:  make(map[int64]state.Record),
	}, nil
}

type noPeers struct{}

func (noPeers) Broadcast(context.Context, string, Message) Report { return Report{} }
func (noPeers) Deliver(context.Context, string, Message) Report   { return Report{} }

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// StateID returns the id of the owned record.
func (a *Agent) StateID() int64 { return a.stateID }

// Inbox returns the agent's inbox for registration with peers.
func (a *Agent) Inbox() *Inbox { return a.inbox }

// Run processes envelopes until the inbox is closed or ctx is done. After
// Close, envelopes already buffered are still handled before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("agent running", "predictor", a.predictor.Name(), "inbox_capacity", a.inbox.Cap())
	defer a.logger.Info("agent stopped", "processed", a.processed.Load())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-a.inbox.ch:
			a.dispatch(ctx, env)
		case <-a.inbox.sealed:
			a.drain(ctx)
			return nil
		}
	}
}

func (a *Agent) drain(ctx context.Context) {
	for {
		select {
		case env := <-a.inbox.ch:
			a.dispatch(ctx, env)
		default:
			return
		}
	}
}

// Request enqueues msg and waits for its handler result.
func (a *Agent) Request(ctx context.Context, from string, msg Message) error {
	env := NewEnvelope(from, msg)
	env.reply = make(chan error, 1)
	if err := a.inbox.Send(ctx, env); err != nil {
		return err
	}
	select {
	case err := <-env.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch runs the handler for env. Handlers are not interrupted by the
// caller's cancellation once started.
func (a *Agent) dispatch(ctx context.Context, env Envelope) {
	ctx = context.WithoutCancel(ctx)
	kind := env.Msg.Kind()

	outcome, err := a.handle(ctx, env)
	a.processed.Add(1)
	if err != nil {
		a.failed.Add(1)
		if errors.Is(err, state.ErrRoutingMismatch) {
			a.logger.Warn("dropping misrouted message", "kind", kind, "from", env.From, "error", err)
		} else {
			a.logger.Error("message handling failed", "kind", kind, "from", env.From, "envelope_id", env.ID, "error", err)
		}
	}
	a.observer.ObserveMessage(string(kind), outcome)

	if env.reply != nil {
		env.reply <- err
	}
}

func (a *Agent) handle(ctx context.Context, env Envelope) (string, error) {
	if t, ok := env.Msg.(Targeted); ok && t.Target() != a.stateID {
		return OutcomeDropped, &state.Error{
			Op:   string(env.Msg.Kind()),
			ID:   t.Target(),
			Kind: state.ErrRoutingMismatch,
			Err:  fmt.Errorf("agent %s owns %d", a.id, a.stateID),
		}
	}

	var err error
	switch m := env.Msg.(type) {
	case StateUpdated:
		if m.Record.ID != a.stateID {
			a.observe(m.Record)
			a.logger.Debug("observed peer state", "peer_state_id", m.Record.ID, "from", env.From)
			return OutcomeObserved, nil
		}
		err = a.replaceState(ctx, env, m.Record)
	case StateRequested:
		err = a.publishState(ctx, env)
	case FailurePredictionRequested:
		err = a.predictFailures(ctx, m.Components)
	case ParameterOptimizationRequested:
		err = a.optimizeParameters(ctx, env, m.Params)
	case EntangledStatesRequested:
		err = a.queryEntangled(ctx, m.MinDegree)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownKind, env.Msg)
	}
	if err != nil {
		return OutcomeFailed, err
	}
	return OutcomeApplied, nil
}

func (a *Agent) replaceState(ctx context.Context, env Envelope, rec state.Record) error {
	rec = rec.Clone()
	if err := a.store.Put(ctx, rec); err != nil {
		return err
	}
	a.broadcastState(ctx, env, rec)
	return nil
}

func (a *Agent) publishState(ctx context.Context, env Envelope) error {
	snap, err := a.store.Snapshot(ctx, a.stateID)
	if err != nil {
		return err
	}
	a.broadcastState(ctx, env, snap)
	return nil
}

func (a *Agent) predictFailures(ctx context.Context, components []string) error {
	snap, err := a.store.Snapshot(ctx, a.stateID)
	if err != nil {
		return err
	}

	now := a.now()
	fresh := make([]state.FailurePrediction, 0, len(components))
	for _, c := range components {
		fresh = append(fresh, a.predictor.Predict(snap, c, now))
	}
	merged := state.MergePredictions(snap.Parameters.FailurePredictions, fresh)

	if err := a.store.UpdatePredictions(ctx, a.stateID, merged); err != nil {
		return err
	}
	a.logger.Debug("failure predictions updated", "components", components, "total", len(merged))
	return nil
}

func (a *Agent) optimizeParameters(ctx context.Context, env Envelope, params map[string]float64) error {
	snap, err := a.store.Snapshot(ctx, a.stateID)
	if err != nil {
		return err
	}

	applied, unknown := snap.ApplyScalars(params)
	if len(unknown) > 0 {
		a.logger.Warn("ignoring unknown parameters", "names", unknown)
	}

	// Persisted and re-broadcast even when no field matched.
	if err := a.store.Put(ctx, snap); err != nil {
		return err
	}
	a.logger.Debug("parameters optimized", "fields", applied)
	a.broadcastState(ctx, env, snap)
	return nil
}

func (a *Agent) queryEntangled(ctx context.Context, minDegree float64) error {
	recs, err := a.store.QueryByCorrelationThreshold(ctx, minDegree)
	if err != nil {
		return err
	}

	ids := make([]int64, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	slices.Sort(ids)

	a.mu.Lock()
	a.lastEntangled = ids
	a.mu.Unlock()

	a.logger.Info("entangled states", "min_degree", minDegree, "count", len(ids), "state_ids", ids)
	return nil
}

// broadcastState fans snap out to peers. Delivery failures are logged by
// the broadcaster and never fail the handler. Work caused by a relayed
// envelope is delivered to local agents only.
func (a *Agent) broadcastState(ctx context.Context, cause Envelope, snap state.Record) {
	fanout := a.peers.Broadcast
	if cause.Relayed() {
		fanout = a.peers.Deliver
	}
	rep := fanout(ctx, a.id, StateUpdated{Record: snap})
	if rep.Dropped > 0 {
		a.logger.Debug("broadcast partially delivered", "delivered", rep.Delivered, "dropped", rep.Dropped)
	}
}

func (a *Agent) observe(rec state.Record) {
	rec = rec.Clone()
	a.mu.Lock()
	a.observed[rec.ID] = rec
	a.mu.Unlock()
}

// Observed returns the latest snapshot seen from each peer record.
func (a *Agent) Observed() map[int64]state.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int64]state.Record, len(a.observed))
	for id, rec := range a.observed {
		out[id] = rec.Clone()
	}
	return out
}

// LastEntangled returns the sorted ids from the most recent entangled query.
func (a *Agent) LastEntangled() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.lastEntangled)
}

// Info is a point-in-time summary of an agent.
type Info struct {
	ID            string  `json:"id"`
	StateID       int64   `json:"state_id"`
	Predictor     string  `json:"predictor"`
	Pending       int     `json:"pending"`
	Capacity      int     `json:"capacity"`
	Processed     uint64  `json:"processed"`
	Failed        uint64  `json:"failed"`
	ObservedPeers []int64 `json:"observed_peers"`
	LastEntangled []int64 `json:"last_entangled"`
}

// Info returns a summary of the agent.
func (a *Agent) Info() Info {
	a.mu.Lock()
	observed := slices.Sorted(maps.Keys(a.observed))
	entangled := slices.Clone(a.lastEntangled)
	a.mu.Unlock()

	return Info{
		ID:            a.id,
		StateID:       a.stateID,
		Predictor:     a.predictor.Name(),
		Pending:       a.inbox.Len(),
		Capacity:      a.inbox.Cap(),
		Processed:     a.processed.Load(),
		Failed:        a.failed.Load(),
		ObservedPeers: observed,
		LastEntangled: entangled,
	}
}
