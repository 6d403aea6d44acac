// ABOUTME: Integrator service wiring business storage, state lookups and correlation measurement
// ABOUTME: Owns the peer registry and turns high correlations into agent broadcasts and alerts

package integrator

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/2389/hvac-mesh/internal/agent"
	"github.com/2389/hvac-mesh/internal/broadcast"
	"github.com/2389/hvac-mesh/internal/correlation"
	"github.com/2389/hvac-mesh/internal/notify"
	"github.com/2389/hvac-mesh/internal/scoring"
	"github.com/2389/hvac-mesh/internal/state"
	"github.com/2389/hvac-mesh/internal/store"
)

// SenderID is the envelope sender used for integrator broadcasts.
const SenderID = "integrator"

// DefaultCandidates are checked by CrossCheck when no candidate limit is set.
var DefaultCandidates = []int64{1, 2, 3, 4, 5}

// StateReader reads current state records.
type StateReader interface {
	Snapshot(ctx context.Context, id int64) (state.Record, error)
}

// Correlator measures device pairs. *correlation.Engine satisfies it.
type Correlator interface {
	ComputeAndStore(ctx context.Context, deviceA, deviceB int64) (correlation.Result, error)
	SetNotifier(n correlation.Notifier)
}

// Config wires an Integrator.
type Config struct {
	Business   store.BusinessStore
	Audit      store.AuditStore // nil disables audit entries
	States     StateReader
	Correlator Correlator

	// Broadcaster fans notifications out to agents. Nil creates one over a
	// fresh registry.
	Broadcaster *broadcast.Broadcaster
	Scorer      scoring.Scorer // nil uses the default keyword scorer
	Alerts      notify.Sink    // nil disables alerts

	// CandidateLimit > 0 makes CrossCheck use the first CandidateLimit
	// stored device ids. Otherwise Candidates (default DefaultCandidates)
	// is used.
	CandidateLimit int
	Candidates     []int64

	Logger *slog.Logger
}

// Integrator runs composite workflows.
type Integrator struct {
	business       store.BusinessStore
	audit          store.AuditStore
	states         StateReader
	correlator     Correlator
	broadcaster    *broadcast.Broadcaster
	scorer         scoring.Scorer
	candidateLimit int
	candidates     []int64
	logger         *slog.Logger

	mu     sync.RWMutex
	alerts notify.Sink
}

// New creates an Integrator and installs it as the correlator's notifier.
func New(cfg Config) *Integrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "integrator")
	if cfg.Broadcaster == nil {
		cfg.Broadcaster = broadcast.New(broadcast.NewRegistry(), broadcast.Options{Logger: cfg.Logger})
	}
	if cfg.Scorer == nil {
		cfg.Scorer = scoring.NewKeywordScorer()
	}
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = DefaultCandidates
	}

	i := &Integrator{
		business:       cfg.Business,
		audit:          cfg.Audit,
		states:         cfg.States,
		correlator:     cfg.Correlator,
		broadcaster:    cfg.Broadcaster,
		scorer:         cfg.Scorer,
		candidateLimit: cfg.CandidateLimit,
		candidates:     append([]int64(nil), cfg.Candidates...),
		logger:         logger,
		alerts:         cfg.Alerts,
	}
	if i.correlator != nil {
		i.correlator.SetNotifier(i)
	}
	return i
}

// Registry returns the authoritative peer registry.
func (i *Integrator) Registry() *broadcast.Registry {
	return i.broadcaster.Registry()
}

// Broadcaster returns the broadcaster agents should use as their peers.
func (i *Integrator) Broadcaster() *broadcast.Broadcaster {
	return i.broadcaster
}

// SetAlerts replaces the alert sink.
func (i *Integrator) SetAlerts(s notify.Sink) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.alerts = s
}

// NotifyHighCorrelation implements correlation.Notifier. It broadcasts an
// EntangledStatesRequested message carrying the degree to every registered
// agent, then alerts. Failures are logged only.
func (i *Integrator) NotifyHighCorrelation(ctx context.Context, rec correlation.Record) {
	rep := i.broadcaster.Broadcast(ctx, SenderID, agent.EntangledStatesRequested{MinDegree: rec.Degree})

	i.logger.Info("notified agents of high correlation",
		"device_a", rec.DeviceA,
		"device_b", rec.DeviceB,
		"degree", rec.Degree,
		"delivered", rep.Delivered,
		"dropped", rep.Dropped)

	i.mu.RLock()
	sink := i.alerts
	i.mu.RUnlock()
	if sink == nil {
		return
	}
	alert := notify.Alert{Record: rec, Agents: rep.Delivered, Dropped: rep.Dropped}
	if err := sink.Notify(ctx, alert); err != nil {
		i.logger.Error("alert delivery failed", "sink", sink.Name(), "error", err)
	}
}

type actorKey struct{}

// WithActor names the caller recorded in audit entries.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor set by WithActor, or SenderID.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return SenderID
}

// record writes an audit entry for a workflow run.
func (i *Integrator) record(ctx context.Context, action store.AuditAction, targetType string, targetID int64, err error, detail map[string]any) {
	if i.audit == nil {
		return
	}
	entry := &store.AuditEntry{
		Actor:      ActorFrom(ctx),
		Action:     action,
		TargetType: targetType,
		TargetID:   strconv.FormatInt(targetID, 10),
		Outcome:    store.OutcomeOK,
		Detail:     detail,
	}
	if err != nil {
		entry.Outcome = store.OutcomeFailed
		if entry.Detail == nil {
			entry.Detail = map[string]any{}
		}
		entry.Detail["error"] = err.Error()
		if step := FailedStep(err); step != "" {
			entry.Detail["step"] = step
		}
	}
	if aerr := i.audit.AppendAuditLog(context.WithoutCancel(ctx), entry); aerr != nil {
		i.logger.Error("failed to append audit entry", "action", action, "error", aerr)
	}
}

var _ correlation.Notifier = (*Integrator)(nil)
