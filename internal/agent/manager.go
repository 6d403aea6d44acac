// ABOUTME: Starts, tracks and stops device agents and keeps the peer registry in sync
// ABOUTME: Central coordinator for agent lifecycle and message dispatch

package agent

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// ErrAgentAlreadyRegistered indicates an agent with the same ID is already running.
var ErrAgentAlreadyRegistered = errors.New("agent already registered")

// ErrAgentNotFound indicates the specified agent was not found.
var ErrAgentNotFound = errors.New("agent not found")

// ErrStateAlreadyOwned indicates another agent already owns the state record.
var ErrStateAlreadyOwned = errors.New("state record already owned by another agent")

// Registrar is the peer registry agents are published to.
type Registrar interface {
	Register(inbox *Inbox) error
	Unregister(id string)
}

type running struct {
	agent *Agent
	done  chan struct{}
}

// Manager coordinates all running agents.
type Manager struct {
	registry Registrar
	agents   map[string]*running
	mu       sync.RWMutex
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewManager creates a new Manager instance.
func NewManager(registry Registrar, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		agents:   make(map[string]*running),
		logger:   logger.With("component", "agent-manager"),
	}
}

// Start creates an agent from cfg, registers its inbox with the peer
// registry and runs it until ctx is done or the agent is stopped.
func (m *Manager) Start(ctx context.Context, cfg Config) (*Agent, error) {
	a, err := New(cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.agents[a.id]; exists {
		return nil, ErrAgentAlreadyRegistered
	}
	for _, r := range m.agents {
		if r.agent.stateID == a.stateID {
			return nil, ErrStateAlreadyOwned
		}
	}
	if err := m.registry.Register(a.inbox); err != nil {
		return nil, err
	}

	r := &running{agent: a, done: make(chan struct{})}
	m.agents[a.id] = r
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(r.done)
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("agent exited", "agent_id", a.id, "error", err)
		}
	}()

	m.logger.Info("=== AGENT STARTED ===",
		"agent_id", a.id,
		"state_id", a.stateID,
		"total_agents", len(m.agents),
	)
	return a, nil
}

// Stop closes the agent's inbox, waits for it to finish buffered work and
// removes it from the peer registry.
func (m *Manager) Stop(ctx context.Context, agentID string) error {
	m.mu.Lock()
	r, ok := m.agents[agentID]
	if ok {
		delete(m.agents, agentID)
	}
	remaining := len(m.agents)
	m.mu.Unlock()

	if !ok {
		return ErrAgentNotFound
	}

	m.registry.Unregister(agentID)
	r.agent.inbox.Close()

	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.logger.Info("=== AGENT STOPPED ===",
		"agent_id", agentID,
		"total_agents", remaining,
	)
	return nil
}

// StopAll stops every agent and waits for their loops to exit.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.ids() {
		if err := m.Stop(ctx, id); err != nil && !errors.Is(err, ErrAgentNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until every started agent loop has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// ListAgents returns information about all running agents, sorted by id.
func (m *Manager) ListAgents() []Info {
	m.mu.RLock()
	agents := make([]*Agent, 0, len(m.agents))
	for _, r := range m.agents {
		agents = append(agents, r.agent)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, a.Info())
	}
	slices.SortFunc(infos, func(x, y Info) int { return strings.Compare(x.ID, y.ID) })
	return infos
}

// Agents returns the running agents, sorted by id.
func (m *Manager) Agents() []*Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Agent, 0, len(m.agents))
	for _, r := range m.agents {
		out = append(out, r.agent)
	}
	slices.SortFunc(out, func(x, y *Agent) int { return strings.Compare(x.id, y.id) })
	return out
}

// GetAgent retrieves a specific agent by ID.
func (m *Manager) GetAgent(id string) (*Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.agents[id]
	if !ok {
		return nil, false
	}
	return r.agent, true
}

// IsOnline checks whether an agent with the given ID is running.
func (m *Manager) IsOnline(agentID string) bool {
	_, ok := m.GetAgent(agentID)
	return ok
}

// GetByStateID returns the agent owning the state record, or nil.
func (m *Manager) GetByStateID(stateID int64) *Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.agents {
		if r.agent.stateID == stateID {
			return r.agent
		}
	}
	return nil
}

func (m *Manager) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.agents))
	for id := range m.agents {
		ids = append(ids, id)
	}
	return ids
}
