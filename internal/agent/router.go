// ABOUTME: Selects the agent that should handle an externally submitted message
// ABOUTME: Targeted messages go to the owner; untargeted ones rotate round-robin

package agent

import (
	"errors"
	"sync/atomic"
)

// ErrNoAgentsAvailable indicates no agents are available to handle a request.
var ErrNoAgentsAvailable = errors.New("no agents available")

// Router picks the recipient for a message.
type Router struct {
	current atomic.Uint64
}

// NewRouter creates a new Router instance.
func NewRouter() *Router {
	return &Router{}
}

// SelectAgent returns the agent owning the message target. Messages without
// a target are assigned round-robin. Returns ErrNoAgentsAvailable when
// agents is empty and ErrAgentNotFound when no agent owns the target.
func (r *Router) SelectAgent(msg Message, agents []*Agent) (*Agent, error) {
	if len(agents) == 0 {
		return nil, ErrNoAgentsAvailable
	}

	if m, ok := msg.(StateUpdated); ok {
		return ownerOf(m.Record.ID, agents)
	}
	if t, ok := msg.(Targeted); ok {
		return ownerOf(t.Target(), agents)
	}

	idx := r.current.Add(1) - 1
	return agents[idx%uint64(len(agents))], nil
}

func ownerOf(stateID int64, agents []*Agent) (*Agent, error) {
	for _, a := range agents {
		if a.stateID == stateID {
			return a, nil
		}
	}
	return nil, ErrAgentNotFound
}
