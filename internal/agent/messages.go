// ABOUTME: Closed set of messages exchanged between device agents
// ABOUTME: Messages carry plain data only and are copied per recipient

package agent

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/2389/hvac-mesh/internal/state"
)

// Kind identifies a message variant on the wire.
type Kind string

const (
	KindStateUpdated                   Kind = "state_updated"
	KindStateRequested                 Kind = "state_requested"
	KindFailurePredictionRequested     Kind = "failure_prediction_requested"
	KindParameterOptimizationRequested Kind = "parameter_optimization_requested"
	KindEntangledStatesRequested       Kind = "entangled_states_requested"
)

// Message is one of the variants below. The set is closed.
type Message interface {
	Kind() Kind
	// Clone returns a copy that shares no memory with the receiver.
	Clone() Message
	sealed()
}

// Targeted is implemented by messages addressed to one state record.
type Targeted interface {
	Message
	Target() int64
}

// StateUpdated carries a full snapshot. When the snapshot's id is the
// receiver's own it replaces the owned record; otherwise it is a peer
// observation.
type StateUpdated struct {
	Record state.Record
}

// StateRequested asks the owner of TargetID to broadcast its snapshot.
type StateRequested struct {
	TargetID int64
}

// FailurePredictionRequested asks for fresh predictions on named components.
type FailurePredictionRequested struct {
	TargetID   int64
	Components []string
}

// ParameterOptimizationRequested overwrites the named scalar fields.
type ParameterOptimizationRequested struct {
	TargetID int64
	Params   map[string]float64
}

// EntangledStatesRequested asks for every stored record whose correlation
// signal exceeds MinDegree.
type EntangledStatesRequested struct {
	MinDegree float64
}

func (StateUpdated) Kind() Kind                   { return KindStateUpdated }
func (StateRequested) Kind() Kind                 { return KindStateRequested }
func (FailurePredictionRequested) Kind() Kind     { return KindFailurePredictionRequested }
func (ParameterOptimizationRequested) Kind() Kind { return KindParameterOptimizationRequested }
func (EntangledStatesRequested) Kind() Kind       { return KindEntangledStatesRequested }

func (m StateUpdated) Clone() Message   { return StateUpdated{Record: m.Record.Clone()} }
func (m StateRequested) Clone() Message { return m }
func (m FailurePredictionRequested) Clone() Message {
	return FailurePredictionRequested{TargetID: m.TargetID, Components: slices.Clone(m.Components)}
}
func (m ParameterOptimizationRequested) Clone() Message {
	return ParameterOptimizationRequested{TargetID: m.TargetID, Params: maps.Clone(m.Params)}
}
func (m EntangledStatesRequested) Clone() Message { return m }

func (StateRequested) sealed()                 {}
func (StateUpdated) sealed()                   {}
func (FailurePredictionRequested) sealed()     {}
func (ParameterOptimizationRequested) sealed() {}
func (EntangledStatesRequested) sealed()       {}

func (m StateRequested) Target() int64                 { return m.TargetID }
func (m FailurePredictionRequested) Target() int64     { return m.TargetID }
func (m ParameterOptimizationRequested) Target() int64 { return m.TargetID }

// ErrUnknownKind is returned when decoding a wire message of unknown kind.
var ErrUnknownKind = errors.New("unknown message kind")

// Wire is the serializable form of a Message, used by the HTTP and gRPC
// surfaces (JSON) and the cluster relay (CBOR).
type Wire struct {
	Kind       Kind               `json:"kind"`
	Record     *state.Record      `json:"record,omitempty"`
	TargetID   int64              `json:"target_id,omitempty"`
	Components []string           `json:"components,omitempty"`
	Params     map[string]float64 `json:"params,omitempty"`
	MinDegree  float64            `json:"min_degree,omitempty"`
}

// ToWire converts msg into its serializable form.
func ToWire(msg Message) Wire {
	switch m := msg.(type) {
	case StateUpdated:
		rec := m.Record.Clone()
		return Wire{Kind: KindStateUpdated, Record: &rec}
	case StateRequested:
		return Wire{Kind: KindStateRequested, TargetID: m.TargetID}
	case FailurePredictionRequested:
		return Wire{Kind: KindFailurePredictionRequested, TargetID: m.TargetID, Components: slices.Clone(m.Components)}
	case ParameterOptimizationRequested:
		return Wire{Kind: KindParameterOptimizationRequested, TargetID: m.TargetID, Params: maps.Clone(m.Params)}
	case EntangledStatesRequested:
		return Wire{Kind: KindEntangledStatesRequested, MinDegree: m.MinDegree}
	}
	panic(fmt.Sprintf("agent: unhandled message type %T", msg))
}

// Message converts w back into a Message.
func (w Wire) Message() (Message, error) {
	switch w.Kind {
	case KindStateUpdated:
		if w.Record == nil {
			return nil, fmt.Errorf("%s: missing record", w.Kind)
		}
		return StateUpdated{Record: w.Record.Clone()}, nil
	case KindStateRequested:
		return StateRequested{TargetID: w.TargetID}, nil
	case KindFailurePredictionRequested:
		return FailurePredictionRequested{TargetID: w.TargetID, Components: slices.Clone(w.Components)}, nil
	case KindParameterOptimizationRequested:
		return ParameterOptimizationRequested{TargetID: w.TargetID, Params: maps.Clone(w.Params)}, nil
	case KindEntangledStatesRequested:
		return EntangledStatesRequested{MinDegree: w.MinDegree}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Kind)
}
