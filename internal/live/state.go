// Package live mirrors the remote execution state of one crew or flow and keeps it in sync
// with the backend over WebSocket deltas and HTTP snapshots.
package live

import (
	"encoding/json"
	"reflect"

	"github.com/agenticgokit/crewview/internal/protocol"
	"github.com/agenticgokit/crewview/internal/trace"
)

// Collection is an insertion-ordered set of records keyed by id.
// Each record remembers the sequence that last wrote it.
type Collection[T any] struct {
	order []string
	items map[string]T
	seqs  map[string]uint64
}

// Len returns the number of records
func (c Collection[T]) Len() int {
	return len(c.order)
}

// Get returns the record with the given id
func (c Collection[T]) Get(id string) (T, bool) {
	v, ok := c.items[id]
	return v, ok
}

// Items returns the records in insertion order
func (c Collection[T]) Items() []T {
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// MarshalJSON encodes the collection as an array in insertion order
func (c Collection[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Items())
}

func (c Collection[T]) clone() Collection[T] {
	out := Collection[T]{
		order: append([]string(nil), c.order...),
		items: make(map[string]T, len(c.items)),
		seqs:  make(map[string]uint64, len(c.seqs)),
	}
	for k, v := range c.items {
		out.items[k] = v
	}
	for k, v := range c.seqs {
		out.seqs[k] = v
	}
	return out
}

// merge overwrites or inserts every incoming record whose id was last written at or
// before seq. Records absent from incoming keep their value. The receiver is not modified.
func (c Collection[T]) merge(incoming []T, idOf func(T) string, seq uint64) (Collection[T], bool) {
	next := c
	cloned := false
	changed := false
	for _, item := range incoming {
		id := idOf(item)
		if id == "" {
			continue
		}
		if last, ok := c.seqs[id]; ok && seq < last {
			continue
		}
		if !cloned {
			next = c.clone()
			cloned = true
		}
		old, exists := next.items[id]
		if !exists {
			next.order = append(next.order, id)
		}
		if !exists || !reflect.DeepEqual(old, item) {
			changed = true
		}
		next.items[id] = item
		next.seqs[id] = seq
	}
	return next, changed
}

// State is the client mirror of one tracked crew or flow
type State struct {
	Kind     protocol.Kind `json:"kind"`
	EntityID string        `json:"entity_id"`
	ClientID string        `json:"client_id,omitempty"`

	Crew    *protocol.Entity            `json:"crew,omitempty"`
	Flow    *protocol.Entity            `json:"flow,omitempty"`
	Agents  Collection[protocol.Entity] `json:"agents"`
	Tasks   Collection[protocol.Entity] `json:"tasks"`
	Methods Collection[protocol.Entity] `json:"methods"`
	Traces  Collection[*trace.Trace]    `json:"traces"`

	FlowOutputs any      `json:"flow_outputs,omitempty"`
	FlowErrors  []string `json:"flow_errors,omitempty"`
	// UpdatedAt is the backend timestamp of the last applied delta, in ms
	UpdatedAt int64 `json:"updated_at,omitempty"`

	floor   uint64
	crewSeq uint64
	flowSeq uint64
}

// NewState returns the empty state for an entity. Inputs sequenced before floor are ignored.
func NewState(kind protocol.Kind, id string, floor uint64) State {
	return State{Kind: kind, EntityID: id, floor: floor}
}

// Delta is one state-affecting input, from a socket frame or an HTTP snapshot.
// Nil fields were absent from the source and leave the state untouched.
type Delta struct {
	Seq uint64

	// staleness tags, empty when the source carried none
	EntityID string
	ClientID string

	Crew    *protocol.Entity
	Flow    *protocol.Entity
	Agents  []protocol.Entity
	Tasks   []protocol.Entity
	Methods []protocol.Entity
	Traces  []*trace.Trace

	Outputs   any
	Errors    []string
	Timestamp int64
}

// CrewDelta converts a parsed crew frame
func CrewDelta(seq uint64, msg protocol.CrewState) Delta {
	return Delta{
		Seq:       seq,
		EntityID:  msg.CrewID,
		ClientID:  msg.ClientID,
		Crew:      msg.Crew,
		Agents:    msg.Agents,
		Tasks:     msg.Tasks,
		Timestamp: msg.Timestamp,
	}
}

// FlowDelta converts a parsed flow frame
func FlowDelta(seq uint64, msg protocol.FlowState) Delta {
	return Delta{
		Seq:      seq,
		EntityID: msg.FlowID,
		ClientID: msg.ClientID,
		Flow:     msg.Flow,
		Methods:  msg.Methods,
		Outputs:  msg.Outputs,
		Errors:   msg.Errors,
	}
}

// Stale reports whether a delta belongs to an older reset, another entity or another connection
func (s State) Stale(d Delta) bool {
	if d.Seq < s.floor {
		return true
	}
	if d.EntityID != "" && s.EntityID != "" && d.EntityID != s.EntityID {
		return true
	}
	if d.ClientID != "" && s.ClientID != "" && d.ClientID != s.ClientID {
		return true
	}
	return false
}

func entityID(e protocol.Entity) string { return e.ID }

func traceID(t *trace.Trace) string {
	if t == nil {
		return ""
	}
	return t.ID
}

// Apply merges one delta into state and reports whether anything changed.
// Scalars are last-writer-wins, collections merge by id, and every field or item ignores
// inputs sequenced before the input that last wrote it. Apply does not modify its argument.
func Apply(state State, d Delta) (State, bool) {
	if state.Stale(d) {
		return state, false
	}

	next := state
	changed := false

	if d.Crew != nil && d.Seq >= state.crewSeq {
		if state.Crew == nil || !reflect.DeepEqual(*state.Crew, *d.Crew) {
			changed = true
		}
		crew := *d.Crew
		next.Crew = &crew
		next.crewSeq = d.Seq
	}
	if d.Flow != nil && d.Seq >= state.flowSeq {
		if state.Flow == nil || !reflect.DeepEqual(*state.Flow, *d.Flow) {
			changed = true
		}
		flow := *d.Flow
		next.Flow = &flow
		next.flowSeq = d.Seq
		if d.Outputs != nil {
			next.FlowOutputs = d.Outputs
		}
		if d.Errors != nil {
			next.FlowErrors = append([]string(nil), d.Errors...)
		}
	}

	var c bool
	next.Agents, c = state.Agents.merge(d.Agents, entityID, d.Seq)
	changed = changed || c
	next.Tasks, c = state.Tasks.merge(d.Tasks, entityID, d.Seq)
	changed = changed || c
	next.Methods, c = state.Methods.merge(d.Methods, entityID, d.Seq)
	changed = changed || c
	next.Traces, c = state.Traces.merge(d.Traces, traceID, d.Seq)
	changed = changed || c

	if d.Timestamp > next.UpdatedAt {
		next.UpdatedAt = d.Timestamp
	}
	return next, changed
}
