// Package protocol defines the live visualization WebSocket protocol spoken by the orchestration backend.
package protocol

import (
	"encoding/json"
	"time"
)

// Message types from backend to client
const (
	TypeConnectionEstablished = "connection_established"
	TypeCrewRegistered        = "crew_registered"
	TypeFlowState             = "flow_state"
	TypeError                 = "error"
	TypePong                  = "pong"
)

// Message types from client to backend
const (
	TypeRegisterCrew = "register_crew"
	TypeRequestState = "request_state"
	TypePing         = "ping"
)

// Entity is the shared record shape for crews, agents, tasks, flows and methods
type Entity struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	Description string `json:"description,omitempty"`
	Goal        string `json:"goal,omitempty"`
	Status      string `json:"status,omitempty"`
	Output      any    `json:"output,omitempty"`
	AgentID     string `json:"agent_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Label returns the best human-readable name for the entity
func (e Entity) Label() string {
	switch {
	case e.Name != "":
		return e.Name
	case e.Role != "":
		return e.Role
	case e.Description != "":
		return e.Description
	default:
		return e.ID
	}
}

// Message is one parsed inbound frame. The set of implementations is closed.
type Message interface {
	Type() string
	isMessage()
}

// ConnectionEstablished acknowledges a new socket and assigns the client id
type ConnectionEstablished struct {
	ClientID  string
	CrewID    string
	Timestamp int64
}

// CrewRegistered confirms the client's interest in a crew
type CrewRegistered struct {
	CrewID string
}

// Ping is a liveness check sent by the backend
type Ping struct{}

// Pong answers a client ping
type Pong struct{}

// CrewState is a full or partial crew snapshot. Nil fields were absent from the frame.
type CrewState struct {
	Crew      *Entity
	Agents    []Entity
	Tasks     []Entity
	Timestamp int64
	// staleness tags; empty when the frame did not carry them
	CrewID   string
	ClientID string
}

// FlowState is a full or partial flow snapshot
type FlowState struct {
	Flow     *Entity
	Methods  []Entity
	Outputs  any
	Errors   []string
	FlowID   string
	ClientID string
}

// ServerError is an error frame reported by the backend
type ServerError struct {
	Message string
}

// ParseError is produced for frames that match no known shape
type ParseError struct {
	Raw    []byte
	Reason string
}

func (ConnectionEstablished) Type() string { return TypeConnectionEstablished }
func (CrewRegistered) Type() string        { return TypeCrewRegistered }
func (Ping) Type() string                  { return TypePing }
func (Pong) Type() string                  { return TypePong }
func (CrewState) Type() string             { return "crew_state" }
func (FlowState) Type() string             { return TypeFlowState }
func (ServerError) Type() string           { return TypeError }
func (ParseError) Type() string            { return "parse_error" }

func (ConnectionEstablished) isMessage() {}
func (CrewRegistered) isMessage()        {}
func (Ping) isMessage()                  {}
func (Pong) isMessage()                  {}
func (CrewState) isMessage()             {}
func (FlowState) isMessage()             {}
func (ServerError) isMessage()           {}
func (ParseError) isMessage()            {}

func (e ParseError) Error() string { return "invalid frame: " + e.Reason }

// OutboundMessage is a client to backend frame
type OutboundMessage struct {
	Type      string `json:"type"`
	CrewID    string `json:"crew_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// RegisterCrew builds the register_crew frame
func RegisterCrew(crewID string) OutboundMessage {
	return OutboundMessage{Type: TypeRegisterCrew, CrewID: crewID}
}

// RequestState builds the request_state frame
func RequestState(crewID string) OutboundMessage {
	return OutboundMessage{Type: TypeRequestState, CrewID: crewID}
}

// NewPing builds a heartbeat frame stamped with the current time in ms
func NewPing(now time.Time) OutboundMessage {
	return OutboundMessage{Type: TypePing, Timestamp: now.UnixMilli()}
}

// Marshal encodes an outbound frame
func (m OutboundMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}
