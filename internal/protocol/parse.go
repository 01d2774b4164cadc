package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/agenticgokit/crewview/internal/trace"
)

type rawFrame map[string]json.RawMessage

// Parse converts one WebSocket frame into a typed Message.
// Frames that match no known shape become ParseError; Parse never returns nil.
func Parse(data []byte) Message {
	var frame rawFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ParseError{Raw: data, Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}

	switch typ := stringField(frame, "type"); typ {
	case TypeConnectionEstablished:
		clientID := stringField(frame, "client_id")
		if clientID == "" {
			return ParseError{Raw: data, Reason: "connection_established without client_id"}
		}
		msg := ConnectionEstablished{ClientID: clientID, CrewID: stringField(frame, "crew_id")}
		msg.Timestamp = timestampField(frame, "timestamp")
		return msg

	case TypeCrewRegistered:
		return CrewRegistered{CrewID: stringField(frame, "crew_id")}

	case TypePing:
		return Ping{}

	case TypePong:
		return Pong{}

	case TypeError:
		msg := stringField(frame, "message")
		if msg == "" {
			msg = "unknown server error"
		}
		return ServerError{Message: msg}

	case TypeFlowState:
		var payload rawFrame
		if err := json.Unmarshal(frame["payload"], &payload); err != nil || payload == nil {
			return ParseError{Raw: data, Reason: "flow_state without payload object"}
		}
		state, err := parseFlowState(payload)
		if err != nil {
			return ParseError{Raw: data, Reason: err.Error()}
		}
		state.ClientID = stringField(frame, "client_id")
		return state

	case "":
		return parseUntagged(data, frame)

	default:
		return ParseError{Raw: data, Reason: fmt.Sprintf("unknown message type %q", typ)}
	}
}

// parseUntagged handles bare state deltas that carry no type discriminator
func parseUntagged(data []byte, frame rawFrame) Message {
	_, hasCrew := frame["crew"]
	_, hasAgents := frame["agents"]
	_, hasTasks := frame["tasks"]
	_, hasFlow := frame["flow"]
	_, hasMethods := frame["methods"]
	_, hasSteps := frame["steps"]

	switch {
	case hasCrew || hasAgents || hasTasks:
		state, err := parseCrewState(frame)
		if err != nil {
			return ParseError{Raw: data, Reason: err.Error()}
		}
		return state
	case hasFlow || hasMethods || hasSteps:
		var state FlowState
		if hasFlow && !isNull(frame["flow"]) {
			var flow rawFrame
			if err := json.Unmarshal(frame["flow"], &flow); err != nil {
				return ParseError{Raw: data, Reason: "flow is not an object"}
			}
			if e, ok := decodeEntity(flow); ok {
				state.Flow = &e
			}
		}
		methods, err := entityList(frame, "methods", "steps")
		if err != nil {
			return ParseError{Raw: data, Reason: err.Error()}
		}
		state.Methods = methods
		state.FlowID = stringField(frame, "flow_id")
		state.ClientID = stringField(frame, "client_id")
		return state
	default:
		return ParseError{Raw: data, Reason: "frame has no type and no state fields"}
	}
}

func parseCrewState(frame rawFrame) (CrewState, error) {
	var state CrewState
	if raw, ok := frame["crew"]; ok && !isNull(raw) {
		var crew rawFrame
		if err := json.Unmarshal(raw, &crew); err != nil {
			return state, fmt.Errorf("crew is not an object")
		}
		// an empty crew object means the backend has no active crew yet
		if e, ok := decodeEntity(crew); ok {
			state.Crew = &e
		}
	}

	agents, err := entityList(frame, "agents")
	if err != nil {
		return state, err
	}
	tasks, err := entityList(frame, "tasks")
	if err != nil {
		return state, err
	}
	state.Agents = agents
	state.Tasks = tasks
	state.Timestamp = timestampField(frame, "timestamp")
	state.CrewID = stringField(frame, "crew_id")
	state.ClientID = stringField(frame, "client_id")
	return state, nil
}

func parseFlowState(payload rawFrame) (FlowState, error) {
	var state FlowState
	if flow, ok := decodeEntity(payload); ok {
		state.Flow = &flow
		state.FlowID = flow.ID
	}

	methods, err := entityList(payload, "methods", "steps")
	if err != nil {
		return state, err
	}
	state.Methods = methods

	if raw, ok := payload["outputs"]; ok && !isNull(raw) {
		var outputs any
		if err := json.Unmarshal(raw, &outputs); err == nil {
			state.Outputs = outputs
		}
	}
	if raw, ok := payload["errors"]; ok && !isNull(raw) {
		var errs []any
		if err := json.Unmarshal(raw, &errs); err == nil {
			for _, e := range errs {
				state.Errors = append(state.Errors, fmt.Sprint(e))
			}
		}
	}
	return state, nil
}

// entityList decodes the first present key as a list of entities.
// Elements without an id are dropped since they cannot be merged.
func entityList(frame rawFrame, keys ...string) ([]Entity, error) {
	for _, key := range keys {
		raw, ok := frame[key]
		if !ok || isNull(raw) {
			continue
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, fmt.Errorf("%s is not an array", key)
		}
		list := make([]Entity, 0, len(elems))
		for _, elem := range elems {
			var obj rawFrame
			if err := json.Unmarshal(elem, &obj); err != nil {
				continue
			}
			if e, ok := decodeEntity(obj); ok {
				list = append(list, e)
			}
		}
		return list, nil
	}
	return nil, nil
}

func decodeEntity(obj rawFrame) (Entity, bool) {
	e := Entity{
		ID:          stringField(obj, "id"),
		Name:        stringField(obj, "name"),
		Role:        stringField(obj, "role"),
		Description: stringField(obj, "description"),
		Goal:        stringField(obj, "goal"),
		Status:      stringField(obj, "status"),
		AgentID:     stringField(obj, "agent_id"),
		Error:       stringField(obj, "error"),
	}
	if e.ID == "" {
		return Entity{}, false
	}
	for _, key := range []string{"output", "outputs"} {
		if raw, ok := obj[key]; ok && !isNull(raw) {
			var out any
			if err := json.Unmarshal(raw, &out); err == nil {
				e.Output = out
				break
			}
		}
	}
	return e, true
}

func stringField(frame rawFrame, key string) string {
	raw, ok := frame[key]
	if !ok || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func timestampField(frame rawFrame, key string) int64 {
	raw, ok := frame[key]
	if !ok || isNull(raw) {
		return 0
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0
	}
	ms, err := trace.ParseTimestamp(v)
	if err != nil {
		return 0
	}
	return ms
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
