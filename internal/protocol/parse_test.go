package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseControlFrames(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Message
	}{
		{
			name: "connection established",
			data: `{"type":"connection_established","client_id":"c-1","crew_id":"crew-1","timestamp":"2024-05-01T10:00:00"}`,
			want: ConnectionEstablished{ClientID: "c-1", CrewID: "crew-1", Timestamp: 1714557600000},
		},
		{
			name: "crew registered",
			data: `{"type":"crew_registered","crew_id":"crew-1"}`,
			want: CrewRegistered{CrewID: "crew-1"},
		},
		{name: "ping", data: `{"type":"ping"}`, want: Ping{}},
		{name: "pong", data: `{"type":"pong"}`, want: Pong{}},
		{
			name: "server error",
			data: `{"type":"error","message":"Flow not found"}`,
			want: ServerError{Message: "Flow not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse([]byte(tt.data)))
		})
	}
}

func TestParseCrewState(t *testing.T) {
	data := `{
		"crew": {"id": "crew-1", "name": "Research", "status": "running"},
		"agents": [
			{"id": "a1", "role": "Writer", "status": "running"},
			{"role": "no id"}
		],
		"tasks": [{"id": "t1", "description": "Write", "status": "pending", "agent_id": "a1", "output": {"text": "x"}}],
		"timestamp": "2024-05-01T10:00:00"
	}`

	msg := Parse([]byte(data))
	state, ok := msg.(CrewState)
	require.True(t, ok, "got %T", msg)

	require.NotNil(t, state.Crew)
	assert.Equal(t, "crew-1", state.Crew.ID)
	require.Len(t, state.Agents, 1)
	assert.Equal(t, "Writer", state.Agents[0].Label())
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, "a1", state.Tasks[0].AgentID)
	assert.Equal(t, map[string]any{"text": "x"}, state.Tasks[0].Output)
	assert.Equal(t, int64(1714557600000), state.Timestamp)
}

func TestParseCrewStateEmptyCrew(t *testing.T) {
	msg := Parse([]byte(`{"crew": {}, "agents": [], "tasks": []}`))
	state, ok := msg.(CrewState)
	require.True(t, ok)
	assert.Nil(t, state.Crew)
	assert.Empty(t, state.Agents)
}

func TestParsePartialDelta(t *testing.T) {
	msg := Parse([]byte(`{"agents":[{"id":"a1","status":"completed"}],"client_id":"c-9"}`))
	state, ok := msg.(CrewState)
	require.True(t, ok)
	assert.Nil(t, state.Crew)
	assert.Nil(t, state.Tasks)
	assert.Equal(t, "c-9", state.ClientID)
	assert.Len(t, state.Agents, 1)
}

func TestParseFlowState(t *testing.T) {
	data := `{"type":"flow_state","payload":{
		"id":"flow-1","name":"PoemFlow","status":"running",
		"steps":[{"id":"m1","name":"generate","status":"completed","outputs":"ok"},{"id":"m2","name":"save","status":"running"}],
		"outputs":null,"errors":["boom"]
	}}`

	msg := Parse([]byte(data))
	state, ok := msg.(FlowState)
	require.True(t, ok, "got %T", msg)
	require.NotNil(t, state.Flow)
	assert.Equal(t, "flow-1", state.FlowID)
	assert.Equal(t, "PoemFlow", state.Flow.Name)
	require.Len(t, state.Methods, 2)
	assert.Equal(t, "ok", state.Methods[0].Output)
	assert.Equal(t, []string{"boom"}, state.Errors)
}

func TestParseInvalidFrames(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `hello`},
		{"array", `[1]`},
		{"unknown type", `{"type":"mystery"}`},
		{"ack without client", `{"type":"connection_established"}`},
		{"flow without payload", `{"type":"flow_state"}`},
		{"agents not array", `{"agents":"a1"}`},
		{"crew not object", `{"crew":"c1"}`},
		{"empty object", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Parse([]byte(tt.data))
			perr, ok := msg.(ParseError)
			require.True(t, ok, "got %T", msg)
			assert.NotEmpty(t, perr.Reason)
			assert.Equal(t, tt.data, string(perr.Raw))
		})
	}
}

func TestOutboundMessages(t *testing.T) {
	data, err := RegisterCrew("crew-1").Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"register_crew","crew_id":"crew-1"}`, string(data))

	data, err = RequestState("").Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"request_state"}`, string(data))
}
