package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticgokit/crewview/internal/protocol"
	"github.com/agenticgokit/crewview/internal/trace"
)

func agent(id, status string) protocol.Entity {
	return protocol.Entity{ID: id, Role: "role-" + id, Status: status}
}

func TestApplyIdempotent(t *testing.T) {
	base := NewState(protocol.KindCrew, "c1", 0)
	delta := Delta{Seq: 5, Agents: []protocol.Entity{{ID: "a1", Status: "completed"}}}

	once, changed := Apply(base, delta)
	require.True(t, changed)

	twice, changed := Apply(once, delta)
	assert.False(t, changed)
	assert.Equal(t, once, twice)

	again, _ := Apply(base, delta)
	assert.Equal(t, once, again)
}

func TestApplyKeepsUnmentionedItems(t *testing.T) {
	state := NewState(protocol.KindCrew, "c1", 0)
	state, _ = Apply(state, Delta{Seq: 1, Agents: []protocol.Entity{agent("a1", "running"), agent("a2", "waiting")}})

	next, changed := Apply(state, Delta{Seq: 2, Agents: []protocol.Entity{agent("a1", "completed")}})
	require.True(t, changed)
	require.Equal(t, 2, next.Agents.Len())

	a1, _ := next.Agents.Get("a1")
	a2, _ := next.Agents.Get("a2")
	assert.Equal(t, "completed", a1.Status)
	assert.Equal(t, agent("a2", "waiting"), a2)

	// the input state is untouched
	old, _ := state.Agents.Get("a1")
	assert.Equal(t, "running", old.Status)
}

func TestApplyScalarLastWriterWins(t *testing.T) {
	state := NewState(protocol.KindCrew, "c1", 0)
	state, _ = Apply(state, Delta{Seq: 1, Crew: &protocol.Entity{ID: "c1", Name: "Research", Status: "running"}})
	state, _ = Apply(state, Delta{Seq: 2, Crew: &protocol.Entity{ID: "c1", Status: "completed"}})

	require.NotNil(t, state.Crew)
	assert.Equal(t, "completed", state.Crew.Status)
	assert.Empty(t, state.Crew.Name)
}

func TestApplySequenceGuard(t *testing.T) {
	state := NewState(protocol.KindCrew, "c1", 0)

	// snapshot issued first but answered last
	snapshotSeq := uint64(10)
	frameSeq := uint64(11)

	state, _ = Apply(state, Delta{
		Seq:    frameSeq,
		Crew:   &protocol.Entity{ID: "c1", Status: "running"},
		Agents: []protocol.Entity{agent("a1", "completed")},
	})
	state, changed := Apply(state, Delta{
		Seq:    snapshotSeq,
		Crew:   &protocol.Entity{ID: "c1", Status: "ready"},
		Agents: []protocol.Entity{agent("a1", "running"), agent("a2", "waiting")},
	})

	assert.True(t, changed, "unseen items from an older input still merge")
	assert.Equal(t, "running", state.Crew.Status)

	a1, _ := state.Agents.Get("a1")
	assert.Equal(t, "completed", a1.Status)
	_, ok := state.Agents.Get("a2")
	assert.True(t, ok)
}

func TestApplyStaleness(t *testing.T) {
	tests := []struct {
		name  string
		delta Delta
	}{
		{"before reset floor", Delta{Seq: 3, Agents: []protocol.Entity{agent("a1", "running")}}},
		{"other crew", Delta{Seq: 9, EntityID: "c-old", Agents: []protocol.Entity{agent("a1", "running")}}},
		{"other connection", Delta{Seq: 9, ClientID: "client-old", Agents: []protocol.Entity{agent("a1", "running")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewState(protocol.KindCrew, "c1", 5)
			state.ClientID = "client-new"

			next, changed := Apply(state, tt.delta)
			assert.False(t, changed)
			assert.Equal(t, 0, next.Agents.Len())
		})
	}
}

func TestApplyTracesMergeByID(t *testing.T) {
	state := NewState(protocol.KindFlow, "f1", 0)
	state, _ = Apply(state, Delta{Seq: 1, Traces: []*trace.Trace{{ID: "t1", StartTime: 1}, {ID: "t2", StartTime: 2}}})
	state, _ = Apply(state, Delta{Seq: 2, Traces: []*trace.Trace{{ID: "t2", StartTime: 2, Status: trace.StatusCompleted}}})

	require.Equal(t, 2, state.Traces.Len())
	assert.Equal(t, "t2", state.LatestTrace().ID)
	assert.Equal(t, trace.StatusCompleted, state.LatestTrace().Status)
}

func TestSortedAgents(t *testing.T) {
	state := NewState(protocol.KindCrew, "c1", 0)
	state, _ = Apply(state, Delta{Seq: 1, Agents: []protocol.Entity{
		agent("done", "completed"),
		agent("idle", "waiting"),
		agent("busy", "running"),
		agent("odd", "mystery"),
	}})

	var ids []string
	for _, a := range state.SortedAgents() {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"busy", "idle", "odd", "done"}, ids)

	// storage order is arrival order
	var stored []string
	for _, a := range state.Agents.Items() {
		stored = append(stored, a.ID)
	}
	assert.Equal(t, []string{"done", "idle", "busy", "odd"}, stored)
}

func TestStoreTrackResets(t *testing.T) {
	store := NewStore(nil)
	store.Track(protocol.KindCrew, "c1")
	store.Apply(Delta{Seq: store.NextSeq(), Agents: []protocol.Entity{agent("a1", "running")}, Tasks: []protocol.Entity{{ID: "t1"}}})
	require.Equal(t, 1, store.Snapshot().Agents.Len())

	lateSeq := store.NextSeq()
	store.Track(protocol.KindCrew, "c2")

	snap := store.Snapshot()
	assert.Equal(t, "c2", snap.EntityID)
	assert.Equal(t, 0, snap.Agents.Len())
	assert.Equal(t, 0, snap.Tasks.Len())

	// a response for c1 issued before the switch is discarded
	assert.False(t, store.Apply(Delta{Seq: lateSeq, Agents: []protocol.Entity{agent("a1", "completed")}}))

	assert.True(t, store.Apply(Delta{Seq: store.NextSeq(), Agents: []protocol.Entity{agent("b1", "running")}}))
	_, ok := store.Snapshot().Agents.Get("b1")
	assert.True(t, ok)
}

func TestStoreDropsStaleClientDeltas(t *testing.T) {
	store := NewStore(nil)
	store.Track(protocol.KindCrew, "c1")
	store.SetClientID("client-2")

	assert.False(t, store.Apply(Delta{Seq: store.NextSeq(), ClientID: "client-1", Agents: []protocol.Entity{agent("a1", "running")}}))
	assert.True(t, store.Apply(Delta{Seq: store.NextSeq(), ClientID: "client-2", Agents: []protocol.Entity{agent("a1", "running")}}))
	assert.Equal(t, 1, store.Snapshot().Agents.Len())
}

func TestStoreSubscribe(t *testing.T) {
	store := NewStore(nil)
	ch, cancel := store.Subscribe()
	defer cancel()

	store.Track(protocol.KindFlow, "f1")
	select {
	case <-ch:
	default:
		t.Fatal("expected a change signal after Track")
	}

	store.Apply(Delta{Seq: store.NextSeq()})
	select {
	case <-ch:
		t.Fatal("empty delta should not signal")
	default:
	}
}
