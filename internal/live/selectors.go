package live

import (
	"sort"

	"github.com/agenticgokit/crewview/internal/protocol"
	"github.com/agenticgokit/crewview/internal/trace"
)

// statusPriority orders entities for display: active work first, finished work last
var statusPriority = map[trace.Status]int{
	trace.StatusRunning:      0,
	trace.StatusInitializing: 1,
	trace.StatusWaiting:      2,
	trace.StatusPending:      3,
	trace.StatusFailed:       4,
	trace.StatusCompleted:    5,
}

func sortByStatus(items []protocol.Entity) []protocol.Entity {
	sort.SliceStable(items, func(i, j int) bool {
		return statusPriority[trace.ParseStatus(items[i].Status)] < statusPriority[trace.ParseStatus(items[j].Status)]
	})
	return items
}

// SortedAgents returns agents ordered by status priority, ties in arrival order
func (s State) SortedAgents() []protocol.Entity {
	return sortByStatus(s.Agents.Items())
}

// SortedTasks returns tasks ordered by status priority, ties in arrival order
func (s State) SortedTasks() []protocol.Entity {
	return sortByStatus(s.Tasks.Items())
}

// SortedMethods returns flow methods ordered by status priority, ties in arrival order
func (s State) SortedMethods() []protocol.Entity {
	return sortByStatus(s.Methods.Items())
}

// Root returns the tracked crew or flow record
func (s State) Root() *protocol.Entity {
	if s.Kind == protocol.KindFlow {
		return s.Flow
	}
	return s.Crew
}

// LatestTrace returns the most recently started trace, or nil
func (s State) LatestTrace() *trace.Trace {
	var latest *trace.Trace
	for _, t := range s.Traces.Items() {
		if latest == nil || t.StartTime > latest.StartTime {
			latest = t
		}
	}
	return latest
}

// TasksFor returns the tasks assigned to an agent
func (s State) TasksFor(agentID string) []protocol.Entity {
	var out []protocol.Entity
	for _, t := range s.Tasks.Items() {
		if t.AgentID == agentID {
			out = append(out, t)
		}
	}
	return out
}
