package live

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/agenticgokit/crewview/internal/protocol"
)

// ConnState is the lifecycle state of the live connection
type ConnState string

const (
	ConnIdle         ConnState = "idle"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnDisconnected ConnState = "disconnected"
	ConnFailed       ConnState = "failed"
)

// ErrConnectionFailed is reported once reconnect attempts are exhausted
var ErrConnectionFailed = errors.New("connection failed after maximum reconnect attempts")

// Store is the state container shared by the watcher and every renderer.
// The watcher is its only writer.
type Store struct {
	mu      sync.RWMutex
	state   State
	conn    ConnState
	connErr error
	lastErr string

	seq atomic.Uint64

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int

	logger *zerolog.Logger
}

// NewStore creates an empty store
func NewStore(logger *zerolog.Logger) *Store {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{
		conn:   ConnIdle,
		subs:   make(map[int]chan struct{}),
		logger: logger,
	}
}

// NextSeq hands out the next logical sequence number
func (s *Store) NextSeq() uint64 {
	return s.seq.Add(1)
}

// Track discards all state and starts mirroring a new entity.
// Anything sequenced before this call is ignored from now on.
func (s *Store) Track(kind protocol.Kind, id string) {
	floor := s.NextSeq()
	s.mu.Lock()
	s.state = NewState(kind, id, floor)
	s.lastErr = ""
	s.mu.Unlock()
	s.logger.Debug().Str("kind", string(kind)).Str("id", id).Uint64("floor", floor).Msg("tracking entity")
	s.notify()
}

// SetClientID records the id the backend assigned to the live connection
func (s *Store) SetClientID(id string) {
	s.mu.Lock()
	s.state.ClientID = id
	s.mu.Unlock()
	s.notify()
}

// Apply merges a delta into the current state
func (s *Store) Apply(d Delta) bool {
	s.mu.Lock()
	if s.state.Stale(d) {
		s.mu.Unlock()
		s.logger.Debug().
			Uint64("seq", d.Seq).
			Str("entity_id", d.EntityID).
			Str("client_id", d.ClientID).
			Msg("dropping stale delta")
		return false
	}
	next, changed := Apply(s.state, d)
	s.state = next
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return changed
}

// Snapshot returns the current state. The returned value is never mutated by the store.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetConnState records a connection transition
func (s *Store) SetConnState(state ConnState, err error) {
	s.mu.Lock()
	s.conn = state
	s.connErr = err
	s.mu.Unlock()
	s.notify()
}

// Conn returns the connection state and the error that caused it, if any
func (s *Store) Conn() (ConnState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn, s.connErr
}

// SetLastError records an error reported by the backend
func (s *Store) SetLastError(msg string) {
	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
	s.notify()
}

// LastError returns the most recent backend error message
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Subscribe returns a channel signalled after every change and a function to stop the subscription.
// Signals coalesce; receivers should read a fresh Snapshot on each one.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
