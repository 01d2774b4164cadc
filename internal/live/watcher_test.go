package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticgokit/crewview/internal/protocol"
)

type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	sent []protocol.OutboundMessage
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 8), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg, ok := v.(protocol.OutboundMessage); ok {
		c.sent = append(c.sent, msg)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var types []string
	for _, m := range c.sent {
		types = append(types, m.Type)
	}
	return types
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int
	fail  bool
	conns chan *fakeConn
}

func newFakeDialer(fail bool) *fakeDialer {
	return &fakeDialer{fail: fail, conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, kind protocol.Kind, id string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	if d.fail {
		return nil, errors.New("connection refused")
	}
	conn := newFakeConn()
	d.conns <- conn
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeBackend struct {
	mu         sync.Mutex
	inits      map[string]int
	traces     []byte
	traceCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{inits: make(map[string]int)}
}

func (b *fakeBackend) Initialize(ctx context.Context, kind protocol.Kind, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inits[id]++
	return nil
}

func (b *fakeBackend) Traces(ctx context.Context, kind protocol.Kind, id string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.traceCalls++
	if b.traces == nil {
		return []byte(`{"status":"success","traces":[]}`), nil
	}
	return b.traces, nil
}

func (b *fakeBackend) traceCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.traceCalls
}

func (b *fakeBackend) initCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inits[id]
}

type fakeTimers struct {
	mu     sync.Mutex
	delays []time.Duration
	fire   bool
}

func (f *fakeTimers) after(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.delays = append(f.delays, d)
	f.mu.Unlock()
	ch := make(chan time.Time, 1)
	if f.fire {
		ch <- time.Time{}
	}
	return ch
}

func (f *fakeTimers) recorded() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

func startWatcher(t *testing.T, dialer Dialer, backend Backend, timers *fakeTimers, cfg WatcherConfig) (*Watcher, *Store) {
	t.Helper()
	store := NewStore(nil)
	w := NewWatcher(store, dialer, backend, cfg, nil, WithAfter(timers.after))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, store
}

func connState(store *Store) ConnState {
	s, _ := store.Conn()
	return s
}

func TestWatcherReconnectBackoff(t *testing.T) {
	timers := &fakeTimers{fire: true}
	dialer := newFakeDialer(true)
	w, store := startWatcher(t, dialer, newFakeBackend(), timers, WatcherConfig{})

	w.Track(protocol.KindFlow, "f1")

	require.Eventually(t, func() bool { return connState(store) == ConnFailed }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
	}, timers.recorded())
	assert.Equal(t, 6, dialer.dialCount(), "one initial dial plus five reconnects")

	_, err := store.Conn()
	assert.ErrorIs(t, err, ErrConnectionFailed)

	// manual retry starts a fresh round
	w.Retry()
	require.Eventually(t, func() bool { return dialer.dialCount() == 12 && connState(store) == ConnFailed }, 2*time.Second, 5*time.Millisecond)
}

func TestWatcherRetryDuringBackoff(t *testing.T) {
	timers := &fakeTimers{}
	dialer := newFakeDialer(true)
	w, store := startWatcher(t, dialer, newFakeBackend(), timers, WatcherConfig{})

	w.Track(protocol.KindFlow, "f1")
	require.Eventually(t, func() bool { return connState(store) == ConnDisconnected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())

	w.Retry()
	require.Eventually(t, func() bool { return dialer.dialCount() == 2 && len(timers.recorded()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, timers.recorded(), "a hurried reconnect still counts as an attempt")
}

func TestWatcherCommandsAfterRunReturns(t *testing.T) {
	w := NewWatcher(NewStore(nil), newFakeDialer(true), nil, WatcherConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for i := 0; i < 20; i++ {
			w.Retry()
		}
		w.Track(protocol.KindCrew, "c1")
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Retry blocked after the watcher stopped")
	}
}

func TestWatcherCrewHandshake(t *testing.T) {
	timers := &fakeTimers{}
	dialer := newFakeDialer(false)
	w, store := startWatcher(t, dialer, newFakeBackend(), timers, WatcherConfig{})

	w.Track(protocol.KindCrew, "c1")
	conn := <-dialer.conns

	assert.Equal(t, ConnConnecting, connState(store), "crews wait for the acknowledgement")

	conn.frames <- []byte(`{"type":"connection_established","client_id":"client-1","crew_id":"c1"}`)
	require.Eventually(t, func() bool { return connState(store) == ConnConnected }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(conn.sentTypes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{protocol.TypeRegisterCrew, protocol.TypeRequestState}, conn.sentTypes())
	assert.Contains(t, timers.recorded(), 30*time.Second)

	conn.frames <- []byte(`{"client_id":"client-0","agents":[{"id":"ghost","status":"running"}]}`)
	conn.frames <- []byte(`{"crew":{"id":"c1","status":"running"},"agents":[{"id":"a1","status":"running"}],"tasks":[]}`)
	require.Eventually(t, func() bool { return store.Snapshot().Agents.Len() == 1 }, time.Second, 5*time.Millisecond)

	snap := store.Snapshot()
	_, ghost := snap.Agents.Get("ghost")
	assert.False(t, ghost, "delta from another connection must be dropped")
	assert.Equal(t, "client-1", snap.ClientID)
	require.NotNil(t, snap.Crew)
	assert.Equal(t, "running", snap.Crew.Status)
}

func TestWatcherEntitySwitchResets(t *testing.T) {
	timers := &fakeTimers{}
	dialer := newFakeDialer(false)
	w, store := startWatcher(t, dialer, newFakeBackend(), timers, WatcherConfig{})

	w.Track(protocol.KindCrew, "c1")
	old := <-dialer.conns
	old.frames <- []byte(`{"type":"connection_established","client_id":"client-1"}`)
	old.frames <- []byte(`{"agents":[{"id":"a1","status":"running"}],"tasks":[{"id":"t1"}]}`)
	require.Eventually(t, func() bool { return store.Snapshot().Agents.Len() == 1 }, time.Second, 5*time.Millisecond)

	w.Track(protocol.KindCrew, "c2")
	fresh := <-dialer.conns
	require.Eventually(t, old.isClosed, time.Second, 5*time.Millisecond)

	snap := store.Snapshot()
	assert.Equal(t, "c2", snap.EntityID)
	assert.Equal(t, 0, snap.Agents.Len())
	assert.Equal(t, 0, snap.Tasks.Len())

	fresh.frames <- []byte(`{"type":"connection_established","client_id":"client-2"}`)
	fresh.frames <- []byte(`{"agents":[{"id":"b1","status":"running"}]}`)
	require.Eventually(t, func() bool { return store.Snapshot().Agents.Len() == 1 }, time.Second, 5*time.Millisecond)
	_, ok := store.Snapshot().Agents.Get("b1")
	assert.True(t, ok)
}

func TestWatcherInitializesOncePerEntity(t *testing.T) {
	timers := &fakeTimers{}
	dialer := newFakeDialer(false)
	backend := newFakeBackend()
	w, _ := startWatcher(t, dialer, backend, timers, WatcherConfig{SessionID: "s1"})

	w.Track(protocol.KindFlow, "f1")
	<-dialer.conns
	w.Track(protocol.KindFlow, "f1")
	require.Eventually(t, func() bool { return backend.initCount("f1") == 1 }, time.Second, 5*time.Millisecond)

	w.Track(protocol.KindFlow, "f2")
	<-dialer.conns
	require.Eventually(t, func() bool { return backend.initCount("f2") == 1 }, time.Second, 5*time.Millisecond)

	w.Track(protocol.KindFlow, "f1")
	<-dialer.conns
	require.Eventually(t, func() bool { return backend.initCount("f1") == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, dialer.dialCount())
}

func TestWatcherPollsTraces(t *testing.T) {
	timers := &fakeTimers{}
	backend := newFakeBackend()
	backend.traces = []byte(`{"status":"success","traces":[{"id":"t1","flow_name":"Poem","start_time":1700000000,"methods":{}}]}`)
	dialer := newFakeDialer(false)
	w, store := startWatcher(t, dialer, backend, timers, WatcherConfig{PollInterval: 5 * time.Second})

	w.Track(protocol.KindFlow, "f1")
	require.Eventually(t, func() bool { return store.Snapshot().Traces.Len() == 1 }, time.Second, 5*time.Millisecond)

	tr, ok := store.Snapshot().Traces.Get("t1")
	require.True(t, ok)
	assert.Equal(t, "Poem", tr.Roots[0].Name)
	assert.Contains(t, timers.recorded(), 5*time.Second)
}

func TestWatcherIgnoresErrorEnvelope(t *testing.T) {
	timers := &fakeTimers{}
	backend := newFakeBackend()
	backend.traces = []byte(`{"status":"error","message":"flow not found"}`)
	dialer := newFakeDialer(false)
	w, store := startWatcher(t, dialer, backend, timers, WatcherConfig{PollInterval: 5 * time.Second})

	w.Track(protocol.KindFlow, "f1")
	require.Eventually(t, func() bool { return backend.traceCallCount() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return store.Snapshot().Traces.Len() > 0 }, 100*time.Millisecond, 5*time.Millisecond)
}

func TestWatcherFlowState(t *testing.T) {
	timers := &fakeTimers{}
	dialer := newFakeDialer(false)
	w, store := startWatcher(t, dialer, newFakeBackend(), timers, WatcherConfig{})

	w.Track(protocol.KindFlow, "f1")
	conn := <-dialer.conns
	require.Eventually(t, func() bool { return connState(store) == ConnConnected }, time.Second, 5*time.Millisecond)

	conn.frames <- []byte(`{"type":"flow_state","payload":{"id":"other","steps":[{"id":"x"}]}}`)
	conn.frames <- []byte(`{"type":"error","message":"Flow not found"}`)
	conn.frames <- []byte(`{"type":"flow_state","payload":{"id":"f1","status":"running","steps":[{"id":"m1","name":"start","status":"running"}]}}`)

	require.Eventually(t, func() bool { return store.Snapshot().Methods.Len() == 1 }, time.Second, 5*time.Millisecond)
	_, stale := store.Snapshot().Methods.Get("x")
	assert.False(t, stale)
	assert.Equal(t, "Flow not found", store.LastError())
	assert.Empty(t, conn.sentTypes(), "flows do not register or ping")
}
