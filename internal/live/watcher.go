package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenticgokit/crewview/internal/protocol"
	"github.com/agenticgokit/crewview/internal/trace"
)

// Conn is one open live connection
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens live connections
type Dialer interface {
	Dial(ctx context.Context, kind protocol.Kind, id string) (Conn, error)
}

// Backend is the HTTP side of the orchestration backend used by the watcher
type Backend interface {
	Initialize(ctx context.Context, kind protocol.Kind, id string) error
	Traces(ctx context.Context, kind protocol.Kind, id string) ([]byte, error)
}

// WatcherConfig holds connection timings
type WatcherConfig struct {
	// SessionID scopes the initialization guard
	SessionID     string
	Heartbeat     time.Duration
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	MaxAttempts   int
	// PollInterval is the trace snapshot period; zero disables polling
	PollInterval time.Duration
}

// DefaultWatcherConfig returns the backend's expected timings
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Heartbeat:     30 * time.Second,
		ReconnectBase: time.Second,
		ReconnectMax:  30 * time.Second,
		MaxAttempts:   5,
		PollInterval:  5 * time.Second,
	}
}

type eventKind int

const (
	evInitFailed eventKind = iota
	evDialed
	evFrame
	evClosed
	evSnapshot
)

type event struct {
	kind eventKind
	gen  uint64
	seq  uint64
	conn Conn
	data []byte
	err  error
}

type commandKind int

const (
	cmdTrack commandKind = iota
	cmdRetry
)

type command struct {
	kind   commandKind
	entity protocol.Kind
	id     string
}

// WatcherOption customizes a Watcher
type WatcherOption func(*Watcher)

// WithAfter replaces the timer source, mainly for tests
func WithAfter(after func(time.Duration) <-chan time.Time) WatcherOption {
	return func(w *Watcher) { w.after = after }
}

// WithNow replaces the clock used for ping timestamps
func WithNow(now func() time.Time) WatcherOption {
	return func(w *Watcher) { w.now = now }
}

// Watcher keeps a Store in sync with one tracked crew or flow.
// All state transitions happen on the goroutine running Run; blocking I/O runs in
// helper goroutines that report back tagged with the connection generation.
type Watcher struct {
	store      *Store
	dialer     Dialer
	backend    Backend
	normalizer *trace.Normalizer
	guard      *InitGuard
	cfg        WatcherConfig
	logger     *zerolog.Logger

	after func(time.Duration) <-chan time.Time
	now   func() time.Time

	events   chan event
	cmds     chan command
	done     chan struct{}
	stopOnce sync.Once

	// owned by the loop goroutine
	kind       protocol.Kind
	id         string
	gen        uint64
	conn       Conn
	state      ConnState
	policy     *reconnectPolicy
	reconnectC <-chan time.Time
	pingC      <-chan time.Time
	pollC      <-chan time.Time
}

// NewWatcher creates a watcher writing into store
func NewWatcher(store *Store, dialer Dialer, backend Backend, cfg WatcherConfig, logger *zerolog.Logger, opts ...WatcherOption) *Watcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	defaults := DefaultWatcherConfig()
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaults.Heartbeat
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = defaults.ReconnectBase
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaults.ReconnectMax
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}

	w := &Watcher{
		store:      store,
		dialer:     dialer,
		backend:    backend,
		normalizer: trace.NewNormalizer(logger),
		guard:      NewInitGuard(initGuardSize),
		cfg:        cfg,
		logger:     logger,
		after:      time.After,
		now:        time.Now,
		events:     make(chan event, 64),
		cmds:       make(chan command, 8),
		done:       make(chan struct{}),
		state:      ConnIdle,
		policy:     newReconnectPolicy(cfg.ReconnectBase, cfg.ReconnectMax, cfg.MaxAttempts),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Track switches the watcher to a new entity. Safe to call from any goroutine;
// a no-op once Run has returned.
func (w *Watcher) Track(kind protocol.Kind, id string) {
	w.command(command{kind: cmdTrack, entity: kind, id: id})
}

// Retry reconnects now after a terminal failure, or cuts a pending reconnect delay short
func (w *Watcher) Retry() {
	w.command(command{kind: cmdRetry})
}

func (w *Watcher) command(cmd command) {
	select {
	case w.cmds <- cmd:
	case <-w.done:
	}
}

// Run drives the watcher until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopOnce.Do(func() { close(w.done) })
	defer w.teardown()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug().Msg("watcher stopped")
			return nil

		case cmd := <-w.cmds:
			w.handleCommand(ctx, cmd)

		case ev := <-w.events:
			w.handleEvent(ctx, ev)

		case <-w.reconnectC:
			w.reconnectC = nil
			w.connect(ctx)

		case <-w.pingC:
			w.send(protocol.NewPing(w.now()))
			w.pingC = w.after(w.cfg.Heartbeat)

		case <-w.pollC:
			w.poll(ctx)
			w.pollC = w.after(w.cfg.PollInterval)
		}
	}
}

func (w *Watcher) handleCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdTrack:
		if cmd.entity == w.kind && cmd.id == w.id && w.state != ConnFailed && w.state != ConnIdle {
			w.logger.Debug().Str("id", cmd.id).Msg("already tracking entity")
			return
		}
		if w.id != "" && (cmd.entity != w.kind || cmd.id != w.id) {
			w.guard.Release(w.cfg.SessionID, w.kind, w.id)
		}
		w.teardown()
		w.kind, w.id = cmd.entity, cmd.id
		w.store.Track(cmd.entity, cmd.id)
		w.policy.Reset()
		w.connect(ctx)
		if w.cfg.PollInterval > 0 {
			w.poll(ctx)
			w.pollC = w.after(w.cfg.PollInterval)
		}

	case cmdRetry:
		if w.id == "" || (w.state != ConnFailed && w.state != ConnDisconnected) {
			return
		}
		w.logger.Info().Str("id", w.id).Str("state", string(w.state)).Msg("retrying connection")
		// attempts keep counting while a reconnect is only being hurried along
		if w.state == ConnFailed {
			w.policy.Reset()
		}
		w.connect(ctx)
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev event) {
	// snapshots are fenced by the store's sequence guard instead of the generation
	if ev.kind == evSnapshot {
		w.applySnapshot(ev)
		return
	}
	if ev.gen != w.gen {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}

	switch ev.kind {
	case evInitFailed:
		w.logger.Warn().Err(ev.err).Str("id", w.id).Msg("initialize failed")
		w.guard.Release(w.cfg.SessionID, w.kind, w.id)
		w.store.SetLastError(fmt.Sprintf("initialize %s %s: %v", w.kind, w.id, ev.err))

	case evDialed:
		if ev.err != nil {
			w.disconnected(ev.err)
			return
		}
		w.conn = ev.conn
		go w.readLoop(ctx, w.gen, ev.conn)
		// flows never acknowledge, an open socket is a live one
		if w.kind == protocol.KindFlow {
			w.connected()
		}

	case evFrame:
		w.handleFrame(ev)

	case evClosed:
		w.disconnected(ev.err)
	}
}

func (w *Watcher) handleFrame(ev event) {
	switch msg := protocol.Parse(ev.data).(type) {
	case protocol.ConnectionEstablished:
		w.store.SetClientID(msg.ClientID)
		w.connected()
	case protocol.CrewRegistered:
		w.logger.Debug().Str("crew_id", msg.CrewID).Msg("crew registered")
	case protocol.Ping, protocol.Pong:
		w.logger.Trace().Str("type", msg.Type()).Msg("heartbeat")
	case protocol.CrewState:
		w.store.Apply(CrewDelta(ev.seq, msg))
	case protocol.FlowState:
		w.store.Apply(FlowDelta(ev.seq, msg))
	case protocol.ServerError:
		w.logger.Warn().Str("message", msg.Message).Msg("backend reported an error")
		w.store.SetLastError(msg.Message)
	case protocol.ParseError:
		w.logger.Warn().Str("reason", msg.Reason).Msg("ignoring unparseable frame")
	}
}

// connect moves to connecting and starts initialize + dial for the current generation
func (w *Watcher) connect(ctx context.Context) {
	w.gen++
	w.reconnectC = nil
	w.pingC = nil
	w.setState(ConnConnecting, nil)

	gen, kind, id := w.gen, w.kind, w.id
	needInit := w.backend != nil && w.guard.Claim(w.cfg.SessionID, kind, id)

	go func() {
		if needInit {
			if err := w.backend.Initialize(ctx, kind, id); err != nil {
				w.post(ctx, event{kind: evInitFailed, gen: gen, err: err})
			}
		}
		conn, err := w.dialer.Dial(ctx, kind, id)
		w.post(ctx, event{kind: evDialed, gen: gen, conn: conn, err: err})
	}()
}

func (w *Watcher) connected() {
	w.policy.Reset()
	w.setState(ConnConnected, nil)
	if w.kind != protocol.KindCrew {
		return
	}
	w.send(protocol.RegisterCrew(w.id))
	w.pingC = w.after(w.cfg.Heartbeat)
	w.send(protocol.RequestState(w.id))
}

func (w *Watcher) disconnected(cause error) {
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.gen++
	w.pingC = nil

	delay, ok := w.policy.Next()
	if !ok {
		err := fmt.Errorf("%w: %v", ErrConnectionFailed, cause)
		w.logger.Error().Err(cause).Str("id", w.id).Msg("giving up on live connection")
		w.setState(ConnFailed, err)
		return
	}
	w.logger.Warn().
		Err(cause).
		Int("attempt", w.policy.Attempts()).
		Dur("delay", delay).
		Msg("live connection closed, reconnecting")
	w.setState(ConnDisconnected, cause)
	w.reconnectC = w.after(delay)
}

func (w *Watcher) poll(ctx context.Context) {
	if w.backend == nil {
		return
	}
	seq := w.store.NextSeq()
	kind, id := w.kind, w.id
	go func() {
		body, err := w.backend.Traces(ctx, kind, id)
		w.post(ctx, event{kind: evSnapshot, seq: seq, data: body, err: err})
	}()
}

func (w *Watcher) applySnapshot(ev event) {
	if ev.err != nil {
		w.logger.Warn().Err(ev.err).Msg("trace snapshot failed")
		return
	}
	traces := w.normalizer.DecodeTraces(ev.data)
	w.logger.Debug().Int("traces", len(traces)).Uint64("seq", ev.seq).Msg("trace snapshot received")
	w.store.Apply(Delta{Seq: ev.seq, Traces: traces})
}

func (w *Watcher) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			w.post(ctx, event{kind: evClosed, gen: gen, err: err})
			return
		}
		w.post(ctx, event{kind: evFrame, gen: gen, seq: w.store.NextSeq(), data: data})
	}
}

func (w *Watcher) send(msg protocol.OutboundMessage) {
	if w.conn == nil {
		return
	}
	if err := w.conn.WriteJSON(msg); err != nil {
		w.logger.Warn().Err(err).Str("type", msg.Type).Msg("failed to send frame")
	}
}

func (w *Watcher) post(ctx context.Context, ev event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
	}
}

func (w *Watcher) setState(state ConnState, err error) {
	w.state = state
	w.store.SetConnState(state, err)
}

func (w *Watcher) teardown() {
	w.gen++
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.reconnectC = nil
	w.pingC = nil
	w.pollC = nil
}
