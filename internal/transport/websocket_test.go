package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticgokit/crewview/internal/live"
	"github.com/agenticgokit/crewview/internal/protocol"
)

// fakeCrewBackend speaks the crew visualization protocol for a single crew
type fakeCrewBackend struct {
	mu       sync.Mutex
	received []string
	paths    []string
}

func (b *fakeCrewBackend) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.paths = append(b.paths, r.URL.Path)
		b.mu.Unlock()

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		crewID := strings.TrimPrefix(r.URL.Path, "/ws/crew-visualization/")
		_ = ws.WriteJSON(map[string]any{
			"type":      "connection_established",
			"client_id": "client-1",
			"crew_id":   crewID,
			"timestamp": "2024-05-01T10:00:00",
		})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			typ, _ := msg["type"].(string)
			b.mu.Lock()
			b.received = append(b.received, typ)
			b.mu.Unlock()

			switch typ {
			case "register_crew":
				_ = ws.WriteJSON(map[string]any{"type": "crew_registered", "crew_id": msg["crew_id"]})
			case "request_state":
				_ = ws.WriteJSON(map[string]any{
					"crew":      map[string]any{"id": crewID, "name": "Research", "status": "running"},
					"agents":    []any{map[string]any{"id": "a1", "role": "Writer", "status": "running"}},
					"tasks":     []any{map[string]any{"id": "t1", "description": "Draft", "status": "pending", "agent_id": "a1"}},
					"timestamp": "2024-05-01T10:00:01",
				})
			case "ping":
				_ = ws.WriteJSON(map[string]any{"type": "pong"})
			}
		}
	}
}

func (b *fakeCrewBackend) receivedTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.received...)
}

type noopBackend struct{}

func (noopBackend) Initialize(context.Context, protocol.Kind, string) error { return nil }
func (noopBackend) Traces(context.Context, protocol.Kind, string) ([]byte, error) {
	return []byte(`[]`), nil
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:8000", "ws://localhost:8000", false},
		{"https://example.com/base/", "wss://example.com/base", false},
		{"ws://host:1", "ws://host:1", false},
		{"ftp://host", "", true},
		{"http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := WebSocketURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestDialerWithWatcher(t *testing.T) {
	backend := &fakeCrewBackend{}
	srv := httptest.NewServer(backend.handler(t))
	defer srv.Close()

	dialer, err := NewDialer(srv.URL, nil)
	require.NoError(t, err)

	store := live.NewStore(nil)
	w := live.NewWatcher(store, dialer, noopBackend{}, live.WatcherConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	w.Track(protocol.KindCrew, "crew-42")

	require.Eventually(t, func() bool {
		snap := store.Snapshot()
		return snap.Agents.Len() == 1 && snap.Tasks.Len() == 1
	}, 3*time.Second, 10*time.Millisecond)

	state, connErr := store.Conn()
	assert.Equal(t, live.ConnConnected, state)
	assert.NoError(t, connErr)

	snap := store.Snapshot()
	assert.Equal(t, "client-1", snap.ClientID)
	require.NotNil(t, snap.Crew)
	assert.Equal(t, "Research", snap.Crew.Name)
	assert.Equal(t, []string{"register_crew", "request_state"}, backend.receivedTypes())

	backend.mu.Lock()
	assert.Equal(t, []string{"/ws/crew-visualization/crew-42"}, backend.paths)
	backend.mu.Unlock()
}

func TestDialRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dialer, err := NewDialer(srv.URL, nil)
	require.NoError(t, err)

	_, err = dialer.Dial(context.Background(), protocol.KindFlow, "f1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}
