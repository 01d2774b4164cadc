// Package transport opens live WebSocket connections to the orchestration backend.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agenticgokit/crewview/internal/live"
	"github.com/agenticgokit/crewview/internal/protocol"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
	maxMessageSize          = 8 << 20
)

// Dialer connects to the backend's live visualization endpoints
type Dialer struct {
	baseURL *url.URL
	dialer  *websocket.Dialer
	header  http.Header
	logger  *zerolog.Logger
}

// NewDialer creates a dialer for the backend at serverURL (http, https, ws or wss)
func NewDialer(serverURL string, logger *zerolog.Logger) (*Dialer, error) {
	u, err := WebSocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dialer{
		baseURL: u,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		header: http.Header{"User-Agent": []string{"crewview"}},
		logger: logger,
	}, nil
}

// WebSocketURL converts a backend base URL to its WebSocket scheme
func WebSocketURL(serverURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server URL %q has no host", serverURL)
	}
	return u, nil
}

// Dial opens the live socket for one crew or flow
func (d *Dialer) Dial(ctx context.Context, kind protocol.Kind, id string) (live.Conn, error) {
	target := *d.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + kind.SocketPath(id)
	target.RawPath = ""

	d.logger.Debug().Str("url", target.String()).Msg("dialing live endpoint")
	ws, resp, err := d.dialer.DialContext(ctx, target.String(), d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", target.String(), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target.String(), err)
	}
	ws.SetReadLimit(maxMessageSize)
	return &Conn{ws: ws}, nil
}

// Conn is a gorilla connection safe for one reader and many writers
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// ReadMessage blocks for the next text or binary frame
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// WriteJSON sends one JSON frame
func (c *Conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

// Close sends a close frame when possible and releases the socket
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}
