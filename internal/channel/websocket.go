package channel

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport carries one envelope per text frame.
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewWebSocketTransport wraps an established connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// Upgrader returns the upgrader used for surface connections. Only
// same-host origins are accepted unless allowAnyOrigin is set.
func Upgrader(allowAnyOrigin bool) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAnyOrigin {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return sameHost(u.Host, r.Host)
		},
	}
}

func sameHost(a, b string) bool {
	ha, _, err := net.SplitHostPort(a)
	if err != nil {
		ha = a
	}
	hb, _, err := net.SplitHostPort(b)
	if err != nil {
		hb = b
	}
	return ha == hb
}

// Upgrade upgrades an HTTP request to a surface transport.
func Upgrade(up *websocket.Upgrader, w http.ResponseWriter, r *http.Request) (*WebSocketTransport, error) {
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketTransport(conn), nil
}

// Send writes one message as a text frame.
func (t *WebSocketTransport) Send(m Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Recv reads the next text frame. A normal close by the peer yields
// io.EOF.
func (t *WebSocketTransport) Recv() (Message, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.closed.Load() {
				return Message{}, ErrClosed
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
				errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Message{}, io.EOF
			}
			return Message{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return Message{}, &FrameError{Reason: "invalid JSON frame", Err: err}
		}
		if m.Type == "" {
			return Message{}, &FrameError{Reason: "envelope without type"}
		}
		return m, nil
	}
}

// Close sends a close frame and closes the connection.
func (t *WebSocketTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}

var _ Transport = (*WebSocketTransport)(nil)
