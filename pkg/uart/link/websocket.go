package link

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/robotalks/aicupg/pkg/framework"
	"golang.org/x/net/websocket"
)

// WebSocket tunnels the byte link over websocket binary messages.
// Message boundaries carry no meaning.
type WebSocket struct {
	conn *websocket.Conn
	ring *Ring
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn, ring: NewRing(DefaultRingSize)}
}

// DialWebSocket connects to a websocket tunnel.
func DialWebSocket(url, origin string) (*WebSocket, error) {
	conn, err := websocket.Dial(url, "", origin)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return NewWebSocket(conn), nil
}

// Name implements framework.Named.
func (w *WebSocket) Name() string {
	return "ws:" + w.conn.RemoteAddr().String()
}

// Ring returns the receive buffer.
func (w *WebSocket) Ring() *Ring {
	return w.ring
}

// Read implements comm.ByteLink.
func (w *WebSocket) Read(p []byte) (int, error) {
	return w.ring.Read(p)
}

// Write implements comm.ByteLink.
func (w *WebSocket) Write(p []byte) (int, error) {
	if err := websocket.Message.Send(w.conn, p); err != nil {
		return 0, errors.Wrap(err, "websocket send")
	}
	return len(p), nil
}

// Close closes the connection.
func (w *WebSocket) Close() error {
	return w.conn.Close()
}

// Run implements framework.Runnable.
func (w *WebSocket) Run(ctx context.Context) error {
	if ctl := framework.LoopCtlFrom(ctx); ctl != nil {
		w.ring.Notify = ctl.TriggerNext
	}
	return framework.RunWithContextCloser(ctx, w.conn, func() error {
		for {
			var msg []byte
			if err := websocket.Message.Receive(w.conn, &msg); err != nil {
				if err == io.EOF {
					return nil
				}
				return errors.Wrap(err, "websocket receive")
			}
			w.ring.Put(msg)
		}
	})
}
