package hub

import (
	"context"

	"github.com/coder/websocket"
)

// WSConn adapts a websocket connection to the hub's Conn interface.
type WSConn struct {
	ws *websocket.Conn
}

// NewWSConn wraps an accepted websocket connection.
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

// Send writes one text frame. coder/websocket serializes concurrent
// writers internally, so no extra locking is needed here.
func (c *WSConn) Send(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Close tears the socket down with a normal closure.
func (c *WSConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}
