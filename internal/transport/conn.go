package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"pitfall/internal/logging"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Conn is an agent's connection to the game server.
type Conn struct {
	ws   *websocket.Conn
	name string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the game server at url and announces the agent as name.
func Dial(ctx context.Context, url, name string) (*Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	ws, _, err := d.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Conn{ws: ws, name: name}
	if err := c.writeJSON(helloFrame{Type: FrameHello, Name: name}); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("hello: %w", err)
	}
	logging.Transport("connected to %s as %s", url, name)
	return c, nil
}

// Next blocks until the next valid frame arrives. Invalid frames are logged
// and skipped. A server that closes the game normally yields io.EOF. Cancelling ctx unblocks the read; the connection should then
// be closed.
func (c *Conn) Next(ctx context.Context) (Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Frame{}, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Frame{}, io.EOF
			}
			return Frame{}, fmt.Errorf("read frame: %w", err)
		}
		f, err := DecodeFrame(msg)
		if err != nil {
			logging.TransportWarn("skipping frame: %v", err)
			continue
		}
		logging.TransportDebug("frame %s", f.Type)
		return f, nil
	}
}

// Send writes a command frame. Empty commands are not sent.
func (c *Conn) Send(command string) error {
	if command == "" {
		return nil
	}
	return c.writeJSON(commandFrame{Type: FrameCommand, Command: command})
}

func (c *Conn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}

// Close says goodbye and closes the socket. It is safe to call twice.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
		logging.Transport("connection closed")
	})
	return err
}
