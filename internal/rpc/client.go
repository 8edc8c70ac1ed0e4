package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultTimeout = 2 * time.Second
	writeWait      = time.Second
)

// Conn is the byte stream the bus multiplexes. One JSON value per message.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type TransportError struct {
	URL string
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "dial" {
		return formatConnectError(e.URL, e.Err)
	}
	return fmt.Sprintf("connection to %s lost during %s: %v", e.URL, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func formatConnectError(url string, err error) string {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		msg := errno.Error()
		if msg != "" {
			msg = strings.ToUpper(msg[:1]) + msg[1:]
		}
		return fmt.Sprintf("Cannot connect to %s: [Errno %d] %s", url, int(errno), msg)
	}
	return fmt.Sprintf("Cannot connect to %s: %s", url, err)
}

// wsConn sends text frames over a gorilla websocket. Writes are serialised
// because the websocket allows one concurrent writer.
type wsConn struct {
	url string

	wmu  sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, &TransportError{URL: c.url, Op: "read", Err: err}
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return &TransportError{URL: c.url, Op: "write", Err: err}
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{URL: c.url, Op: "write", Err: err}
	}
	return nil
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	c.wmu.Unlock()
	return c.conn.Close()
}

func WrapWebsocket(url string, conn *websocket.Conn) Conn {
	return &wsConn{url: url, conn: conn}
}

func Dial(ctx context.Context, url string, timeout time.Duration) (Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		NetDialContext:   (&net.Dialer{Timeout: timeout}).DialContext,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Op: "dial", Err: err}
	}
	return WrapWebsocket(url, conn), nil
}
