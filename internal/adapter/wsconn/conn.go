// Package wsconn adapts gorilla/websocket and fasthttp/websocket connections to
// the bridge's Socket interface. Both libraries share wire constants; their
// error types differ and are translated here.
package wsconn

import (
	"errors"
	"fmt"
	"net"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gorilla/websocket"

	domainService "rpc-proxy/internal/domain/service"
)

// Compile-time checks
var (
	_ domainService.Socket = (*GorillaConn)(nil)
	_ domainService.Socket = (*FastHTTPConn)(nil)
)

// GorillaConn wraps a gorilla/websocket connection (upstream side).
type GorillaConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// FromGorilla wraps conn. A positive writeTimeout bounds every data write.
func FromGorilla(conn *websocket.Conn, writeTimeout time.Duration) *GorillaConn {
	return &GorillaConn{conn: conn, writeTimeout: writeTimeout}
}

func (c *GorillaConn) ReadMessage() (domainService.MessageType, []byte, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return 0, nil, translateGorilla(err)
	}
	return domainService.MessageType(messageType), data, nil
}

func (c *GorillaConn) WriteMessage(messageType domainService.MessageType, data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return translateGorilla(err)
		}
	}
	return translateGorilla(c.conn.WriteMessage(int(messageType), data))
}

func (c *GorillaConn) Ping(deadline time.Time) error {
	return translateGorilla(c.conn.WriteControl(websocket.PingMessage, nil, deadline))
}

func (c *GorillaConn) SendClose(code int, reason string, deadline time.Time) error {
	return translateGorilla(c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline))
}

func (c *GorillaConn) Close() error {
	return translateGorilla(c.conn.Close())
}

func translateGorilla(err error) error {
	if err == nil {
		return nil
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &domainService.CloseError{Code: ce.Code, Text: ce.Text}
	}
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", domainService.ErrSocketClosed, err)
	}
	return err
}

// FastHTTPConn wraps a fasthttp/websocket connection (client side, upgraded by fasthttp).
type FastHTTPConn struct {
	conn         *fastws.Conn
	writeTimeout time.Duration
}

// FromFastHTTP wraps conn. A positive writeTimeout bounds every data write.
func FromFastHTTP(conn *fastws.Conn, writeTimeout time.Duration) *FastHTTPConn {
	return &FastHTTPConn{conn: conn, writeTimeout: writeTimeout}
}

func (c *FastHTTPConn) ReadMessage() (domainService.MessageType, []byte, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return 0, nil, translateFastHTTP(err)
	}
	return domainService.MessageType(messageType), data, nil
}

func (c *FastHTTPConn) WriteMessage(messageType domainService.MessageType, data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return translateFastHTTP(err)
		}
	}
	return translateFastHTTP(c.conn.WriteMessage(int(messageType), data))
}

func (c *FastHTTPConn) Ping(deadline time.Time) error {
	return translateFastHTTP(c.conn.WriteControl(fastws.PingMessage, nil, deadline))
}

func (c *FastHTTPConn) SendClose(code int, reason string, deadline time.Time) error {
	return translateFastHTTP(c.conn.WriteControl(fastws.CloseMessage, fastws.FormatCloseMessage(code, reason), deadline))
}

func (c *FastHTTPConn) Close() error {
	return translateFastHTTP(c.conn.Close())
}

func translateFastHTTP(err error) error {
	if err == nil {
		return nil
	}
	var ce *fastws.CloseError
	if errors.As(err, &ce) {
		return &domainService.CloseError{Code: ce.Code, Text: ce.Text}
	}
	if errors.Is(err, fastws.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", domainService.ErrSocketClosed, err)
	}
	return err
}
