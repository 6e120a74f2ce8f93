package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"rpc-proxy/internal/domain/entity"
)

// UpstreamClient issues a single HTTP request to an upstream node and returns
// the response with an unread, streaming body.
type UpstreamClient interface {
	Do(ctx context.Context, url string, req entity.ProxyRequest) (*entity.StreamedResponse, error)
}

// MessageType is a WebSocket data frame opcode (RFC 6455).
type MessageType int

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return fmt.Sprintf("opcode(%d)", int(t))
	}
}

// Close codes used by the bridge (RFC 6455 section 7.4.1).
const (
	CloseNormalClosure    = 1000
	CloseGoingAway        = 1001
	CloseProtocolError    = 1002
	CloseNoStatusReceived = 1005
	CloseAbnormalClosure  = 1006
	ClosePolicyViolation  = 1008
	CloseInternalError    = 1011
	CloseBadGateway       = 1014
	CloseTLSHandshake     = 1015
)

// ErrSocketClosed is returned by Socket methods once the connection is closed locally.
var ErrSocketClosed = errors.New("socket closed")

// CloseError is returned by ReadMessage when the peer sent a close frame or the
// connection ended without one (code 1006).
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket close %d: %s", e.Code, e.Text)
}

// Socket is the connection surface used by the bridge. Implementations translate
// library errors into CloseError and ErrSocketClosed.
// Ping, SendClose and Close may be called concurrently with the other methods;
// at most one goroutine may call ReadMessage and one WriteMessage at a time.
type Socket interface {
	ReadMessage() (MessageType, []byte, error)
	WriteMessage(messageType MessageType, data []byte) error
	Ping(deadline time.Time) error
	SendClose(code int, reason string, deadline time.Time) error
	Close() error
}

// SocketDialer opens WebSocket connections to upstream nodes.
type SocketDialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}
