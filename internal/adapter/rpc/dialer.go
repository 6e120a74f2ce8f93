package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"rpc-proxy/internal/adapter/wsconn"
	"rpc-proxy/internal/config"
	domainService "rpc-proxy/internal/domain/service"
	"rpc-proxy/internal/pkg/apperrors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.SocketDialer = (*Dialer)(nil)

// Dialer implements domainService.SocketDialer with gorilla/websocket.
type Dialer struct {
	dialer       websocket.Dialer
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewDialer creates an upstream WebSocket dialer.
func NewDialer(cfg config.WebSocketConfig, logger *zap.Logger) *Dialer {
	handshakeTimeout := cfg.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}

	return &Dialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
		writeTimeout: cfg.GetWriteTimeout(),
		logger:       logger.Named("UpstreamDialer"),
	}
}

// Dial opens a WebSocket connection to url.
func (d *Dialer) Dial(ctx context.Context, url string, header http.Header) (domainService.Socket, error) {
	d.logger.Debug("Dialing upstream websocket",
		zap.String("url", url), zap.Duration("handshakeTimeout", d.dialer.HandshakeTimeout),
	)

	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w: websocket dial to %s: %v",
				apperrors.ErrUpstreamUnreachable, apperrors.ErrTimeout, url, err)
		}
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, fmt.Errorf("%w: websocket handshake with %s rejected with status %d",
				apperrors.ErrUpstreamUnreachable, url, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: websocket dial to %s failed: %v", apperrors.ErrUpstreamUnreachable, url, err)
	}

	return wsconn.FromGorilla(conn, d.writeTimeout), nil
}
