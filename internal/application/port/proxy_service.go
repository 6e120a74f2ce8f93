package port

import (
	"context"
	"time"

	"rpc-proxy/internal/domain/entity"
	"rpc-proxy/internal/domain/service"
)

// Forwarder relays one inbound HTTP request to the upstream of its network.
type Forwarder interface {
	// Forward returns the upstream response with an unread body, or a *apperrors.ProxyError.
	Forward(ctx context.Context, req entity.ProxyRequest) (*entity.StreamedResponse, error)
}

// Bridge relays a WebSocket session between a client and the upstream of its network.
type Bridge interface {
	// Serve blocks until the session has terminated and both sockets are closed.
	Serve(ctx context.Context, network string, client service.Socket) SessionResult
}

// SessionState is a state of a bridged WebSocket session.
type SessionState string

const (
	StateConnecting SessionState = "connecting"
	StateBridging   SessionState = "bridging"
	StateClosing    SessionState = "closing"
	StateClosed     SessionState = "closed"
	StateFailed     SessionState = "failed"
)

// SessionResult is the terminal outcome of a bridged session.
type SessionResult struct {
	State    SessionState
	Cause    error
	Duration time.Duration
}

// MetricsRecorder receives proxy observations.
type MetricsRecorder interface {
	ObserveForward(network string, outcome string, status int, duration time.Duration)
	SessionOpened(network string)
	SessionClosed(network string, state SessionState, duration time.Duration)
	MessageRelayed(network string, direction string, size int)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveForward(string, string, int, time.Duration) {}
func (NopMetrics) SessionOpened(string)                              {}
func (NopMetrics) SessionClosed(string, SessionState, time.Duration) {}
func (NopMetrics) MessageRelayed(string, string, int)                {}
