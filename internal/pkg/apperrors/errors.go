package apperrors

import (
	"errors"
	"fmt"
)

// Standard application errors
var (
	// ErrUnsupportedNetwork is returned when a network is not in the registry or lacks the endpoint for the requested transport.
	ErrUnsupportedNetwork = errors.New("network not supported")

	// ErrUpstreamUnreachable is returned when the upstream node cannot be connected to or does not answer in time.
	ErrUpstreamUnreachable = errors.New("upstream unreachable")

	// ErrUpstreamProtocol is returned when the upstream sends a malformed or unexpected response or frame.
	ErrUpstreamProtocol = errors.New("upstream protocol error")

	// ErrClientDisconnected marks a normal client-side termination. It is not a failure.
	ErrClientDisconnected = errors.New("client disconnected")

	// ErrInvalidInput is returned when the input provided by the client or operator is invalid.
	ErrInvalidInput = errors.New("invalid input provided")

	// ErrRouteNotFound is returned when a path matches no proxy route.
	ErrRouteNotFound = errors.New("route not found")

	// ErrMethodNotAllowed is returned when a proxy route does not accept the request method.
	ErrMethodNotAllowed = errors.New("method not allowed")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("operation timed out")

	// ErrInternal is returned for unexpected internal system errors.
	ErrInternal = errors.New("internal system error")
)

// Kind classifies a ProxyError.
type Kind string

const (
	KindUnsupportedNetwork  Kind = "UnsupportedNetwork"
	KindUpstreamUnreachable Kind = "UpstreamUnreachable"
	KindUpstreamProtocol    Kind = "UpstreamProtocolError"
	KindClientDisconnected  Kind = "ClientDisconnected"
)

var kindSentinels = map[Kind]error{
	KindUnsupportedNetwork:  ErrUnsupportedNetwork,
	KindUpstreamUnreachable: ErrUpstreamUnreachable,
	KindUpstreamProtocol:    ErrUpstreamProtocol,
	KindClientDisconnected:  ErrClientDisconnected,
}

// ProxyError is the error returned by the forwarder and the bridge.
// errors.Is matches both the wrapped cause and the sentinel of its Kind.
type ProxyError struct {
	Kind    Kind
	Network string
	Err     error
}

// NewProxyError builds a ProxyError for the given kind and network.
func NewProxyError(kind Kind, network string, err error) *ProxyError {
	return &ProxyError{Kind: kind, Network: network, Err: err}
}

func (e *ProxyError) Error() string {
	if e.Kind == KindUnsupportedNetwork {
		return fmt.Sprintf("network %s not supported!", e.Network)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: network %s", e.Kind, e.Network)
	}
	return fmt.Sprintf("%s: network %s: %v", e.Kind, e.Network, e.Err)
}

func (e *ProxyError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the Kind of the first ProxyError in err's chain.
func KindOf(err error) (Kind, bool) {
	var pe *ProxyError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
