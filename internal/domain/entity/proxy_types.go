package entity

import "io"

// RouteFamily identifies which engine serves a matched route.
type RouteFamily string

// Constants for route families.
const (
	RouteFamilyRPC       RouteFamily = "rpc"
	RouteFamilyWebSocket RouteFamily = "websocket"
)

// RouteMatch is the result of matching an inbound path.
type RouteMatch struct {
	Family    RouteFamily
	NetworkID string
	SubPath   string
}

// Header is a single header field. Order and repeated keys are preserved.
type Header struct {
	Key   string
	Value string
}

// ProxyRequest is the per-request input of the HTTP forwarder.
// Body is forwarded byte-for-byte and never parsed.
type ProxyRequest struct {
	Method    string
	NetworkID string
	SubPath   string
	Query     string
	Headers   []Header
	Body      []byte
}

// StreamedResponse is an upstream response whose body has not been read yet.
// The consumer must Close Body exactly once.
type StreamedResponse struct {
	StatusCode    int
	Headers       []Header
	ContentLength int
	Body          io.ReadCloser
}
