package domain

import "errors"

// Bridge termination causes. They decide the close code sent to the peer.
var (
	// ErrClientClosed means the client sent a close frame or dropped its connection.
	ErrClientClosed = errors.New("client closed connection")

	// ErrUpstreamClosed means the upstream sent a close frame or dropped its connection.
	ErrUpstreamClosed = errors.New("upstream closed connection")

	// ErrKeepAliveFailed means a ping could not be written to the upstream.
	ErrKeepAliveFailed = errors.New("keep-alive ping failed")

	// ErrRelayWriteFailed means a relayed message could not be written to its destination.
	ErrRelayWriteFailed = errors.New("relay write failed")
)
