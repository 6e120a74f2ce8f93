package repository

import (
	"time"
)

// UpstreamFailure describes the most recent upstream failure observed for a network.
type UpstreamFailure struct {
	Network  string    `json:"network"`
	Protocol string    `json:"protocol"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
	Count    int       `json:"count"`
}

// FailureRepository tracks recent upstream failures passively observed by the proxy.
// Entries expire on their own; nothing here triggers upstream traffic.
type FailureRepository interface {
	// RecordFailure stores a failure and reports whether it is the first one for
	// this network and protocol within the retention window.
	RecordFailure(network, protocol, reason string) bool

	// RecentFailures returns the unexpired failures keyed by "network/protocol".
	RecentFailures() map[string]UpstreamFailure
}
