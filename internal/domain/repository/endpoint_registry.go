package repository

import (
	"rpc-proxy/internal/domain/entity"
)

// EndpointRegistry defines the read-only lookup of upstream endpoints by network.
type EndpointRegistry interface {
	// Resolve returns the endpoints configured for network. Lookup is case-insensitive.
	Resolve(network string) (entity.NetworkEndpoint, bool)

	// Networks returns the configured network identifiers in sorted order.
	Networks() []string
}
