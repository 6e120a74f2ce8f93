// Package routing matches inbound proxy paths. Matching is purely syntactic:
// it never consults the registry, so an unknown route and an unknown network
// stay distinguishable.
package routing

import (
	"fmt"
	"strings"

	"rpc-proxy/internal/domain/entity"
	"rpc-proxy/internal/pkg/apperrors"
)

// Path prefixes and the websocket suffix recognised by Route.
const (
	PrefixRPC       = "rpc"
	PrefixWS        = "ws"
	SuffixWebSocket = "websocket"
)

// RPCMethods are the HTTP methods forwarded on RPC routes.
var RPCMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}

// Route matches method and path against the proxy route families:
//
//	/rpc/{network}[/{path...}]          rpc
//	/rpc/{network}/websocket            websocket (upgrade requests only)
//	/ws/{network}[/websocket]           websocket
func Route(method, path string, upgrade bool) (entity.RouteMatch, error) {
	trimmed := strings.TrimPrefix(path, "/")
	prefix, rest, _ := strings.Cut(trimmed, "/")
	network, subPath, _ := strings.Cut(rest, "/")
	network = entity.NormalizeNetworkID(network)

	if network == "" {
		return entity.RouteMatch{}, fmt.Errorf("%w: %s", apperrors.ErrRouteNotFound, path)
	}

	switch prefix {
	case PrefixWS:
		if subPath != "" && strings.Trim(subPath, "/") != SuffixWebSocket {
			return entity.RouteMatch{}, fmt.Errorf("%w: %s", apperrors.ErrRouteNotFound, path)
		}
		if method != "GET" {
			return entity.RouteMatch{}, fmt.Errorf("%w: %s %s", apperrors.ErrMethodNotAllowed, method, path)
		}
		return entity.RouteMatch{Family: entity.RouteFamilyWebSocket, NetworkID: network}, nil

	case PrefixRPC:
		if upgrade && method == "GET" && strings.Trim(subPath, "/") == SuffixWebSocket {
			return entity.RouteMatch{Family: entity.RouteFamilyWebSocket, NetworkID: network}, nil
		}
		if !isRPCMethod(method) {
			return entity.RouteMatch{}, fmt.Errorf("%w: %s %s", apperrors.ErrMethodNotAllowed, method, path)
		}
		return entity.RouteMatch{Family: entity.RouteFamilyRPC, NetworkID: network, SubPath: subPath}, nil
	}

	return entity.RouteMatch{}, fmt.Errorf("%w: %s", apperrors.ErrRouteNotFound, path)
}

func isRPCMethod(method string) bool {
	for _, m := range RPCMethods {
		if m == method {
			return true
		}
	}
	return false
}
