package registry

import (
	"errors"
	"fmt"

	dto "rpc-proxy/internal/adapter/storage/registry/dto"
	"rpc-proxy/internal/domain/entity"
)

// toDomainEndpoint validates raw URLs of a network and builds its domain entity.
// An empty URL leaves the corresponding endpoint unset. Each URL is validated on
// its own: the returned endpoint keeps every valid URL even when err reports an
// invalid one.
func toDomainEndpoint(network string, raw dto.EndpointRaw) (entity.NetworkEndpoint, error) {
	endpoint := entity.NetworkEndpoint{NetworkID: entity.NormalizeNetworkID(network)}
	if endpoint.NetworkID == "" {
		return entity.NetworkEndpoint{}, fmt.Errorf("network identifier cannot be empty")
	}

	var errs []error
	if raw.RPC != "" {
		rpcURL, err := entity.NewBaseURL(raw.RPC, entity.RPCSchemes...)
		if err != nil {
			errs = append(errs, fmt.Errorf("network %s rpc: %w", endpoint.NetworkID, err))
		} else {
			endpoint.RPCBaseURL = rpcURL
		}
	}

	if raw.WSS != "" {
		wssURL, err := entity.NewBaseURL(raw.WSS, entity.WSSSchemes...)
		if err != nil {
			errs = append(errs, fmt.Errorf("network %s wss: %w", endpoint.NetworkID, err))
		} else {
			endpoint.WSSBaseURL = wssURL
		}
	}

	return endpoint, errors.Join(errs...)
}

// merge overlays the non-empty URLs of src onto dst.
func merge(dst, src dto.EndpointRaw) dto.EndpointRaw {
	if src.RPC != "" {
		dst.RPC = src.RPC
	}
	if src.WSS != "" {
		dst.WSS = src.WSS
	}
	return dst
}
