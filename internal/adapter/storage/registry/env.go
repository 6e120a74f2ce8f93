package registry

import (
	"strings"

	dto "rpc-proxy/internal/adapter/storage/registry/dto"
	"rpc-proxy/internal/domain/entity"
)

const envURLSuffix = "_URL"

// parseEnviron collects <NETWORK>_<PROTOCOL>_URL entries. NETWORK may contain
// underscores; PROTOCOL is RPC, WSS or WS. Anything else is ignored.
func parseEnviron(environ []string) map[string]dto.EndpointRaw {
	out := make(map[string]dto.EndpointRaw)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}

		upper := strings.ToUpper(key)
		if !strings.HasSuffix(upper, envURLSuffix) {
			continue
		}

		stem := strings.TrimSuffix(upper, envURLSuffix)
		idx := strings.LastIndex(stem, "_")
		if idx <= 0 {
			continue
		}
		network := entity.NormalizeNetworkID(stem[:idx])

		r := out[network]
		switch stem[idx+1:] {
		case "RPC":
			r.RPC = value
		case "WSS", "WS":
			r.WSS = value
		default:
			continue
		}
		out[network] = r
	}
	return out
}
