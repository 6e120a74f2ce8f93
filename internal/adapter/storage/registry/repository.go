package registry

import (
	"fmt"
	"os"
	"sort"

	dto "rpc-proxy/internal/adapter/storage/registry/dto"
	"rpc-proxy/internal/domain/entity"
	domainRepo "rpc-proxy/internal/domain/repository"
	"rpc-proxy/internal/pkg/apperrors"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Compile-time check
var _ domainRepo.EndpointRegistry = (*Registry)(nil)

// Registry implements domainRepo.EndpointRegistry. It is immutable after
// construction, so concurrent lookups need no locking.
type Registry struct {
	endpoints map[string]entity.NetworkEndpoint
	networks  []string
}

// New builds a registry from already validated endpoints. Later entries for the
// same network replace earlier ones.
func New(endpoints ...entity.NetworkEndpoint) *Registry {
	r := &Registry{endpoints: make(map[string]entity.NetworkEndpoint, len(endpoints))}
	for _, e := range endpoints {
		e.NetworkID = entity.NormalizeNetworkID(e.NetworkID)
		r.endpoints[e.NetworkID] = e
	}
	r.networks = make([]string, 0, len(r.endpoints))
	for network := range r.endpoints {
		r.networks = append(r.networks, network)
	}
	sort.Strings(r.networks)
	return r
}

// Load builds the registry from the optional YAML file and the environment
// entries (KEY=VALUE). Environment entries override the file per URL.
// An invalid URL is dropped with a warning; the other URL of the same network
// is still served.
func Load(filePath string, environ []string, logger *zap.Logger) (*Registry, error) {
	logger = logger.Named("Registry")
	raw := make(map[string]dto.EndpointRaw)

	if filePath != "" {
		fileRaw, err := readFile(filePath)
		if err != nil {
			return nil, err
		}
		for network, endpoint := range fileRaw.Networks {
			key := entity.NormalizeNetworkID(network)
			raw[key] = merge(raw[key], endpoint)
		}
		logger.Info("Loaded networks from file", zap.String("file", filePath), zap.Int("count", len(fileRaw.Networks)))
	}

	for network, endpoint := range parseEnviron(environ) {
		raw[network] = merge(raw[network], endpoint)
	}

	endpoints := make([]entity.NetworkEndpoint, 0, len(raw))
	for network, r := range raw {
		endpoint, err := toDomainEndpoint(network, r)
		if err != nil {
			logger.Warn("Ignoring invalid network URL",
				zap.String("network", network),
				zap.Bool("rpcKept", endpoint.HasRPC()),
				zap.Bool("wssKept", endpoint.HasWSS()),
				zap.Error(err),
			)
		}
		if endpoint.NetworkID == "" || (!endpoint.HasRPC() && !endpoint.HasWSS()) {
			continue
		}
		endpoints = append(endpoints, endpoint)
	}

	registry := New(endpoints...)
	logger.Info("Registry built", zap.Strings("networks", registry.Networks()))
	return registry, nil
}

func readFile(filePath string) (*dto.NetworkFileRaw, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read network file %s: %v", apperrors.ErrInvalidInput, filePath, err)
	}

	var fileRaw dto.NetworkFileRaw
	if err := yaml.Unmarshal(data, &fileRaw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse network file %s: %v", apperrors.ErrInvalidInput, filePath, err)
	}
	return &fileRaw, nil
}

// Resolve returns the endpoints of network, matched case-insensitively.
func (r *Registry) Resolve(network string) (entity.NetworkEndpoint, bool) {
	e, ok := r.endpoints[entity.NormalizeNetworkID(network)]
	return e, ok
}

// Networks returns the configured network identifiers in sorted order.
func (r *Registry) Networks() []string {
	out := make([]string, len(r.networks))
	copy(out, r.networks)
	return out
}
