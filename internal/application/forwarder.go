package application

import (
	"context"
	"errors"
	"time"

	"rpc-proxy/internal/application/port"
	"rpc-proxy/internal/domain/entity"
	domainRepo "rpc-proxy/internal/domain/repository"
	domainService "rpc-proxy/internal/domain/service"
	"rpc-proxy/internal/pkg/apperrors"

	"go.uber.org/zap"
)

// Forward outcomes reported to metrics.
const (
	OutcomeForwarded   = "forwarded"
	OutcomeUnsupported = "unsupported_network"
	OutcomeUnreachable = "upstream_unreachable"
	OutcomeProtocol    = "upstream_protocol_error"
)

// Compile-time check to ensure forwarder implements port.Forwarder
var _ port.Forwarder = (*forwarder)(nil)

// forwarder implements port.Forwarder. It holds no per-request state.
type forwarder struct {
	registry domainRepo.EndpointRegistry
	client   domainService.UpstreamClient
	failures domainRepo.FailureRepository
	metrics  port.MetricsRecorder
	logger   *zap.Logger
}

// NewForwarder creates the HTTP forwarder.
func NewForwarder(
	registry domainRepo.EndpointRegistry,
	client domainService.UpstreamClient,
	failures domainRepo.FailureRepository,
	metrics port.MetricsRecorder,
	logger *zap.Logger,
) port.Forwarder {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &forwarder{
		registry: registry,
		client:   client,
		failures: failures,
		metrics:  metrics,
		logger:   logger.Named("Forwarder"),
	}
}

// Forward resolves the network and issues exactly one upstream request.
// The returned body is unread; the caller streams it to the client and closes it.
func (f *forwarder) Forward(ctx context.Context, req entity.ProxyRequest) (*entity.StreamedResponse, error) {
	start := time.Now()
	network := entity.NormalizeNetworkID(req.NetworkID)

	endpoint, ok := f.registry.Resolve(network)
	if !ok || !endpoint.HasRPC() {
		f.logger.Debug("Rejecting request for unsupported network",
			zap.String("network", network), zap.Bool("known", ok))
		f.metrics.ObserveForward(network, OutcomeUnsupported, 0, time.Since(start))
		return nil, apperrors.NewProxyError(apperrors.KindUnsupportedNetwork, network, nil)
	}

	target := endpoint.RPCBaseURL.Join(req.SubPath)
	if req.Query != "" {
		target += "?" + req.Query
	}

	f.logger.Debug("Forwarding request upstream",
		zap.String("network", network),
		zap.String("method", req.Method),
		zap.String("url", target),
		zap.Int("bodySize", len(req.Body)),
	)

	resp, err := f.client.Do(ctx, target, req)
	if err != nil {
		kind, outcome := apperrors.KindUpstreamUnreachable, OutcomeUnreachable
		if errors.Is(err, apperrors.ErrUpstreamProtocol) {
			kind, outcome = apperrors.KindUpstreamProtocol, OutcomeProtocol
		}
		f.recordFailure(network, err)
		f.metrics.ObserveForward(network, outcome, 0, time.Since(start))
		return nil, apperrors.NewProxyError(kind, network, err)
	}

	f.metrics.ObserveForward(network, OutcomeForwarded, resp.StatusCode, time.Since(start))
	return resp, nil
}

func (f *forwarder) recordFailure(network string, err error) {
	first := true
	if f.failures != nil {
		first = f.failures.RecordFailure(network, string(entity.ProtocolRPC), err.Error())
	}
	if first {
		f.logger.Warn("Upstream RPC request failed", zap.String("network", network), zap.Error(err))
		return
	}
	f.logger.Debug("Upstream RPC request failed again", zap.String("network", network), zap.Error(err))
}
