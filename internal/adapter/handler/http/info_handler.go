package http

import (
	"rpc-proxy/internal/config"
	domainRepo "rpc-proxy/internal/domain/repository"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type welcomeResponse struct {
	Message           string   `json:"message"`
	SupportedNetworks []string `json:"supported_networks"`
	Info              string   `json:"info"`
	Version           string   `json:"version"`
}

type healthResponse struct {
	Status                 string                                `json:"status"`
	RecentUpstreamFailures map[string]domainRepo.UpstreamFailure `json:"recent_upstream_failures"`
}

// InfoHandler serves the welcome and health endpoints. Neither touches an upstream.
type InfoHandler struct {
	app      config.AppConfig
	registry domainRepo.EndpointRegistry
	failures domainRepo.FailureRepository
	logger   *zap.Logger
}

func NewInfoHandler(
	app config.AppConfig,
	registry domainRepo.EndpointRegistry,
	failures domainRepo.FailureRepository,
	logger *zap.Logger,
) *InfoHandler {
	return &InfoHandler{
		app:      app,
		registry: registry,
		failures: failures,
		logger:   logger.Named("InfoHandler"),
	}
}

// Welcome lists the configured networks.
func (h *InfoHandler) Welcome(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, h.logger, fasthttp.StatusOK, welcomeResponse{
		Message:           "Welcome to " + h.app.Name,
		SupportedNetworks: h.registry.Networks(),
		Info:              h.app.Info,
		Version:           h.app.Version,
	})
}

// Healthcheck reports liveness and the failures passively observed recently.
func (h *InfoHandler) Healthcheck(ctx *fasthttp.RequestCtx) {
	failures := map[string]domainRepo.UpstreamFailure{}
	if h.failures != nil {
		failures = h.failures.RecentFailures()
	}
	writeJSON(ctx, h.logger, fasthttp.StatusOK, healthResponse{
		Status:                 "online",
		RecentUpstreamFailures: failures,
	})
}
