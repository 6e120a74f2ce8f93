package http

import (
	handler "rpc-proxy/internal/adapter/handler/http"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// RegisterRoutes sets up the info, metrics and proxy routes.
// Path semantics below /rpc and /ws are decided by the proxy handler, so both
// prefixes are registered as catch-alls for every method.
func RegisterRoutes(
	r *router.Router,
	info *handler.InfoHandler,
	proxy *handler.ProxyHandler,
	metrics fasthttp.RequestHandler,
	logger *zap.Logger,
) {
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.HandleOPTIONS = false

	logger.Info("Setting up info routes...")
	r.GET("/", info.Welcome)
	r.GET("/api/v1/healthcheck", info.Healthcheck)
	if metrics != nil {
		r.GET("/metrics", metrics)
	}

	logger.Info("Setting up proxy routes...")
	r.ANY("/rpc/{path:*}", proxy.Handle)
	r.ANY("/ws/{path:*}", proxy.Handle)

	logger.Info("All routes registered.")
}
