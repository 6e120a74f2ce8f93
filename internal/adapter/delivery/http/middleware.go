package http

import (
	"strings"
	"time"

	"rpc-proxy/internal/config"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const corsAllowMethods = "DELETE, GET, HEAD, OPTIONS, PATCH, POST, PUT"

// Middleware wraps a request handler.
type Middleware func(next fasthttp.RequestHandler) fasthttp.RequestHandler

// Chain applies middlewares so that the first one is the outermost.
func Chain(h fasthttp.RequestHandler, middlewares ...Middleware) fasthttp.RequestHandler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Logging logs every request once the handler has returned. Streamed bodies
// may still be in flight at that point.
func Logging(logger *zap.Logger) Middleware {
	logger = logger.Named("HTTP")
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)
			logger.Info("Request handled",
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("uri", ctx.RequestURI()),
				zap.Int("status", ctx.Response.StatusCode()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remoteAddr", ctx.RemoteAddr().String()),
			)
		}
	}
}

// CORS allows cross-origin requests from the configured origins with
// credentials, any method and any header. "*" allows every origin.
// Preflight requests are answered here and never reach an upstream.
func CORS(cfg config.CORSConfig) Middleware {
	origins := cfg.AllowedOrigins()
	allowAll := false
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}

	allowed := func(origin string) bool {
		if allowAll {
			return true
		}
		for _, o := range origins {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			origin := string(ctx.Request.Header.Peek(fasthttp.HeaderOrigin))
			if origin == "" {
				next(ctx)
				return
			}

			preflight := ctx.IsOptions() && len(ctx.Request.Header.Peek(fasthttp.HeaderAccessControlRequestMethod)) > 0
			if !allowed(origin) {
				if preflight {
					ctx.SetStatusCode(fasthttp.StatusBadRequest)
					ctx.SetBodyString("Disallowed CORS origin")
					return
				}
				next(ctx)
				return
			}

			if preflight {
				h := &ctx.Response.Header
				h.Set(fasthttp.HeaderAccessControlAllowOrigin, origin)
				h.Set(fasthttp.HeaderAccessControlAllowCredentials, "true")
				h.Set(fasthttp.HeaderAccessControlAllowMethods, corsAllowMethods)
				if requested := ctx.Request.Header.Peek(fasthttp.HeaderAccessControlRequestHeaders); len(requested) > 0 {
					h.SetBytesV(fasthttp.HeaderAccessControlAllowHeaders, requested)
				}
				h.Set(fasthttp.HeaderAccessControlMaxAge, "600")
				h.Add(fasthttp.HeaderVary, fasthttp.HeaderOrigin)
				ctx.SetStatusCode(fasthttp.StatusOK)
				return
			}

			next(ctx)

			h := &ctx.Response.Header
			h.Set(fasthttp.HeaderAccessControlAllowOrigin, origin)
			h.Set(fasthttp.HeaderAccessControlAllowCredentials, "true")
			h.Add(fasthttp.HeaderVary, fasthttp.HeaderOrigin)
		}
	}
}
