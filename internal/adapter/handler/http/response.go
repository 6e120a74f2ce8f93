package http

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(ctx *fasthttp.RequestCtx, logger *zap.Logger, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(ctx *fasthttp.RequestCtx, logger *zap.Logger, status int, message string) {
	writeJSON(ctx, logger, status, errorResponse{Error: message})
}
