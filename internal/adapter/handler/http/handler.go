package http

import (
	"context"
	"errors"
	"time"

	"rpc-proxy/internal/adapter/wsconn"
	"rpc-proxy/internal/application/port"
	"rpc-proxy/internal/config"
	"rpc-proxy/internal/domain/entity"
	"rpc-proxy/internal/domain/routing"
	"rpc-proxy/internal/pkg/apperrors"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// ProxyHandler dispatches /rpc and /ws requests to the forwarder or the bridge.
type ProxyHandler struct {
	baseCtx      context.Context
	forwarder    port.Forwarder
	bridge       port.Bridge
	upgrader     websocket.FastHTTPUpgrader
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewProxyHandler creates the proxy handler. baseCtx outlives single requests;
// cancelling it ends all bridged sessions.
func NewProxyHandler(
	baseCtx context.Context,
	forwarder port.Forwarder,
	bridge port.Bridge,
	cfg config.WebSocketConfig,
	logger *zap.Logger,
) *ProxyHandler {
	return &ProxyHandler{
		baseCtx:   baseCtx,
		forwarder: forwarder,
		bridge:    bridge,
		upgrader: websocket.FastHTTPUpgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			// Browser dApps connect from arbitrary origins.
			CheckOrigin: func(*fasthttp.RequestCtx) bool { return true },
		},
		writeTimeout: cfg.GetWriteTimeout(),
		logger:       logger.Named("ProxyHandler"),
	}
}

// Handle classifies the request and serves it.
func (h *ProxyHandler) Handle(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.URI().PathOriginal())

	match, err := routing.Route(method, path, websocket.FastHTTPIsWebSocketUpgrade(ctx))
	switch {
	case errors.Is(err, apperrors.ErrMethodNotAllowed):
		writeError(ctx, h.logger, fasthttp.StatusMethodNotAllowed, "method not allowed")
		return
	case err != nil:
		writeError(ctx, h.logger, fasthttp.StatusNotFound, "not found")
		return
	}

	if match.Family == entity.RouteFamilyWebSocket {
		h.serveWebSocket(ctx, match)
		return
	}
	h.serveRPC(ctx, match)
}

func (h *ProxyHandler) serveRPC(ctx *fasthttp.RequestCtx, match entity.RouteMatch) {
	req := entity.ProxyRequest{
		Method:    string(ctx.Method()),
		NetworkID: match.NetworkID,
		SubPath:   match.SubPath,
		Query:     string(ctx.URI().QueryString()),
		Headers:   make([]entity.Header, 0, ctx.Request.Header.Len()),
		Body:      ctx.PostBody(),
	}
	ctx.Request.Header.VisitAll(func(key, value []byte) {
		req.Headers = append(req.Headers, entity.Header{Key: string(key), Value: string(value)})
	})

	resp, err := h.forwarder.Forward(ctx, req)
	if err != nil {
		h.writeForwardError(ctx, err)
		return
	}

	ctx.SetStatusCode(resp.StatusCode)
	ctx.Response.Header.SetNoDefaultContentType(true)
	for _, header := range resp.Headers {
		ctx.Response.Header.Add(header.Key, header.Value)
	}
	// fasthttp closes the body once it has been written or the client went away.
	ctx.SetBodyStream(resp.Body, resp.ContentLength)
}

func (h *ProxyHandler) writeForwardError(ctx *fasthttp.RequestCtx, err error) {
	kind, _ := apperrors.KindOf(err)
	switch kind {
	case apperrors.KindUnsupportedNetwork:
		writeError(ctx, h.logger, fasthttp.StatusOK, err.Error())
	case apperrors.KindUpstreamUnreachable:
		status := fasthttp.StatusBadGateway
		if errors.Is(err, apperrors.ErrTimeout) {
			status = fasthttp.StatusGatewayTimeout
		}
		writeError(ctx, h.logger, status, "upstream unreachable")
	case apperrors.KindUpstreamProtocol:
		writeError(ctx, h.logger, fasthttp.StatusBadGateway, "upstream protocol error")
	default:
		h.logger.Error("Unexpected forward error", zap.Error(err))
		writeError(ctx, h.logger, fasthttp.StatusInternalServerError, "internal server error")
	}
}

func (h *ProxyHandler) serveWebSocket(ctx *fasthttp.RequestCtx, match entity.RouteMatch) {
	network := match.NetworkID
	err := h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		client := wsconn.FromFastHTTP(conn, h.writeTimeout)
		h.bridge.Serve(h.baseCtx, network, client)
	})
	if err != nil {
		// The upgrader has already written the handshake error response.
		h.logger.Debug("WebSocket upgrade failed", zap.String("network", network), zap.Error(err))
	}
}
