package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"rpc-proxy/internal/application/port"
	"rpc-proxy/internal/config"
	"rpc-proxy/internal/domain"
	"rpc-proxy/internal/domain/entity"
	domainRepo "rpc-proxy/internal/domain/repository"
	domainService "rpc-proxy/internal/domain/service"
	"rpc-proxy/internal/pkg/apperrors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Relay directions reported to metrics and logs.
const (
	DirectionClientToUpstream = "client_to_upstream"
	DirectionUpstreamToClient = "upstream_to_client"
)

// errSessionCancelled marks a session ended by the caller's context (server shutdown).
var errSessionCancelled = errors.New("bridge session cancelled")

// Compile-time check to ensure bridge implements port.Bridge
var _ port.Bridge = (*bridge)(nil)

// bridge implements port.Bridge. Each Serve call owns one session and both of its sockets.
type bridge struct {
	registry     domainRepo.EndpointRegistry
	dialer       domainService.SocketDialer
	failures     domainRepo.FailureRepository
	metrics      port.MetricsRecorder
	logger       *zap.Logger
	pingInterval time.Duration
	writeTimeout time.Duration
}

// NewBridge creates the WebSocket bridge.
func NewBridge(
	registry domainRepo.EndpointRegistry,
	dialer domainService.SocketDialer,
	failures domainRepo.FailureRepository,
	metrics port.MetricsRecorder,
	logger *zap.Logger,
	cfg config.WebSocketConfig,
) port.Bridge {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &bridge{
		registry:     registry,
		dialer:       dialer,
		failures:     failures,
		metrics:      metrics,
		logger:       logger.Named("Bridge"),
		pingInterval: cfg.GetPingInterval(),
		writeTimeout: cfg.GetWriteTimeout(),
	}
}

// Serve runs a session for an already upgraded client socket and returns once
// both sockets are closed. The client socket is always closed on return.
func (b *bridge) Serve(ctx context.Context, network string, client domainService.Socket) port.SessionResult {
	start := time.Now()
	network = entity.NormalizeNetworkID(network)
	logger := b.logger.With(zap.String("network", network))
	defer client.Close()

	endpoint, ok := b.registry.Resolve(network)
	if !ok || !endpoint.HasWSS() {
		perr := apperrors.NewProxyError(apperrors.KindUnsupportedNetwork, network, nil)
		logger.Debug("Rejecting websocket for unsupported network", zap.Bool("known", ok))
		b.rejectUnsupported(client, perr)
		return port.SessionResult{State: port.StateFailed, Cause: perr, Duration: time.Since(start)}
	}

	upstreamURL := endpoint.WSSBaseURL.String()
	upstream, err := b.dialer.Dial(ctx, upstreamURL, nil)
	if err != nil {
		perr := apperrors.NewProxyError(apperrors.KindUpstreamUnreachable, network, err)
		if b.failures == nil || b.failures.RecordFailure(network, string(entity.ProtocolWSS), err.Error()) {
			logger.Warn("Failed to connect to upstream websocket", zap.String("url", upstreamURL), zap.Error(err))
		} else {
			logger.Debug("Failed to connect to upstream websocket again", zap.String("url", upstreamURL), zap.Error(err))
		}
		_ = client.SendClose(domainService.CloseBadGateway, "upstream unavailable", time.Now().Add(b.writeTimeout))
		return port.SessionResult{State: port.StateFailed, Cause: perr, Duration: time.Since(start)}
	}

	s := &session{
		network:      network,
		client:       client,
		upstream:     upstream,
		pingInterval: b.pingInterval,
		writeTimeout: b.writeTimeout,
		metrics:      b.metrics,
		logger:       logger,
	}
	s.setState(port.StateConnecting)

	b.metrics.SessionOpened(network)
	logger.Info("Bridge session started", zap.String("upstream", upstreamURL))

	state, cause := s.run(ctx)
	duration := time.Since(start)
	b.metrics.SessionClosed(network, state, duration)

	switch {
	case state == port.StateFailed:
		if b.failures != nil && (errors.Is(cause, apperrors.ErrUpstreamProtocol) || errors.Is(cause, domain.ErrKeepAliveFailed)) {
			b.failures.RecordFailure(network, string(entity.ProtocolWSS), cause.Error())
		}
		logger.Warn("Bridge session failed", zap.Duration("duration", duration), zap.Error(cause))
	case errors.Is(cause, apperrors.ErrClientDisconnected):
		logger.Info("Bridge session closed by client", zap.Duration("duration", duration))
	default:
		logger.Info("Bridge session closed", zap.Duration("duration", duration), zap.NamedError("cause", cause))
	}

	return port.SessionResult{State: state, Cause: cause, Duration: duration}
}

// rejectUnsupported tells the client why no upstream is used before closing.
func (b *bridge) rejectUnsupported(client domainService.Socket, perr *apperrors.ProxyError) {
	payload, err := json.Marshal(map[string]string{"error": perr.Error()})
	if err != nil {
		b.logger.Error("Failed to encode unsupported network frame", zap.Error(err))
		return
	}
	if err := client.WriteMessage(domainService.TextMessage, payload); err != nil {
		b.logger.Debug("Failed to send unsupported network frame", zap.Error(err))
		return
	}
	_ = client.SendClose(domainService.ClosePolicyViolation, "unsupported network", time.Now().Add(b.writeTimeout))
}

// session is one bridged connection pair. It runs exactly three tasks:
// two relay directions and the upstream keep-alive.
type session struct {
	network      string
	client       domainService.Socket
	upstream     domainService.Socket
	pingInterval time.Duration
	writeTimeout time.Duration
	metrics      port.MetricsRecorder
	logger       *zap.Logger

	state     atomic.Value // port.SessionState
	closeOnce sync.Once
	cause     error
}

func (s *session) run(ctx context.Context) (port.SessionState, error) {
	s.setState(port.StateBridging)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.relay(s.client, s.upstream, DirectionClientToUpstream)
	})
	g.Go(func() error {
		return s.relay(s.upstream, s.client, DirectionUpstreamToClient)
	})
	g.Go(func() error {
		return s.keepAlive(gctx)
	})
	_ = g.Wait()

	cause := s.cause
	final := port.StateFailed
	if isCleanClose(cause) {
		final = port.StateClosed
	}
	s.setState(final)
	return final, cause
}

func (s *session) setState(state port.SessionState) {
	previous, _ := s.state.Swap(state).(port.SessionState)
	s.logger.Debug("Bridge session state changed",
		zap.String("from", string(previous)), zap.String("to", string(state)))
}

// relay copies messages from src to dst until either side fails. A message is
// fully written before the next one is read.
func (s *session) relay(src, dst domainService.Socket, direction string) error {
	for {
		messageType, data, err := src.ReadMessage()
		if err != nil {
			cause := readFailure(direction, err)
			s.terminate(cause)
			return cause
		}

		if err := dst.WriteMessage(messageType, data); err != nil {
			cause := writeFailure(direction, err)
			s.terminate(cause)
			return cause
		}

		s.metrics.MessageRelayed(s.network, direction, len(data))
		if ce := s.logger.Check(zap.DebugLevel, "Relayed message"); ce != nil {
			ce.Write(
				zap.String("direction", direction),
				zap.Stringer("type", messageType),
				zap.Int("size", len(data)),
			)
		}
	}
}

// keepAlive pings the upstream at a fixed interval. The client is never pinged.
func (s *session) keepAlive(ctx context.Context) error {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.terminate(fmt.Errorf("%w: %w", errSessionCancelled, context.Cause(ctx)))
			return nil

		case <-ticker.C:
			if err := s.upstream.Ping(time.Now().Add(s.writeTimeout)); err != nil {
				cause := fmt.Errorf("%w: %w", domain.ErrKeepAliveFailed, err)
				if isPeerGone(err) {
					cause = fmt.Errorf("%w: %w", domain.ErrUpstreamClosed, err)
				}
				s.terminate(cause)
				return cause
			}
			s.logger.Debug("Sent keep-alive ping to upstream")
		}
	}
}

// terminate closes both sockets once. Only the first cause is kept; later
// callers are tasks observing the teardown.
func (s *session) terminate(cause error) {
	s.closeOnce.Do(func() {
		s.cause = cause
		s.setState(port.StateClosing)

		clientCode, clientReason, upstreamCode, upstreamReason := closeFrames(cause)
		deadline := time.Now().Add(s.writeTimeout)
		_ = s.client.SendClose(clientCode, clientReason, deadline)
		_ = s.upstream.SendClose(upstreamCode, upstreamReason, deadline)

		if err := s.upstream.Close(); err != nil {
			s.logger.Debug("Error closing upstream socket", zap.Error(err))
		}
		if err := s.client.Close(); err != nil {
			s.logger.Debug("Error closing client socket", zap.Error(err))
		}
	})
}

func readFailure(direction string, err error) error {
	if direction == DirectionClientToUpstream {
		if isPeerGone(err) {
			return fmt.Errorf("%w: %w: %w", apperrors.ErrClientDisconnected, domain.ErrClientClosed, err)
		}
		return fmt.Errorf("client read failed: %w", err)
	}
	if isPeerGone(err) {
		return fmt.Errorf("%w: %w", domain.ErrUpstreamClosed, err)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrUpstreamProtocol, err)
}

// writeFailure classifies a failed write on the destination of direction.
func writeFailure(direction string, err error) error {
	if isPeerGone(err) {
		if direction == DirectionClientToUpstream {
			return fmt.Errorf("%w: %w", domain.ErrUpstreamClosed, err)
		}
		return fmt.Errorf("%w: %w: %w", apperrors.ErrClientDisconnected, domain.ErrClientClosed, err)
	}
	return fmt.Errorf("%w (%s): %w", domain.ErrRelayWriteFailed, direction, err)
}

// isPeerGone reports whether err means the connection ended rather than misbehaved.
func isPeerGone(err error) bool {
	var ce *domainService.CloseError
	return errors.As(err, &ce) ||
		errors.Is(err, domainService.ErrSocketClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

func isCleanClose(cause error) bool {
	return errors.Is(cause, domain.ErrClientClosed) ||
		errors.Is(cause, domain.ErrUpstreamClosed) ||
		errors.Is(cause, errSessionCancelled)
}

// closeFrames picks the close code and reason sent to each side for cause.
// A peer's close code is propagated to the other side when it may be sent on the wire.
func closeFrames(cause error) (clientCode int, clientReason string, upstreamCode int, upstreamReason string) {
	var ce *domainService.CloseError
	peerCode, peerText := domainService.CloseGoingAway, "peer disconnected"
	if errors.As(cause, &ce) && sendableCloseCode(ce.Code) {
		peerCode, peerText = ce.Code, ce.Text
	}

	switch {
	case errors.Is(cause, domain.ErrClientClosed):
		return domainService.CloseNormalClosure, "", peerCode, peerText
	case errors.Is(cause, domain.ErrUpstreamClosed):
		return peerCode, peerText, domainService.CloseNormalClosure, ""
	case errors.Is(cause, errSessionCancelled):
		return domainService.CloseGoingAway, "proxy shutting down", domainService.CloseGoingAway, "proxy shutting down"
	case errors.Is(cause, apperrors.ErrUpstreamProtocol):
		return domainService.CloseBadGateway, "upstream protocol error", domainService.CloseProtocolError, ""
	case errors.Is(cause, domain.ErrKeepAliveFailed):
		return domainService.CloseBadGateway, "upstream unavailable", domainService.CloseGoingAway, ""
	default:
		return domainService.CloseInternalError, "relay error", domainService.CloseGoingAway, ""
	}
}

// sendableCloseCode excludes the codes RFC 6455 reserves for local reporting.
func sendableCloseCode(code int) bool {
	switch code {
	case domainService.CloseNoStatusReceived, domainService.CloseAbnormalClosure, domainService.CloseTLSHandshake:
		return false
	}
	return code >= 1000 && code < 5000
}
