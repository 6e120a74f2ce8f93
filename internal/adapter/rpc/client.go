package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"rpc-proxy/internal/config"
	"rpc-proxy/internal/domain/entity"
	domainService "rpc-proxy/internal/domain/service"
	"rpc-proxy/internal/pkg/apperrors"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Compile-time check
var _ domainService.UpstreamClient = (*Client)(nil)

// Client implements domainService.UpstreamClient on a streaming fasthttp client.
type Client struct {
	client          *fasthttp.Client
	responseTimeout time.Duration
	logger          *zap.Logger
}

// NewClient creates an upstream HTTP client. Response bodies are streamed, never
// buffered whole; paths and header names are sent exactly as received.
// Requests are never retried, whatever their method.
func NewClient(cfg config.UpstreamConfig, logger *zap.Logger) *Client {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	return &Client{
		client: &fasthttp.Client{
			NoDefaultUserAgentHeader:      true,
			DisableHeaderNamesNormalizing: true,
			DisablePathNormalizing:        true,
			StreamResponseBody:            true,
			MaxConnsPerHost:               cfg.MaxConnsPerHost,
			MaxConnWaitTimeout:            dialTimeout,
			MaxIdemponentCallAttempts:     1,
			RetryIfErr: func(*fasthttp.Request, int, error) (bool, bool) {
				return false, false
			},
			Dial: func(addr string) (net.Conn, error) {
				return fasthttp.DialTimeout(addr, dialTimeout)
			},
		},
		responseTimeout: cfg.GetResponseTimeout(),
		logger:          logger.Named("UpstreamClient"),
	}
}

// Do sends preq to url and returns as soon as the upstream response headers
// have arrived. The body is read lazily by the caller.
func (c *Client) Do(ctx context.Context, url string, preq entity.ProxyRequest) (*entity.StreamedResponse, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	// A missing Content-Type stays missing in both directions.
	req.Header.SetNoDefaultContentType(true)
	resp.Header.SetNoDefaultContentType(true)

	req.SetRequestURI(url)
	req.Header.SetMethod(preq.Method)
	for _, h := range preq.Headers {
		if IsHopByHop(h.Key) || strings.EqualFold(h.Key, fasthttp.HeaderHost) || strings.EqualFold(h.Key, fasthttp.HeaderContentLength) {
			continue
		}
		req.Header.Add(h.Key, h.Value)
	}
	if len(preq.Body) > 0 {
		req.SetBodyRaw(preq.Body)
	}

	timeout := c.responseTimeout
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
		requestTimeout := time.Until(deadline)
		if requestTimeout <= 0 {
			fasthttp.ReleaseResponse(resp)
			return nil, fmt.Errorf("%w: %w: deadline passed before request to %s", apperrors.ErrUpstreamUnreachable, apperrors.ErrTimeout, url)
		}
		if timeout <= 0 || requestTimeout < timeout {
			timeout = requestTimeout
		}
	}

	var requestErr error
	if timeout <= 0 {
		c.logger.Warn("No effective timeout specified for upstream request, using default Do", zap.String("url", url))
		requestErr = c.client.Do(req, resp)
	} else {
		requestErr = c.client.DoTimeout(req, resp, timeout)
	}

	if requestErr != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, classifyRequestError(url, timeout, requestErr)
	}

	headers := make([]entity.Header, 0, resp.Header.Len())
	resp.Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if IsHopByHop(k) || strings.EqualFold(k, fasthttp.HeaderContentLength) {
			return
		}
		headers = append(headers, entity.Header{Key: k, Value: string(value)})
	})

	contentLength := resp.Header.ContentLength()
	if contentLength < 0 {
		contentLength = -1
	}

	var body io.Reader = resp.BodyStream()
	if body == nil {
		// Small bodies may be fully buffered by fasthttp even in streaming mode.
		body = bytes.NewReader(resp.Body())
	}

	c.logger.Debug("Received upstream response headers",
		zap.String("url", url),
		zap.Int("statusCode", resp.StatusCode()),
		zap.Int("contentLength", contentLength),
	)

	return &entity.StreamedResponse{
		StatusCode:    resp.StatusCode(),
		Headers:       headers,
		ContentLength: contentLength,
		Body:          &responseBody{resp: resp, reader: body},
	}, nil
}

func classifyRequestError(url string, timeout time.Duration, err error) error {
	switch {
	case errors.Is(err, fasthttp.ErrTimeout), errors.Is(err, fasthttp.ErrDialTimeout):
		return fmt.Errorf("%w: %w: request to %s timed out after %v: %v",
			apperrors.ErrUpstreamUnreachable, apperrors.ErrTimeout, url, timeout, err)
	case errors.Is(err, fasthttp.ErrBodyTooLarge):
		return fmt.Errorf("%w: response from %s rejected: %v", apperrors.ErrUpstreamProtocol, url, err)
	default:
		return fmt.Errorf("%w: request to %s failed: %v", apperrors.ErrUpstreamUnreachable, url, err)
	}
}

// responseBody releases the pooled fasthttp response once the stream is closed.
type responseBody struct {
	resp   *fasthttp.Response
	reader io.Reader
	closed bool
}

func (b *responseBody) Read(p []byte) (int, error) {
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	return b.reader.Read(p)
}

func (b *responseBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	err := b.resp.CloseBodyStream()
	fasthttp.ReleaseResponse(b.resp)
	return err
}
