package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	handler "rpc-proxy/internal/adapter/handler/http"
	"rpc-proxy/internal/adapter/metrics"
	"rpc-proxy/internal/adapter/rpc"
	"rpc-proxy/internal/adapter/storage/memory"
	"rpc-proxy/internal/adapter/storage/registry"
	"rpc-proxy/internal/application"
	"rpc-proxy/internal/config"
	"rpc-proxy/internal/domain/entity"

	"github.com/fasthttp/router"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap/zaptest"
)

type echoedRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Query  string `json:"query"`
	Body   string `json:"body"`
	APIKey string `json:"apiKey"`
}

type proxyFixture struct {
	baseURL     string
	wsURL       string
	streamGate  chan struct{}
	upstreamEnd chan int
}

// newProxyFixture starts HTTP and WebSocket upstreams and the proxy in front of them.
func newProxyFixture(t *testing.T) *proxyFixture {
	t.Helper()
	f := &proxyFixture{
		streamGate:  make(chan struct{}),
		upstreamEnd: make(chan int, 4),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/key/stream", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(strings.Repeat("a", 32*1024)))
		w.(http.Flusher).Flush()
		select {
		case <-f.streamGate:
			_, _ = w.Write([]byte(strings.Repeat("b", 32*1024)))
		case <-time.After(3 * time.Second):
		}
	})
	mux.HandleFunc("/key/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Header().Set("X-Request-Content-Type", strings.Join(r.Header.Values("Content-Type"), ","))
		_, _ = w.Write([]byte("raw bytes"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "http-node")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(echoedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Query:  r.URL.RawQuery,
			Body:   string(body),
			APIKey: r.Header.Get("X-Api-Key"),
		})
	})
	httpUpstream := httptest.NewServer(mux)
	t.Cleanup(httpUpstream.Close)

	upgrader := websocket.Upgrader{}
	wsUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				code := websocket.CloseAbnormalClosure
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					code = ce.Code
				}
				f.upstreamEnd <- code
				return
			}
			if string(data) == "close-me" {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(4001, "requested"), time.Now().Add(time.Second))
				continue
			}
			if err := conn.WriteMessage(messageType, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(wsUpstream.Close)

	logger := zaptest.NewLogger(t)
	networks := registry.New(
		entity.NetworkEndpoint{
			NetworkID:  "eth",
			RPCBaseURL: entity.BaseURL(httpUpstream.URL + "/key"),
			WSSBaseURL: entity.BaseURL("ws" + strings.TrimPrefix(wsUpstream.URL, "http")),
		},
		entity.NetworkEndpoint{NetworkID: "rpconly", RPCBaseURL: entity.BaseURL(httpUpstream.URL)},
	)
	wsCfg := config.WebSocketConfig{PingInterval: 50 * time.Millisecond, HandshakeTimeout: time.Second, WriteTimeout: time.Second}
	failures := memory.NewFailureRepository(config.FailuresConfig{TTL: time.Minute, CleanupInterval: time.Minute}, logger)
	recorder := metrics.NewRecorder()

	forwarder := application.NewForwarder(networks, rpc.NewClient(config.UpstreamConfig{ResponseTimeout: 5 * time.Second}, logger), failures, recorder, logger)
	bridge := application.NewBridge(networks, rpc.NewDialer(wsCfg, logger), failures, recorder, logger, wsCfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	r := router.New()
	RegisterRoutes(r,
		handler.NewInfoHandler(config.AppConfig{Name: "rpc-proxy", Version: "test", Info: "info"}, networks, failures, logger),
		handler.NewProxyHandler(ctx, forwarder, bridge, wsCfg, logger),
		recorder.Handler(),
		logger,
	)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &fasthttp.Server{
		Handler: Chain(r.Handler, Logging(logger), CORS(config.CORSConfig{Enabled: true, Origins: "*"})),
	}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = server.Shutdown() })

	f.baseURL = "http://" + ln.Addr().String()
	f.wsURL = "ws://" + ln.Addr().String()
	return f
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestProxy_Welcome(t *testing.T) {
	f := newProxyFixture(t)

	resp, err := http.Get(f.baseURL + "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Message           string   `json:"message"`
		SupportedNetworks []string `json:"supported_networks"`
		Version           string   `json:"version"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, []string{"eth", "rpconly"}, body.SupportedNetworks)
	assert.Equal(t, "test", body.Version)
}

func TestProxy_Healthcheck(t *testing.T) {
	f := newProxyFixture(t)

	resp, err := http.Get(f.baseURL + "/api/v1/healthcheck")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, "online", body["status"])
	assert.Empty(t, body["recent_upstream_failures"])
}

func TestProxy_ForwardsRPC(t *testing.T) {
	f := newProxyFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.baseURL+"/rpc/ETH/v1/abc?block=latest", strings.NewReader(`{"jsonrpc":"2.0","id":1}`))
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "k1")
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "http-node", resp.Header.Get("X-Upstream"))

	var echoed echoedRequest
	decodeJSON(t, resp, &echoed)
	assert.Equal(t, echoedRequest{
		Method: http.MethodPost,
		Path:   "/key/v1/abc",
		Query:  "block=latest",
		Body:   `{"jsonrpc":"2.0","id":1}`,
		APIKey: "k1",
	}, echoed)
}

func TestProxy_ForwardsWithoutSubPath(t *testing.T) {
	f := newProxyFixture(t)

	for _, path := range []string{"/rpc/eth", "/rpc/eth/"} {
		resp, err := http.Post(f.baseURL+path, "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)

		var echoed echoedRequest
		decodeJSON(t, resp, &echoed)
		assert.Equal(t, "/key", echoed.Path, path)
	}
}

func TestProxy_StreamsResponse(t *testing.T) {
	f := newProxyFixture(t)

	resp, err := http.Get(f.baseURL + "/rpc/eth/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	first := make([]byte, 32*1024)
	_, err = io.ReadFull(resp.Body, first)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 32*1024), string(first))
	close(f.streamGate)

	rest, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("b", 32*1024), string(rest))
}

func TestProxy_KeepsMissingContentTypeMissing(t *testing.T) {
	f := newProxyFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.baseURL+"/rpc/eth/plain", strings.NewReader(`{}`))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "raw bytes", string(body))
	_, hasContentType := resp.Header["Content-Type"]
	assert.False(t, hasContentType)
	assert.Empty(t, resp.Header.Get("X-Request-Content-Type"))
}

func TestProxy_UnsupportedNetwork(t *testing.T) {
	f := newProxyFixture(t)

	resp, err := http.Post(f.baseURL+"/rpc/unknown", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, map[string]string{"error": "network unknown not supported!"}, body)
}

func TestProxy_RouteErrors(t *testing.T) {
	f := newProxyFixture(t)

	resp, err := http.Post(f.baseURL+"/ws/eth", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(f.baseURL + "/rpc/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProxy_CORSPreflightIsAnsweredLocally(t *testing.T) {
	f := newProxyFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.baseURL+"/rpc/eth", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dapp.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://dapp.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", resp.Header.Get("Access-Control-Allow-Headers"))
	assert.Empty(t, resp.Header.Get("X-Upstream"))
}

func TestProxy_CORSAcceptsLowercaseHeaderNames(t *testing.T) {
	f := newProxyFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.baseURL+"/rpc/eth", nil)
	require.NoError(t, err)
	req.Header["origin"] = []string{"https://dapp.example.com"}
	req.Header["access-control-request-method"] = []string{"POST"}
	req.Header["access-control-request-headers"] = []string{"x-api-key"}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://dapp.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "x-api-key", resp.Header.Get("Access-Control-Allow-Headers"))
}

func TestProxy_Metrics(t *testing.T) {
	f := newProxyFixture(t)

	resp, err := http.Post(f.baseURL+"/rpc/eth", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(f.baseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rpc_proxy_forward_requests_total{network="eth",outcome="forwarded",status="201"} 1`)
}

func dialProxy(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	return conn
}

func TestProxy_WebSocketBridge(t *testing.T) {
	f := newProxyFixture(t)

	for _, path := range []string{"/ws/eth", "/ws/eth/websocket", "/rpc/eth/websocket"} {
		t.Run(path, func(t *testing.T) {
			conn := dialProxy(t, f.wsURL+path)

			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"method":"eth_subscribe"}`)))
			require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad}))

			messageType, data, err := conn.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, websocket.TextMessage, messageType)
			assert.Equal(t, `{"method":"eth_subscribe"}`, string(data))

			messageType, data, err = conn.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, websocket.BinaryMessage, messageType)
			assert.Equal(t, []byte{0xde, 0xad}, data)

			require.NoError(t, conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second)))
			_ = conn.Close()

			select {
			case code := <-f.upstreamEnd:
				assert.Equal(t, websocket.CloseNormalClosure, code)
			case <-time.After(3 * time.Second):
				t.Fatal("upstream connection was not closed after the client left")
			}
		})
	}
}

func TestProxy_WebSocketUpstreamCloseReachesClient(t *testing.T) {
	f := newProxyFixture(t)
	conn := dialProxy(t, f.wsURL+"/ws/eth")
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("close-me")))

	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4001, ce.Code)
	assert.Equal(t, "requested", ce.Text)
}

func TestProxy_WebSocketUnsupportedNetwork(t *testing.T) {
	f := newProxyFixture(t)

	for _, network := range []string{"unknown", "rpconly"} {
		conn := dialProxy(t, f.wsURL+"/ws/"+network)

		messageType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, messageType)
		assert.JSONEq(t, `{"error":"network `+network+` not supported!"}`, string(data))

		_, _, err = conn.ReadMessage()
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
		_ = conn.Close()
	}
}
