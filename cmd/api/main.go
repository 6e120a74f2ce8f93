package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	deliveryHttp "rpc-proxy/internal/adapter/delivery/http"
	handlerHttp "rpc-proxy/internal/adapter/handler/http"
	"rpc-proxy/internal/adapter/metrics"
	"rpc-proxy/internal/adapter/rpc"
	"rpc-proxy/internal/adapter/storage/memory"
	"rpc-proxy/internal/adapter/storage/registry"
	"rpc-proxy/internal/application"
	"rpc-proxy/internal/config"
	"rpc-proxy/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfgPath := flag.String("config", "configs", "directory containing config.yaml")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	// --- Environment ---
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load env file %s: %v", *envFile, err)
	}

	// --- Configuration ---
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", *cfgPath, err)
	}

	// --- Logger ---
	appLogger, err := logger.New(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to setup logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Logger initialized", zap.String("level", cfg.Logger.Level), zap.String("encoding", cfg.Logger.Encoding))

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal("Server stopped with error", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func run(cfg *config.Config, appLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Dependency Injection (Manual) ---
	appLogger.Info("Initializing dependencies...")

	networks, err := registry.Load(cfg.Registry.File, os.Environ(), appLogger)
	if err != nil {
		return err
	}
	if len(networks.Networks()) == 0 {
		appLogger.Warn("No networks configured; every proxy request will be rejected")
	}

	failureRepo := memory.NewFailureRepository(cfg.Failures, appLogger)
	recorder := metrics.NewRecorder()
	upstreamClient := rpc.NewClient(cfg.Upstream, appLogger)
	dialer := rpc.NewDialer(cfg.WebSocket, appLogger)

	forwarder := application.NewForwarder(networks, upstreamClient, failureRepo, recorder, appLogger)
	bridge := application.NewBridge(networks, dialer, failureRepo, recorder, appLogger, cfg.WebSocket)

	infoHandler := handlerHttp.NewInfoHandler(cfg.App, networks, failureRepo, appLogger)
	proxyHandler := handlerHttp.NewProxyHandler(ctx, forwarder, bridge, cfg.WebSocket, appLogger)

	// --- HTTP Router & Server ---
	appLogger.Info("Setting up HTTP router...")
	r := router.New()
	deliveryHttp.RegisterRoutes(r, infoHandler, proxyHandler, recorder.Handler(), appLogger)

	middlewares := []deliveryHttp.Middleware{deliveryHttp.Logging(appLogger)}
	if cfg.CORS.Enabled {
		appLogger.Info("CORS enabled", zap.Strings("origins", cfg.CORS.AllowedOrigins()))
		middlewares = append(middlewares, deliveryHttp.CORS(cfg.CORS))
	}

	server := &fasthttp.Server{
		Handler:               deliveryHttp.Chain(r.Handler, middlewares...),
		Name:                  cfg.App.Name,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		MaxRequestBodySize:    cfg.Server.MaxRequestBody,
		NoDefaultServerHeader: true,
		CloseOnShutdown:       true,
		Logger:                zap.NewStdLog(appLogger.Named("fasthttp")),
	}

	serverAddr := cfg.Server.Address()
	errCh := make(chan error, 1)
	go func() {
		if cfg.Server.TLSEnabled() {
			appLogger.Info("Starting HTTPS server",
				zap.String("address", serverAddr),
				zap.String("subdomain", cfg.Server.Subdomain),
			)
			errCh <- server.ListenAndServeTLS(serverAddr, cfg.Server.SSLCert, cfg.Server.SSLKey)
			return
		}
		appLogger.Info("Starting HTTP server", zap.String("address", serverAddr))
		errCh <- server.ListenAndServe(serverAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLogger.Info("Shutdown signal received, draining connections...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.ShutdownWithContext(shutdownCtx)
}
