package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Failures  FailuresConfig  `mapstructure:"failures"`
	Registry  RegistryConfig  `mapstructure:"registry"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Info    string `mapstructure:"info"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Subdomain      string        `mapstructure:"subdomain"`
	SSLCert        string        `mapstructure:"ssl_cert"`
	SSLKey         string        `mapstructure:"ssl_key"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxRequestBody int           `mapstructure:"max_request_body"`
}

// CORSConfig holds the cross-origin policy applied in front of the router.
type CORSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Origins string `mapstructure:"origins"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// UpstreamConfig holds settings for HTTP calls to upstream nodes.
type UpstreamConfig struct {
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	MaxConnsPerHost int           `mapstructure:"max_conns_per_host"`
}

// WebSocketConfig holds settings for bridged WebSocket sessions.
type WebSocketConfig struct {
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`
	WriteBufferSize  int           `mapstructure:"write_buffer_size"`
}

// FailuresConfig holds retention settings for the upstream failure tracker.
type FailuresConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RegistryConfig holds the optional network file location.
type RegistryConfig struct {
	File string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app.name", "rpc-proxy")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.info", "Forwards /rpc/{network}/... and bridges /ws/{network}")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8528")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "2m")
	v.SetDefault("server.max_request_body", 16*1024*1024)
	v.SetDefault("cors.enabled", false)
	v.SetDefault("cors.origins", "*")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("upstream.response_timeout", "60s")
	v.SetDefault("upstream.dial_timeout", "10s")
	v.SetDefault("upstream.max_conns_per_host", 512)
	v.SetDefault("websocket.ping_interval", "10s")
	v.SetDefault("websocket.handshake_timeout", "10s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.read_buffer_size", 4096)
	v.SetDefault("websocket.write_buffer_size", 4096)
	v.SetDefault("failures.ttl", "5m")
	v.SetDefault("failures.cleanup_interval", "10m")
	v.SetDefault("registry.file", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		fmt.Printf("Warning: Config file not found in %s or '.', using defaults/env vars\n", configPath)
	}

	v.SetEnvPrefix("RPC_PROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// legacyEnv maps config keys to the variable names used by earlier deployments.
// The prefixed name always wins.
var legacyEnv = map[string][]string{
	"server.host":      {"RPC_PROXY_SERVER_HOST", "HOST"},
	"server.port":      {"RPC_PROXY_SERVER_PORT", "FASTAPI_PORT"},
	"server.subdomain": {"RPC_PROXY_SERVER_SUBDOMAIN", "SUBDOMAIN"},
	"server.ssl_cert":  {"RPC_PROXY_SERVER_SSL_CERT", "SSL_CERT"},
	"server.ssl_key":   {"RPC_PROXY_SERVER_SSL_KEY", "SSL_KEY"},
	"cors.enabled":     {"RPC_PROXY_CORS_ENABLED", "USE_MIDDLEWARE"},
	"cors.origins":     {"RPC_PROXY_CORS_ORIGINS", "CORS_ORIGINS"},
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, envs := range legacyEnv {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Address returns the host:port the server listens on.
func (c ServerConfig) Address() string {
	return c.Host + ":" + c.Port
}

// TLSEnabled reports whether both certificate and key are configured.
func (c ServerConfig) TLSEnabled() bool {
	return c.SSLCert != "" && c.SSLKey != ""
}

// AllowedOrigins splits the space separated origin list.
func (c CORSConfig) AllowedOrigins() []string {
	return strings.Fields(c.Origins)
}

func (c UpstreamConfig) GetResponseTimeout() time.Duration {
	return c.ResponseTimeout
}

func (c WebSocketConfig) GetPingInterval() time.Duration {
	if c.PingInterval <= 0 {
		return 10 * time.Second
	}
	return c.PingInterval
}

func (c WebSocketConfig) GetWriteTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return 10 * time.Second
	}
	return c.WriteTimeout
}

func (c FailuresConfig) GetTTL() time.Duration {
	return c.TTL
}

func (c FailuresConfig) GetCleanupInterval() time.Duration {
	return c.CleanupInterval
}
