// Package config loads domain.Config with viper.
//
// Precedence: flags > environment (RULESMITH_ prefix) > config file > defaults.
// Secrets are read from the environment only; a config file carrying one is rejected.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/opensource-health/rulesmith/internal/domain"
)

// EnvPrefix is prepended to every environment variable, e.g. RULESMITH_SERVER_PORT.
const EnvPrefix = "RULESMITH"

// secretKeys may only come from the environment.
var secretKeys = []string{
	"backend.api_key",
	"repository.postgres.password",
	"cache.redis_password",
	"event_bus.nats_token",
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"host":        "server.host",
	"port":        "server.port",
	"backend-url": "backend.base_url",
	"log-level":   "logging.level",
	"log-format":  "logging.format",
	"db-driver":   "repository.driver",
	"db-path":     "repository.sqlite_path",
}

// Load reads configuration from configPath (optional) and the environment.
// Flags present in flags and changed by the user override both.
func Load(configPath string, flags *pflag.FlagSet) (*domain.Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := fromViper(v)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := domain.DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("backend.base_url", d.Backend.BaseURL)
	v.SetDefault("backend.timeout", d.Backend.Timeout)
	v.SetDefault("backend.breaker.max_requests", d.Backend.BreakerMaxRequests)
	v.SetDefault("backend.breaker.interval", d.Backend.BreakerInterval)
	v.SetDefault("backend.breaker.timeout", d.Backend.BreakerTimeout)
	v.SetDefault("backend.breaker.failure_ratio", d.Backend.BreakerFailureRatio)
	v.SetDefault("backend.breaker.min_requests", d.Backend.BreakerMinRequests)

	v.SetDefault("search.debounce", d.Search.Debounce)
	v.SetDefault("search.cache_ttl", d.Search.CacheTTL)
	v.SetDefault("search.default_size", d.Search.DefaultSize)

	v.SetDefault("repository.driver", d.Repository.Driver)
	v.SetDefault("repository.sqlite_path", d.Repository.SQLitePath)
	v.SetDefault("repository.postgres.host", "localhost")
	v.SetDefault("repository.postgres.port", 5432)
	v.SetDefault("repository.postgres.db", "rulesmith")
	v.SetDefault("repository.postgres.sslmode", "disable")

	v.SetDefault("cache.type", d.Cache.Type)
	v.SetDefault("cache.local_max_size", d.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", d.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", "localhost:6379")

	v.SetDefault("event_bus.type", d.EventBus.Type)
	v.SetDefault("event_bus.channel_buffer_size", d.EventBus.ChannelBufferSize)
	v.SetDefault("event_bus.nats_max_reconnects", 10)
	v.SetDefault("event_bus.nats_reconnect_wait", 5)

	v.SetDefault("sessions.idle_ttl", d.Sessions.IdleTTL)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
}

func fromViper(v *viper.Viper) *domain.Config {
	return &domain.Config{
		Server: domain.ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetInt("server.read_timeout"),
			WriteTimeout: v.GetInt("server.write_timeout"),
		},
		Backend: domain.BackendConfig{
			BaseURL:             v.GetString("backend.base_url"),
			Timeout:             v.GetDuration("backend.timeout"),
			APIKey:              v.GetString("backend.api_key"),
			BreakerMaxRequests:  v.GetUint32("backend.breaker.max_requests"),
			BreakerInterval:     v.GetDuration("backend.breaker.interval"),
			BreakerTimeout:      v.GetDuration("backend.breaker.timeout"),
			BreakerFailureRatio: v.GetFloat64("backend.breaker.failure_ratio"),
			BreakerMinRequests:  v.GetUint32("backend.breaker.min_requests"),
		},
		Search: domain.SearchConfig{
			Debounce:    v.GetDuration("search.debounce"),
			CacheTTL:    v.GetDuration("search.cache_ttl"),
			DefaultSize: v.GetInt("search.default_size"),
		},
		Repository: domain.RepositoryConfig{
			Driver:           v.GetString("repository.driver"),
			SQLitePath:       v.GetString("repository.sqlite_path"),
			PostgresHost:     v.GetString("repository.postgres.host"),
			PostgresPort:     v.GetInt("repository.postgres.port"),
			PostgresUser:     v.GetString("repository.postgres.user"),
			PostgresPassword: v.GetString("repository.postgres.password"),
			PostgresDB:       v.GetString("repository.postgres.db"),
			PostgresSSLMode:  v.GetString("repository.postgres.sslmode"),
			MaxOpenConns:     v.GetInt("repository.max_open_conns"),
			MaxIdleConns:     v.GetInt("repository.max_idle_conns"),
			ConnMaxLifetime:  v.GetDuration("repository.conn_max_lifetime"),
		},
		Cache: domain.CacheConfig{
			Type:           v.GetString("cache.type"),
			LocalMaxSize:   v.GetInt("cache.local_max_size"),
			LocalTTL:       v.GetDuration("cache.local_ttl"),
			RedisAddr:      v.GetString("cache.redis_addr"),
			RedisPassword:  v.GetString("cache.redis_password"),
			RedisDB:        v.GetInt("cache.redis_db"),
			EnableTwoPhase: v.GetBool("cache.two_phase"),
		},
		EventBus: domain.EventBusConfig{
			Type:              v.GetString("event_bus.type"),
			ChannelBufferSize: v.GetInt("event_bus.channel_buffer_size"),
			NATSUrl:           v.GetString("event_bus.nats_url"),
			NATSToken:         v.GetString("event_bus.nats_token"),
			NATSMaxReconnects: v.GetInt("event_bus.nats_max_reconnects"),
			NATSReconnectWait: v.GetInt("event_bus.nats_reconnect_wait"),
		},
		Sessions: domain.SessionConfig{
			IdleTTL: v.GetDuration("sessions.idle_ttl"),
		},
		Logging: domain.LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Tracing: domain.TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			ServiceName: v.GetString("tracing.service_name"),
			Endpoint:    v.GetString("tracing.endpoint"),
			Insecure:    v.GetBool("tracing.insecure"),
		},
	}
}

func validateConfig(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute http(s) URL, got %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %v", cfg.Backend.Timeout)
	}
	if r := cfg.Backend.BreakerFailureRatio; r <= 0 || r > 1 {
		return fmt.Errorf("backend.breaker.failure_ratio must be in (0, 1], got %v", r)
	}

	if cfg.Search.Debounce < 0 {
		return fmt.Errorf("search.debounce must not be negative, got %v", cfg.Search.Debounce)
	}
	if cfg.Search.DefaultSize <= 0 {
		return fmt.Errorf("search.default_size must be positive, got %d", cfg.Search.DefaultSize)
	}
	if cfg.Sessions.IdleTTL <= 0 {
		return fmt.Errorf("sessions.idle_ttl must be positive, got %v", cfg.Sessions.IdleTTL)
	}

	if err := oneOf("repository.driver", cfg.Repository.Driver, "sqlite", "postgres"); err != nil {
		return err
	}
	if err := oneOf("cache.type", cfg.Cache.Type, "memory", "redis"); err != nil {
		return err
	}
	if err := oneOf("event_bus.type", cfg.EventBus.Type, "channel", "nats"); err != nil {
		return err
	}
	if err := oneOf("logging.level", cfg.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	return oneOf("logging.format", cfg.Logging.Format, "json", "text")
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	for _, key := range secretKeys {
		if v.InConfig(key) {
			env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
			return fmt.Errorf("%s not allowed in config files (use %s environment variable)", key, env)
		}
	}
	return nil
}
