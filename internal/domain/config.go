package domain

import "time"

// Config holds the complete Rulesmith configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Collaborators
	Backend BackendConfig `json:"backend"`
	Search  SearchConfig  `json:"search"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Sessions   SessionConfig    `json:"sessions"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// BackendConfig points at the TPA backend REST API.
type BackendConfig struct {
	BaseURL string        `json:"baseUrl"`
	Timeout time.Duration `json:"timeout"`
	// APIKey is read from RULESMITH_BACKEND_API_KEY only.
	APIKey string `json:"-"`

	// Circuit breaker settings
	BreakerMaxRequests  uint32        `json:"breakerMaxRequests"`
	BreakerInterval     time.Duration `json:"breakerInterval"`
	BreakerTimeout      time.Duration `json:"breakerTimeout"`
	BreakerFailureRatio float64       `json:"breakerFailureRatio"`
	BreakerMinRequests  uint32        `json:"breakerMinRequests"`
}

// SearchConfig tunes the price-list and procedure lookups.
type SearchConfig struct {
	Debounce    time.Duration `json:"debounce"`
	CacheTTL    time.Duration `json:"cacheTTL"`
	DefaultSize int           `json:"defaultSize"`
}

// SessionConfig controls designer session lifetime.
type SessionConfig struct {
	IdleTTL time.Duration `json:"idleTTL"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
	Insecure    bool   `json:"insecure"`
}

// DefaultConfig returns a single-node configuration: SQLite, in-memory cache, channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Backend: BackendConfig{
			BaseURL:             "http://localhost:9090/api",
			Timeout:             15 * time.Second,
			BreakerMaxRequests:  1,
			BreakerInterval:     60 * time.Second,
			BreakerTimeout:      30 * time.Second,
			BreakerFailureRatio: 0.6,
			BreakerMinRequests:  5,
		},
		Search: SearchConfig{
			Debounce:    300 * time.Millisecond,
			CacheTTL:    60 * time.Second,
			DefaultSize: 20,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./rulesmith.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Sessions: SessionConfig{
			IdleTTL: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "rulesmith",
		},
	}
}
