package config

import "time"

// AppConfig holds the global application configuration
type AppConfig struct {
	ListenAddr         string           `yaml:"listen_addr,omitempty"`           // HTTP API bind address
	UserAgent          string           `yaml:"user_agent,omitempty"`            // Identifying User-Agent for all outbound requests
	RequestTimeout     time.Duration    `yaml:"request_timeout,omitempty"`       // Per-request timeout for outbound fetches
	MaxPageBytes       int64            `yaml:"max_page_bytes,omitempty"`        // Size ceiling for the main page fetch
	MaxAssetBytes      int64            `yaml:"max_asset_bytes,omitempty"`       // Size ceiling per individual asset
	ImageBatchSize     int              `yaml:"image_batch_size,omitempty"`      // Images fetched concurrently per batch
	MaxConcurrent      int              `yaml:"max_concurrent,omitempty"`        // Global cap on in-flight outbound requests
	MaxRetries         int              `yaml:"max_retries,omitempty"`           // Retry attempts for transient fetch failures
	InitialRetryDelay  time.Duration    `yaml:"initial_retry_delay,omitempty"`   // Base delay for exponential backoff
	MaxRetryDelay      time.Duration    `yaml:"max_retry_delay,omitempty"`       // Backoff cap
	SemAcquireTimeout  time.Duration    `yaml:"sem_acquire_timeout,omitempty"`   // Timeout acquiring the outbound semaphore
	InsecureSkipVerify bool             `yaml:"insecure_skip_verify,omitempty"`  // Disable TLS certificate validation (security trade-off, off by default)
	RespectRobots      *bool            `yaml:"respect_robots,omitempty"`        // Consult robots.txt before the page fetch (default true)
	StoreRetention     time.Duration    `yaml:"store_retention,omitempty"`       // Retention window for leaked asset-store entries
	SweepInterval      time.Duration    `yaml:"sweep_interval,omitempty"`        // How often the store sweep runs (0 disables)
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // Explicitly enable/disable HTTP/2 attempt (use pointer for tri-state: nil=default, true=force, false=disable)
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// GetRespectRobots determines the effective robots setting (default true)
func (c *AppConfig) GetRespectRobots() bool {
	if c.RespectRobots != nil {
		return *c.RespectRobots
	}
	return true
}
