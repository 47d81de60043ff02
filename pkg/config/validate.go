package config

import (
	"fmt"
	"time"
)

const (
	defaultListenAddr     = ":8080"
	defaultUserAgent      = "PageReplicaBot/1.0 (+https://page-replica.invalid/bot)"
	defaultRequestTimeout = 15 * time.Second
	defaultMaxPageBytes   = 10 << 20 // 10 MiB
	defaultMaxAssetBytes  = 5 << 20  // 5 MiB
	defaultImageBatch     = 5
	defaultMaxConcurrent  = 20
	defaultStoreRetention = time.Hour
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.UserAgent == "" {
		warnings = append(warnings, fmt.Sprintf("user_agent is empty, defaulting to %q", defaultUserAgent))
		c.UserAgent = defaultUserAgent
	}

	if c.RequestTimeout <= 0 {
		warnings = append(warnings, fmt.Sprintf("request_timeout should be > 0, defaulting to %v", defaultRequestTimeout))
		c.RequestTimeout = defaultRequestTimeout
	}

	if c.MaxPageBytes <= 0 {
		warnings = append(warnings, "max_page_bytes should be > 0, defaulting to 10 MiB")
		c.MaxPageBytes = defaultMaxPageBytes
	}

	if c.MaxAssetBytes <= 0 {
		warnings = append(warnings, "max_asset_bytes should be > 0, defaulting to 5 MiB")
		c.MaxAssetBytes = defaultMaxAssetBytes
	}

	if c.ImageBatchSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("image_batch_size should be > 0, defaulting to %d", defaultImageBatch))
		c.ImageBatchSize = defaultImageBatch
	}

	if c.MaxConcurrent <= 0 {
		warnings = append(warnings, fmt.Sprintf("max_concurrent should be > 0, defaulting to %d", defaultMaxConcurrent))
		c.MaxConcurrent = defaultMaxConcurrent
	}

	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.InitialRetryDelay <= 0 {
		c.InitialRetryDelay = 500 * time.Millisecond
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 10 * time.Second
	}
	if c.MaxRetryDelay < c.InitialRetryDelay {
		return warnings, fmt.Errorf("max_retry_delay (%v) must be >= initial_retry_delay (%v)",
			c.MaxRetryDelay, c.InitialRetryDelay)
	}

	if c.SemAcquireTimeout <= 0 {
		c.SemAcquireTimeout = 30 * time.Second
	}

	if c.StoreRetention <= 0 {
		c.StoreRetention = defaultStoreRetention
	}
	if c.SweepInterval < 0 {
		warnings = append(warnings, "sweep_interval cannot be negative, disabling sweep")
		c.SweepInterval = 0
	}

	if c.InsecureSkipVerify {
		warnings = append(warnings, "insecure_skip_verify is enabled: TLS certificate validation is OFF for all outbound fetches")
	}

	// HTTP client settings
	if c.HTTPClientSettings.Timeout <= 0 {
		c.HTTPClientSettings.Timeout = c.RequestTimeout
	}
	if c.HTTPClientSettings.MaxIdleConns <= 0 {
		c.HTTPClientSettings.MaxIdleConns = 100
	}
	if c.HTTPClientSettings.MaxIdleConnsPerHost <= 0 {
		c.HTTPClientSettings.MaxIdleConnsPerHost = 10
	}
	if c.HTTPClientSettings.IdleConnTimeout <= 0 {
		c.HTTPClientSettings.IdleConnTimeout = 90 * time.Second
	}
	if c.HTTPClientSettings.TLSHandshakeTimeout <= 0 {
		c.HTTPClientSettings.TLSHandshakeTimeout = 10 * time.Second
	}
	if c.HTTPClientSettings.ExpectContinueTimeout <= 0 {
		c.HTTPClientSettings.ExpectContinueTimeout = 1 * time.Second
	}
	if c.HTTPClientSettings.DialerTimeout <= 0 {
		c.HTTPClientSettings.DialerTimeout = 10 * time.Second
	}
	if c.HTTPClientSettings.DialerKeepAlive <= 0 {
		c.HTTPClientSettings.DialerKeepAlive = 30 * time.Second
	}

	return warnings, nil
}
