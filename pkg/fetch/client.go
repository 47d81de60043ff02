package fetch

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"

	"page-replica/pkg/config"
)

// NewClient creates a new HTTP client based on the provided configuration.
// Redirects are followed (up to the stock limit of 10) so the final landed
// URL can serve as the effective base for relative-reference resolution.
func NewClient(cfg config.HTTPClientConfig, insecureSkipVerify bool, log *logrus.Logger) *http.Client {
	log.Info("Initializing HTTP client...")

	// Create custom dialer with configured timeouts
	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	// Create custom transport using configured settings
	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment, // Use system proxy settings
		DialContext:            dialer.DialContext,        // Use our custom dialer
		ForceAttemptHTTP2:      true,                      // Default to true unless explicitly disabled
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		MaxResponseHeaderBytes: 1 << 20, // 1MB max header size
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}

	if insecureSkipVerify {
		// Configurable trade-off for targets with broken certificate chains.
		// Validate() already emitted a warning when this is on.
		log.Warn("TLS certificate validation is DISABLED for outbound fetches")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			log.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil // Allow redirect
		},
	}
	log.Info("HTTP client initialized.")
	return client
}
