package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"page-replica/pkg/config"
	"page-replica/pkg/utils"
)

// Fetcher handles making HTTP requests with configured retry logic, using an underlying http.Client
type Fetcher struct {
	client *http.Client      // The configured HTTP client to use for requests
	cfg    *config.AppConfig // Application config, needed primarily for retry settings
	log    *logrus.Logger
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// FetchWithRetry performs an HTTP request associated with the provided context.
// Transient failures (network errors, 5xx, 429) are retried with exponential
// backoff and jitter; other non-2xx statuses return immediately with a
// categorized sentinel error.
func (f *Fetcher) FetchWithRetry(req *http.Request, ctx context.Context) (*http.Response, error) {
	var lastErr error              // Error from the last failed attempt
	var currentResp *http.Response // Response from the current attempt

	reqLog := f.log.WithField("url", req.URL.String())

	maxRetries := f.cfg.MaxRetries
	initialRetryDelay := f.cfg.InitialRetryDelay
	maxRetryDelay := f.cfg.MaxRetryDelay

	// Retry loop: initial attempt + maxRetries retries
	for attempt := 0; attempt <= maxRetries; attempt++ {

		// --- Context Check ---
		select {
		case <-ctx.Done():
			reqLog.Warnf("Context cancelled before attempt %d: %v", attempt, ctx.Err())
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", ctx.Err(), lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", ctx.Err())
		default:
		}

		// --- Exponential Backoff Delay ---
		// Applied only before retry attempts, not the first attempt
		if attempt > 0 {
			backoff := float64(initialRetryDelay) * math.Pow(2, float64(attempt-1))
			delay := time.Duration(backoff)
			if delay <= 0 || delay > maxRetryDelay {
				delay = maxRetryDelay
			}

			// Jitter: +/- 10% to avoid thundering herd
			var jitter time.Duration
			if delay > 0 {
				jitter = time.Duration(rand.Int63n(int64(delay)/5)) - (delay / 10)
			}
			finalDelay := delay + jitter
			if finalDelay < 0 {
				finalDelay = 0
			}

			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": finalDelay}).Warn("Retrying request...")

			select {
			case <-time.After(finalDelay):
			case <-ctx.Done():
				reqLog.Warnf("Context cancelled during retry sleep: %v", ctx.Err())
				if lastErr != nil {
					return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
				}
				return nil, fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
			}
		}

		// --- Perform HTTP Request ---
		reqWithCtx := req.WithContext(ctx)
		currentResp, lastErr = f.client.Do(reqWithCtx)

		// --- Handle Network-Level Errors ---
		if lastErr != nil {
			if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
				reqLog.Warnf("Context cancelled/timed out during HTTP request execution: %v", lastErr)
				if currentResp != nil {
					io.Copy(io.Discard, currentResp.Body)
					currentResp.Body.Close()
				}
				// Do not retry context errors
				return nil, lastErr
			}

			reqLog.WithField("attempt", attempt).Errorf("Network error: %v", lastErr)
			if currentResp != nil {
				io.Copy(io.Discard, currentResp.Body)
				currentResp.Body.Close()
			}
			continue // Retry network errors
		}

		// --- Handle HTTP Status Codes ---
		statusCode := currentResp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "status": currentResp.Status, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			// Success. Caller must close body
			resLog.Debug("Successfully fetched")
			return currentResp, nil

		case statusCode >= 500:
			resLog.Warn("Server error, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, currentResp.Status)
			io.Copy(io.Discard, currentResp.Body)
			currentResp.Body.Close()
			continue

		case statusCode == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests, retrying...")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, currentResp.Status)
			io.Copy(io.Discard, currentResp.Body)
			currentResp.Body.Close()
			continue

		case statusCode >= 400 && statusCode < 500:
			// Not retryable (404, 403, ...). Caller MUST close currentResp.Body
			resLog.Warn("Client error (4xx), not retrying")
			return currentResp, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, currentResp.Status)

		default:
			// Unexpected status (3xx with redirects disabled, etc). Caller MUST close currentResp.Body
			resLog.Warnf("Non-retryable/unexpected status: %d", statusCode)
			return currentResp, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, currentResp.Status)
		}
	}

	// --- All Retries Failed ---
	reqLog.Errorf("All %d fetch retries failed. Last error: %v", maxRetries+1, lastErr)
	if currentResp != nil {
		io.Copy(io.Discard, currentResp.Body)
		currentResp.Body.Close()
	}

	if lastErr != nil {
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
	}

	return nil, utils.ErrRetryFailed
}
