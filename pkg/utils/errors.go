package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrInvalidURL       = errors.New("invalid or missing URL")           // Input validation failure, no network touched
	ErrRobotsBlocked    = errors.New("blocked by robots.txt")            // Policy gate rejected the page fetch
	ErrFetchTimeout     = errors.New("request timed out")                // Page fetch exceeded its deadline
	ErrPageNotFound     = errors.New("page not found (404)")             // Page fetch returned HTTP 404
	ErrPageForbidden    = errors.New("access forbidden (403)")           // Page fetch returned HTTP 403
	ErrFetchFailed      = errors.New("fetch failed")                     // Any other network/protocol failure on the page fetch
	ErrRetryFailed      = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError  = errors.New("client HTTP error (4xx)")          // Wraps original error/status
	ErrServerHTTPError  = errors.New("server HTTP error (5xx)")          // Wraps original error/status
	ErrOtherHTTPError   = errors.New("other HTTP error (non-2xx)")       // Wraps original error/status
	ErrSizeExceeded     = errors.New("resource exceeds size limit")
	ErrRequestCreation  = errors.New("failed to create HTTP request")
	ErrResponseBodyRead = errors.New("failed to read response body")
	ErrParsing          = errors.New("parsing error")     // Wraps specific parsing error (HTML, URL, CSS)
	ErrStore            = errors.New("asset store error") // Wraps badger errors
	ErrSemaphoreTimeout = errors.New("timeout acquiring semaphore")
	ErrConfigValidation = errors.New("configuration validation error")
)

// WrapErrorf wraps err with a formatted context message.
// Returns nil if err is nil.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	// Check against sentinel errors first
	switch {
	case errors.Is(err, ErrInvalidURL):
		return "Input_InvalidURL"
	case errors.Is(err, ErrRobotsBlocked):
		return "Policy_Robots"
	case errors.Is(err, ErrFetchTimeout):
		return "Network_Timeout"
	case errors.Is(err, ErrPageNotFound):
		return "HTTP_404"
	case errors.Is(err, ErrPageForbidden):
		return "HTTP_403"
	case errors.Is(err, ErrRetryFailed):
		underlying := errors.Unwrap(err)
		if underlying != nil {
			if errors.Is(underlying, ErrServerHTTPError) {
				return "RetryFailed_HTTPServer"
			}
			if errors.Is(underlying, ErrClientHTTPError) {
				return "RetryFailed_HTTPClient"
			}
			var netErr net.Error
			if errors.As(underlying, &netErr) && netErr.Timeout() {
				return "RetryFailed_NetworkTimeout"
			}
			return "RetryFailed_NetworkOther"
		}
		return "RetryFailed_Unknown"
	case errors.Is(err, ErrClientHTTPError):
		errMsg := err.Error()
		if strings.Contains(errMsg, " 404 ") {
			return "HTTP_404"
		}
		if strings.Contains(errMsg, " 403 ") {
			return "HTTP_403"
		}
		if strings.Contains(errMsg, " 429 ") {
			return "HTTP_429"
		}
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrSizeExceeded):
		return "Resource_SizeExceeded"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		if strings.Contains(errMsg, "CSS") {
			return "Content_ParsingCSS"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrStore):
		return "Store_Other"
	case errors.Is(err, ErrSemaphoreTimeout):
		return "Resource_SemaphoreTimeout"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	case errors.Is(err, ErrFetchFailed):
		return "Network_FetchFailed"
	}

	// --- Fallback checks for common underlying error types/strings ---

	// Context errors
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	// Network errors (if not wrapped by custom sentinels)
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "Network_Timeout"
		}
	}
	lowerErrMsg := strings.ToLower(err.Error())
	if strings.Contains(lowerErrMsg, "timeout") || strings.Contains(lowerErrMsg, "deadline exceeded") {
		return "Network_TimeoutGeneric"
	}
	if strings.Contains(lowerErrMsg, "connection refused") {
		return "Network_ConnectionRefused"
	}
	if strings.Contains(lowerErrMsg, "no such host") {
		return "Network_DNSLookup"
	}
	if strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate") {
		return "Network_TLS"
	}
	if strings.Contains(lowerErrMsg, "reset by peer") {
		return "Network_ConnectionReset"
	}

	return "Unknown"
}

// UserFacingMessage converts a fatal job error into the human-readable string
// reported in the API response. Recovered per-asset errors never reach here.
func UserFacingMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidURL):
		return "Invalid URL provided"
	case errors.Is(err, ErrRobotsBlocked):
		return "This website does not allow automated access (robots.txt)"
	case errors.Is(err, ErrFetchTimeout):
		return "The website took too long to respond"
	case errors.Is(err, ErrPageNotFound):
		return "Page not found (404)"
	case errors.Is(err, ErrPageForbidden):
		return "Access to this page is forbidden (403)"
	default:
		return "Failed to fetch the page"
	}
}
