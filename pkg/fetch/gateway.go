package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"page-replica/pkg/config"
	"page-replica/pkg/utils"
)

// PageResult holds the outcome of the initial page fetch
type PageResult struct {
	HTML        string
	FinalURL    string // Post-redirect URL; effective base for all relative-reference resolution
	ContentType string
}

// Gateway performs bounded, timeout-guarded retrieval of pages, stylesheets,
// and binary assets. Only the page fetch can fail the job; stylesheet and
// asset fetches swallow every failure and surface it as absence so the job
// degrades instead of aborting.
type Gateway struct {
	fetcher     *Fetcher
	robotsGate  *RobotsGate
	outboundSem *semaphore.Weighted // Global cap on in-flight outbound requests
	cfg         *config.AppConfig
	log         *logrus.Logger
}

// NewGateway creates a Gateway sharing the given fetcher and robots gate
func NewGateway(fetcher *Fetcher, robotsGate *RobotsGate, outboundSem *semaphore.Weighted, cfg *config.AppConfig, log *logrus.Logger) *Gateway {
	return &Gateway{
		fetcher:     fetcher,
		robotsGate:  robotsGate,
		outboundSem: outboundSem,
		cfg:         cfg,
		log:         log,
	}
}

// FetchPage retrieves the main page after passing the robots policy gate.
// Redirects are followed and the final landed URL is captured. The returned
// error, if any, is one of the fatal sentinels from pkg/utils.
func (g *Gateway) FetchPage(ctx context.Context, pageURL *url.URL) (*PageResult, error) {
	pageLog := g.log.WithField("url", pageURL.String())

	// Policy gate runs before the page fetch and before nothing else
	if !g.robotsGate.IsAllowed(ctx, pageURL, g.cfg.UserAgent) {
		pageLog.Warn("Page fetch blocked by robots.txt")
		return nil, utils.WrapErrorf(utils.ErrRobotsBlocked, "fetching '%s'", pageURL)
	}

	body, resp, err := g.doFetch(ctx, pageURL.String(), pageURL.String(), g.cfg.MaxPageBytes)
	if err != nil {
		return nil, g.classifyPageError(err, pageURL.String())
	}

	finalURL := pageURL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	if finalURL != pageURL.String() {
		pageLog.WithField("final_url", finalURL).Debug("Page fetch followed redirects")
	}

	return &PageResult{
		HTML:        string(body),
		FinalURL:    finalURL,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// classifyPageError maps a raw fetch error to the fatal taxonomy reported to the caller
func (g *Gateway) classifyPageError(err error, pageURL string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return utils.WrapErrorf(utils.ErrFetchTimeout, "fetching page '%s'", pageURL)
	case errors.Is(err, utils.ErrClientHTTPError):
		msg := err.Error()
		if strings.Contains(msg, " 404 ") || strings.Contains(msg, "status 404") {
			return utils.WrapErrorf(utils.ErrPageNotFound, "fetching page '%s'", pageURL)
		}
		if strings.Contains(msg, " 403 ") || strings.Contains(msg, "status 403") {
			return utils.WrapErrorf(utils.ErrPageForbidden, "fetching page '%s'", pageURL)
		}
		return fmt.Errorf("%w: %w", utils.ErrFetchFailed, err)
	default:
		var netTimeout interface{ Timeout() bool }
		if errors.As(err, &netTimeout) && netTimeout.Timeout() {
			return utils.WrapErrorf(utils.ErrFetchTimeout, "fetching page '%s'", pageURL)
		}
		return fmt.Errorf("%w: %w", utils.ErrFetchFailed, err)
	}
}

// FetchStylesheet retrieves a stylesheet and returns its literal CSS text.
// Never propagates failure: any error yields ("", false).
func (g *Gateway) FetchStylesheet(ctx context.Context, cssURL, referer string) (string, bool) {
	body, _, err := g.doFetch(ctx, cssURL, referer, g.cfg.MaxAssetBytes)
	if err != nil {
		g.log.WithFields(logrus.Fields{"url": cssURL, "category": utils.CategorizeError(err)}).
			Debugf("Stylesheet fetch failed (non-fatal): %v", err)
		return "", false
	}
	return string(body), true
}

// FetchImage retrieves an image and returns it as a base64 data URL.
// Never propagates failure: any error yields ("", false).
func (g *Gateway) FetchImage(ctx context.Context, imgURL, referer string) (string, bool) {
	return g.fetchBinary(ctx, imgURL, referer, "image")
}

// FetchAsset retrieves any non-CSS asset (fonts and the like) as a base64
// data URL. Never propagates failure: any error yields ("", false).
func (g *Gateway) FetchAsset(ctx context.Context, assetURL, referer string) (string, bool) {
	return g.fetchBinary(ctx, assetURL, referer, "asset")
}

// fetchBinary downloads a binary resource and encodes it as a data URL.
// This is the sole inline representation for binary payloads; there is no
// filesystem intermediate.
func (g *Gateway) fetchBinary(ctx context.Context, rawURL, referer, kind string) (string, bool) {
	body, resp, err := g.doFetch(ctx, rawURL, referer, g.cfg.MaxAssetBytes)
	if err != nil {
		g.log.WithFields(logrus.Fields{"url": rawURL, "kind": kind, "category": utils.CategorizeError(err)}).
			Debugf("Binary fetch failed (non-fatal): %v", err)
		return "", false
	}

	contentType := sniffContentType(resp.Header.Get("Content-Type"), rawURL)
	encoded := base64.StdEncoding.EncodeToString(body)
	return "data:" + contentType + ";base64," + encoded, true
}

// doFetch performs one size-capped GET through the outbound semaphore.
// Caller gets the fully-read body; the response body is always closed here.
func (g *Gateway) doFetch(ctx context.Context, rawURL, referer string, maxBytes int64) ([]byte, *http.Response, error) {
	// Acquire the global outbound slot (politeness cap across the whole job)
	semCtx, cancelSem := context.WithTimeout(ctx, g.cfg.SemAcquireTimeout)
	err := g.outboundSem.Acquire(semCtx, 1)
	cancelSem()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, utils.WrapErrorf(utils.ErrSemaphoreTimeout, "acquiring outbound slot for '%s'", rawURL)
		}
		return nil, nil, err
	}
	defer g.outboundSem.Release(1)

	reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, utils.WrapErrorf(utils.ErrRequestCreation, "creating request for '%s'", rawURL)
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := g.fetcher.FetchWithRetry(req, reqCtx)
	if err != nil {
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	// Content-Length precheck avoids reading bodies that declare themselves oversize
	if lenStr := resp.Header.Get("Content-Length"); lenStr != "" && maxBytes > 0 {
		if declared, parseErr := strconv.ParseInt(lenStr, 10, 64); parseErr == nil && declared > maxBytes {
			io.Copy(io.Discard, resp.Body)
			return nil, nil, utils.WrapErrorf(utils.ErrSizeExceeded, "'%s' declares %d bytes (limit %d)", rawURL, declared, maxBytes)
		}
	}

	// Read one byte past the limit so truncation is detectable
	var reader io.Reader = resp.Body
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, utils.WrapErrorf(utils.ErrResponseBodyRead, "reading body of '%s'", rawURL)
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		io.Copy(io.Discard, resp.Body) // Drain for connection reuse
		return nil, nil, utils.WrapErrorf(utils.ErrSizeExceeded, "'%s' exceeds %d bytes", rawURL, maxBytes)
	}

	return body, resp, nil
}

// sniffContentType normalizes the Content-Type header, falling back to a
// guess from the URL extension and finally to application/octet-stream.
func sniffContentType(header, rawURL string) string {
	if header != "" {
		if mediaType, _, err := mime.ParseMediaType(header); err == nil {
			return mediaType
		}
	}
	if idx := strings.LastIndex(rawURL, "."); idx != -1 {
		ext := rawURL[idx:]
		if cut := strings.IndexAny(ext, "?#"); cut != -1 {
			ext = ext[:cut]
		}
		if guessed := mime.TypeByExtension(ext); guessed != "" {
			if mediaType, _, err := mime.ParseMediaType(guessed); err == nil {
				return mediaType
			}
		}
	}
	return "application/octet-stream"
}
