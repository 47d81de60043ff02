package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"

	"page-replica/pkg/config"
)

// RobotsGate consults a target origin's robots.txt before the initial page
// fetch. It caches parsed policies per host; a nil cache entry records a
// fetch/parse failure and means implicit permission.
//
// The gate covers only the page fetch, not individual asset fetches. That gap
// is inherited from the original design and documented rather than fixed.
type RobotsGate struct {
	fetcher       *Fetcher
	robotsCache   map[string]*robotstxt.RobotsData // hostname -> parsed data (or nil)
	robotsCacheMu sync.Mutex
	cfg           *config.AppConfig
	log           *logrus.Entry
}

// NewRobotsGate creates a RobotsGate
func NewRobotsGate(fetcher *Fetcher, cfg *config.AppConfig, log *logrus.Entry) *RobotsGate {
	return &RobotsGate{
		fetcher:     fetcher,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		cfg:         cfg,
		log:         log,
	}
}

// getRobotsData retrieves robots.txt data for the targetURL's host, using
// cache or fetching. Returns parsed data or nil on any error/4xx/missing file.
func (rg *RobotsGate) getRobotsData(targetURL *url.URL, ctx context.Context) *robotstxt.RobotsData {
	if ctx == nil {
		ctx = context.Background()
	}

	host := targetURL.Hostname()
	hostLog := rg.log.WithField("host", host)

	// 1. Check Cache
	rg.robotsCacheMu.Lock()
	robotsData, found := rg.robotsCache[host]
	rg.robotsCacheMu.Unlock()
	if found {
		return robotsData // Cached data (could be nil)
	}

	cacheFailure := func() *robotstxt.RobotsData {
		rg.robotsCacheMu.Lock()
		rg.robotsCache[host] = nil
		rg.robotsCacheMu.Unlock()
		return nil
	}

	// 2. Prepare Fetch URL
	robotsURL := &url.URL{Scheme: targetURL.Scheme, Host: targetURL.Host, Path: "/robots.txt"}
	if targetURL.Scheme != "http" && targetURL.Scheme != "https" {
		hostLog.Warnf("Invalid scheme '%s', defaulting to https for robots.txt", targetURL.Scheme)
		robotsURL.Scheme = "https"
	}
	robotsURLStr := robotsURL.String()
	robotsLog := hostLog.WithField("robots_url", robotsURLStr)
	robotsLog.Info("Fetching robots.txt...") // Log only on cache miss

	// 3. Fetch Request (with retries via Fetcher)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURLStr, nil)
	if err != nil {
		robotsLog.Errorf("Error creating request: %v", err)
		return cacheFailure()
	}
	req.Header.Set("User-Agent", rg.cfg.UserAgent)

	resp, fetchErr := rg.fetcher.FetchWithRetry(req, ctx)
	if fetchErr != nil {
		// Missing or unreachable robots.txt means implicit permission
		robotsLog.Warnf("Fetching robots.txt failed, assuming allowed: %v", fetchErr)
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return cacheFailure()
	}
	defer resp.Body.Close()

	// 4. Read and Parse Body
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		robotsLog.Errorf("Error reading body: %v", err)
		return cacheFailure()
	}

	data, err := robotstxt.FromBytes(bodyBytes)
	if err != nil {
		robotsLog.Errorf("Error parsing content: %v", err)
		return cacheFailure()
	}

	// 5. Cache Success
	robotsLog.Info("Successfully fetched and parsed robots.txt")
	rg.robotsCacheMu.Lock()
	rg.robotsCache[host] = data
	rg.robotsCacheMu.Unlock()

	return data
}

// IsAllowed checks whether userAgent may fetch targetURL according to the
// origin's robots.txt. Returns true when the policy allows the fetch or when
// no policy could be obtained (absence is implicit permission).
func (rg *RobotsGate) IsAllowed(ctx context.Context, targetURL *url.URL, userAgent string) bool {
	if !rg.cfg.GetRespectRobots() {
		return true
	}

	robotsData := rg.getRobotsData(targetURL, ctx)
	if robotsData == nil {
		return true
	}

	return robotsData.TestAgent(targetURL.RequestURI(), userAgent)
}
