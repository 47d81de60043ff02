package replicate

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"page-replica/pkg/config"
	"page-replica/pkg/fetch"
	"page-replica/pkg/storage"
	"page-replica/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppConfig() *config.AppConfig {
	return &config.AppConfig{
		UserAgent:         "TestReplicaBot/1.0",
		RequestTimeout:    5 * time.Second,
		MaxPageBytes:      1 << 20,
		MaxAssetBytes:     1 << 20,
		MaxRetries:        0,
		InitialRetryDelay: 10 * time.Millisecond,
		MaxRetryDelay:     50 * time.Millisecond,
		SemAcquireTimeout: 2 * time.Second,
		MaxConcurrent:     10,
		ImageBatchSize:    5,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := testAppConfig()
	log := logrus.New()
	log.SetOutput(io.Discard)

	client := &http.Client{Timeout: 10 * time.Second}
	fetcher := fetch.NewFetcher(client, cfg, log)
	gate := fetch.NewRobotsGate(fetcher, cfg, logrus.NewEntry(log))
	sem := semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	gateway := fetch.NewGateway(fetcher, gate, sem, cfg, log)

	store, err := storage.NewBadgerStore(time.Hour, logrus.NewEntry(log))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewService(gateway, store, cfg, log)
}

// pageServer serves a complete page with one image and one stylesheet, plus
// the assets themselves, counting asset hits.
func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head>
			<link rel="stylesheet" href="/style.css">
			<script>track()</script>
		</head><body>
			<h1>Sample</h1>
			<img src="/img/photo.png">
		</body></html>`)
	})
	mux.HandleFunc("/style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		io.WriteString(w, "h1 { color: red; }")
	})
	mux.HandleFunc("/img/photo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngbytes"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestReplicate_EndToEnd(t *testing.T) {
	server := pageServer(t)
	svc := newTestService(t)

	result, err := svc.Replicate(context.Background(), server.URL+"/")
	require.NoError(t, err)

	wantDataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("pngbytes"))
	assert.Contains(t, result.HTML, wantDataURL, "image inlined as data URL")
	assert.Contains(t, result.HTML, `<style type="text/css">h1 { color: red; }</style>`)
	assert.NotContains(t, result.HTML, `<link rel="stylesheet"`)
	assert.NotContains(t, result.HTML, "<script")
	assert.Contains(t, result.HTML, "Static replica", "provenance banner present")

	assert.Equal(t, 1, result.Stats.Images)
	assert.Equal(t, 1, result.Stats.TotalImages)
	assert.Equal(t, 1, result.Stats.Stylesheets)
}

func TestReplicate_PartialImageFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body>
			<img src="/ok.png">
			<img src="/broken.png">
			<img src="/also-ok.png">
		</body></html>`)
	})
	serveImage := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("img"))
	}
	mux.HandleFunc("/ok.png", serveImage)
	mux.HandleFunc("/also-ok.png", serveImage)
	mux.HandleFunc("/broken.png", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	svc := newTestService(t)
	result, err := svc.Replicate(context.Background(), server.URL+"/")
	require.NoError(t, err, "asset failures never fail the job")

	assert.Equal(t, 2, result.Stats.Images)
	assert.Equal(t, 3, result.Stats.TotalImages)
	assert.Contains(t, result.HTML, `src="/broken.png"`, "failed reference left as written")
}

func TestReplicate_InvalidURL(t *testing.T) {
	svc := newTestService(t)

	for _, raw := range []string{"", "not a url", "ftp://example.com/x", "http://"} {
		_, err := svc.Replicate(context.Background(), raw)
		assert.ErrorIs(t, err, utils.ErrInvalidURL, "input %q", raw)
	}
}

func TestReplicate_RobotsBlocked(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "User-agent: *\nDisallow: /\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body>secret</body></html>")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	svc := newTestService(t)
	_, err := svc.Replicate(context.Background(), server.URL+"/")
	assert.ErrorIs(t, err, utils.ErrRobotsBlocked)
}

func TestReplicate_PageNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", http.NotFound)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	svc := newTestService(t)
	_, err := svc.Replicate(context.Background(), server.URL+"/missing")
	assert.ErrorIs(t, err, utils.ErrPageNotFound)
}

func TestReplicate_RedirectBaseResolution(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/page", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><img src="pic.png"></body></html>`)
	})
	mux.HandleFunc("/new/pic.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("redirected"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	svc := newTestService(t)
	result, err := svc.Replicate(context.Background(), server.URL+"/old")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(result.FinalURL, "/new/page"))
	wantDataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("redirected"))
	assert.Contains(t, result.HTML, wantDataURL,
		"relative reference resolved against the post-redirect URL")
	assert.Equal(t, 1, result.Stats.Images)
}

func TestReplicate_CSSAssetInlined(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><head><link rel="stylesheet" href="/main.css"></head><body></body></html>`)
	})
	mux.HandleFunc("/main.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		io.WriteString(w, `h1 { background: url("/sprite.png"); }`)
	})
	mux.HandleFunc("/sprite.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("sprite"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	svc := newTestService(t)
	result, err := svc.Replicate(context.Background(), server.URL+"/")
	require.NoError(t, err)

	wantDataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("sprite"))
	assert.Contains(t, result.HTML, "url("+wantDataURL+")",
		"asset referenced from fetched CSS inlined too")
}

func TestReplicate_StoreClearedAfterJob(t *testing.T) {
	server := pageServer(t)

	cfg := testAppConfig()
	log := logrus.New()
	log.SetOutput(io.Discard)
	client := &http.Client{Timeout: 10 * time.Second}
	fetcher := fetch.NewFetcher(client, cfg, log)
	gate := fetch.NewRobotsGate(fetcher, cfg, logrus.NewEntry(log))
	gateway := fetch.NewGateway(fetcher, gate, semaphore.NewWeighted(10), cfg, log)

	store, err := storage.NewBadgerStore(time.Hour, logrus.NewEntry(log))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewService(gateway, store, cfg, log)
	_, err = svc.Replicate(context.Background(), server.URL+"/")
	require.NoError(t, err)

	count, err := store.EntryCount()
	require.NoError(t, err)
	assert.Zero(t, count, "job assets cleared once the job ends")
}
