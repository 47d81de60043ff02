package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"page-replica/pkg/config"
	"page-replica/pkg/fetch"
	"page-replica/pkg/replicate"
	"page-replica/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.AppConfig{
		UserAgent:         "TestReplicaBot/1.0",
		RequestTimeout:    5 * time.Second,
		MaxPageBytes:      1 << 20,
		MaxAssetBytes:     1 << 20,
		InitialRetryDelay: 10 * time.Millisecond,
		MaxRetryDelay:     50 * time.Millisecond,
		SemAcquireTimeout: 2 * time.Second,
		MaxConcurrent:     10,
		ImageBatchSize:    5,
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	client := &http.Client{Timeout: 10 * time.Second}
	fetcher := fetch.NewFetcher(client, cfg, log)
	gate := fetch.NewRobotsGate(fetcher, cfg, logrus.NewEntry(log))
	gateway := fetch.NewGateway(fetcher, gate, semaphore.NewWeighted(10), cfg, log)

	store, err := storage.NewBadgerStore(time.Hour, logrus.NewEntry(log))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := replicate.NewService(gateway, store, cfg, log)
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Get("/health", h.Health)
	r.Post("/api/replicate", h.Replicate)
	return r
}

func postReplicate(t *testing.T, router http.Handler, body string) (*httptest.ResponseRecorder, replicateResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/replicate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp replicateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReplicateEndpoint_EmptyURL(t *testing.T) {
	router := newTestRouter(t)

	rec, resp := postReplicate(t, router, `{"url": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "URL is required", resp.Error)
}

func TestReplicateEndpoint_MalformedBody(t *testing.T) {
	router := newTestRouter(t)

	rec, resp := postReplicate(t, router, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestReplicateEndpoint_InvalidURL(t *testing.T) {
	router := newTestRouter(t)

	rec, resp := postReplicate(t, router, `{"url": "ftp://example.com/x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Invalid URL provided", resp.Error)
}

func TestReplicateEndpoint_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><img src="/p.png"><h1>ok</h1></body></html>`)
	})
	mux.HandleFunc("/p.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("x"))
	})
	target := httptest.NewServer(mux)
	t.Cleanup(target.Close)

	router := newTestRouter(t)
	rec, resp := postReplicate(t, router, `{"url": "`+target.URL+`/"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.HTML, "<h1>ok</h1>")
	require.NotNil(t, resp.Stats)
	assert.Equal(t, 1, resp.Stats.Images)
	assert.Equal(t, 1, resp.Stats.TotalImages)
}

func TestReplicateEndpoint_RobotsBlocked(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "User-agent: *\nDisallow: /\n")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html></html>")
	})
	target := httptest.NewServer(mux)
	t.Cleanup(target.Close)

	router := newTestRouter(t)
	rec, resp := postReplicate(t, router, `{"url": "`+target.URL+`/"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "robots.txt")
}

func TestReplicateEndpoint_PageNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", http.NotFound)
	target := httptest.NewServer(mux)
	t.Cleanup(target.Close)

	router := newTestRouter(t)
	rec, resp := postReplicate(t, router, `{"url": "`+target.URL+`/gone"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "Page not found (404)", resp.Error)
}
