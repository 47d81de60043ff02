// Package replicate orchestrates a single page-replication job: fetch the
// page, discover its assets, fetch them with bounded concurrency, and rewrite
// the document into a self-contained replica.
package replicate

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"page-replica/pkg/config"
	"page-replica/pkg/fetch"
	"page-replica/pkg/models"
	"page-replica/pkg/parse"
	"page-replica/pkg/process"
	"page-replica/pkg/storage"
	"page-replica/pkg/utils"
)

// Result is the final product of a replication job
type Result struct {
	HTML     string
	FinalURL string
	Stats    models.ReplicationStats
}

// Service runs replication jobs. One Service instance is shared across
// requests; each job gets its own store namespace that is cleared when the
// job ends, on every exit path.
type Service struct {
	gateway *fetch.Gateway
	store   storage.AssetStore
	cfg     *config.AppConfig
	log     *logrus.Logger
}

func NewService(gateway *fetch.Gateway, store storage.AssetStore, cfg *config.AppConfig, log *logrus.Logger) *Service {
	return &Service{gateway: gateway, store: store, cfg: cfg, log: log}
}

// Replicate runs one job end to end. The returned error is always one of the
// fatal sentinels from pkg/utils; per-asset failures never surface here, they
// only lower the stats.
func (s *Service) Replicate(ctx context.Context, rawURL string) (*Result, error) {
	pageURL, err := parse.ValidatePageURL(rawURL)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrInvalidURL, "validating '%s': %v", rawURL, err)
	}

	jobID := storage.NewJobID()
	jobLog := s.log.WithFields(logrus.Fields{"job_id": jobID, "url": pageURL.String()})
	jobLog.Info("Starting replication job")

	defer func() {
		if clearErr := s.store.Clear(jobID); clearErr != nil {
			jobLog.Warnf("Failed to clear job assets: %v", clearErr)
		}
	}()

	page, err := s.gateway.FetchPage(ctx, pageURL)
	if err != nil {
		jobLog.WithField("category", utils.CategorizeError(err)).Errorf("Page fetch failed: %v", err)
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrParsing, "parsing page '%s': %v", page.FinalURL, err)
	}

	// The post-redirect URL is the effective base for every relative reference
	base := page.FinalURL
	extraction := process.ExtractAssets(doc, base, jobLog)

	stylesheetsOK := s.fetchStylesheets(ctx, jobID, base, extraction.Stylesheets, jobLog)
	imagesOK := s.fetchImages(ctx, jobID, base, extraction.Images, jobLog)

	assets, err := s.store.GetAll(jobID)
	if err != nil {
		return nil, utils.WrapErrorf(utils.ErrStore, "loading job assets: %v", err)
	}

	rewriter := process.NewRewriter(base, assets, jobLog)
	html, err := rewriter.Rewrite(doc)
	if err != nil {
		return nil, err
	}

	stats := models.ReplicationStats{
		Images:      imagesOK,
		TotalImages: len(extraction.Images),
		Stylesheets: stylesheetsOK,
	}
	jobLog.WithFields(logrus.Fields{
		"images":       stats.Images,
		"total_images": stats.TotalImages,
		"stylesheets":  stats.Stylesheets,
	}).Info("Replication job complete")

	return &Result{HTML: html, FinalURL: page.FinalURL, Stats: stats}, nil
}

// fetchStylesheets retrieves every stylesheet concurrently, storing the CSS
// text plus any binary assets the CSS itself references. Returns the number
// of stylesheets fetched successfully.
func (s *Service) fetchStylesheets(ctx context.Context, jobID, base string, refs []models.AssetReference, jobLog *logrus.Entry) int {
	var ok atomic.Int64
	var wg sync.WaitGroup

	for _, ref := range refs {
		wg.Add(1)
		go func(ref models.AssetReference) {
			defer wg.Done()
			css, fetched := s.gateway.FetchStylesheet(ctx, ref.AbsoluteURL, base)
			if !fetched {
				return
			}
			ok.Add(1)
			s.putBoth(jobID, ref, css, jobLog)
			s.fetchCSSAssets(ctx, jobID, base, css, jobLog)
		}(ref)
	}
	wg.Wait()

	return int(ok.Load())
}

// fetchCSSAssets pulls in the url() references embedded in fetched CSS so the
// rewriter can inline them. Failures mean the reference keeps pointing at the
// live URL.
func (s *Service) fetchCSSAssets(ctx context.Context, jobID, base, css string, jobLog *logrus.Entry) {
	for _, ref := range parse.ScanCSSURLs(css) {
		resolved := parse.Resolve(ref.Raw, base)
		dataURL, fetched := s.gateway.FetchAsset(ctx, resolved, base)
		if !fetched {
			continue
		}
		if err := s.store.Put(jobID, resolved, dataURL); err != nil {
			jobLog.Warnf("Failed to store CSS asset '%s': %v", resolved, err)
		}
	}
}

// fetchImages retrieves images in fixed-size sequential batches: each batch
// runs as independent goroutines and is joined before the next starts, so no
// fetch outlives the job. Returns the number of images fetched successfully.
func (s *Service) fetchImages(ctx context.Context, jobID, base string, refs []models.AssetReference, jobLog *logrus.Entry) int {
	batchSize := s.cfg.ImageBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	var ok atomic.Int64
	for start := 0; start < len(refs); start += batchSize {
		end := start + batchSize
		if end > len(refs) {
			end = len(refs)
		}

		var wg sync.WaitGroup
		for _, ref := range refs[start:end] {
			wg.Add(1)
			go func(ref models.AssetReference) {
				defer wg.Done()
				dataURL, fetched := s.gateway.FetchImage(ctx, ref.AbsoluteURL, base)
				if !fetched {
					return
				}
				ok.Add(1)
				s.putBoth(jobID, ref, dataURL, jobLog)
			}(ref)
		}
		wg.Wait()
	}

	return int(ok.Load())
}

// putBoth stores a fetched asset under the reference's literal text and its
// resolved absolute URL, so the rewriter can match whichever form a document
// node carries.
func (s *Service) putBoth(jobID string, ref models.AssetReference, value string, jobLog *logrus.Entry) {
	for _, key := range []string{ref.OriginalText, ref.AbsoluteURL} {
		if err := s.store.Put(jobID, key, value); err != nil {
			jobLog.Warnf("Failed to store asset under '%s': %v", key, err)
		}
	}
}
