package process

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"page-replica/pkg/models"
	"page-replica/pkg/parse"
)

// ExtractAssets walks the parsed document and collects every fetchable asset
// reference: image sources, inline-style background URLs, stylesheet links,
// and @import directives inside <style> blocks. Each rule is independent and
// additive; a reference that is already a data: URL is never emitted.
//
// Every reference records both its literal text and its form resolved against
// baseURL, because fetch results are stored under both keys.
func ExtractAssets(doc *goquery.Document, baseURL string, log *logrus.Entry) models.Extraction {
	var out models.Extraction

	// --- Image elements ---
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, exists := sel.Attr("src")
		if !exists || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		out.Images = append(out.Images, models.AssetReference{
			OriginalText: src,
			AbsoluteURL:  parse.Resolve(src, baseURL),
			Kind:         models.RefImage,
		})
	})

	// --- Inline style backgrounds ---
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		if !strings.Contains(style, "background") {
			return
		}
		// A style attribute that fails pattern matching simply yields zero
		// background references, not an error
		for _, ref := range parse.ScanCSSURLs(style) {
			out.Images = append(out.Images, models.AssetReference{
				OriginalText: ref.Raw,
				AbsoluteURL:  parse.Resolve(ref.Raw, baseURL),
				Kind:         models.RefInlineStyleBackground,
			})
		}
	})

	// --- Stylesheet links ---
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists || href == "" || strings.HasPrefix(href, "data:") {
			return
		}
		out.Stylesheets = append(out.Stylesheets, models.AssetReference{
			OriginalText: href,
			AbsoluteURL:  parse.Resolve(href, baseURL),
			Kind:         models.RefStylesheet,
		})
	})

	// --- @import directives in inline <style> blocks ---
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		for _, ref := range parse.ScanCSSImports(sel.Text()) {
			out.Stylesheets = append(out.Stylesheets, models.AssetReference{
				OriginalText: ref,
				AbsoluteURL:  parse.Resolve(ref, baseURL),
				Kind:         models.RefCSSImport,
			})
		}
	})

	log.WithFields(logrus.Fields{
		"images":      len(out.Images),
		"stylesheets": len(out.Stylesheets),
	}).Debug("Extracted asset references")

	return out
}
