package process

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"page-replica/pkg/parse"
	"page-replica/pkg/utils"
)

// provenanceBanner is prepended to the body of every replica so a viewer can
// never mistake the output for the live page.
const provenanceBanner = `<div style="background:#fff3cd;color:#664d03;border-bottom:1px solid #ffe69c;padding:10px 16px;font:14px/1.4 sans-serif;text-align:center;">` +
	`Static replica captured for preview. Scripts, forms and embedded frames have been disabled.</div>`

// Rewriter turns a parsed page plus its fetched-asset map into a
// self-contained document. The three phases run in a fixed order:
// sanitize, then substitute, then annotate. A reference with no entry in
// the asset map is left exactly as written; rewriting never fails the job.
type Rewriter struct {
	baseURL string
	assets  map[string]string
	log     *logrus.Entry
}

func NewRewriter(baseURL string, assets map[string]string, log *logrus.Entry) *Rewriter {
	return &Rewriter{baseURL: baseURL, assets: assets, log: log}
}

// Rewrite mutates doc in place and returns its serialized HTML.
func (r *Rewriter) Rewrite(doc *goquery.Document) (string, error) {
	Sanitize(doc)

	r.substituteImages(doc)
	r.substituteInlineBackgrounds(doc)
	r.substituteStylesheets(doc)

	r.annotate(doc)
	r.log.WithField("assets", len(r.assets)).Debug("Rewrote document")

	html, err := doc.Html()
	if err != nil {
		return "", utils.WrapErrorf(err, "serializing rewritten document")
	}
	return html, nil
}

// lookupLiteralFirst checks the asset map under the reference exactly as
// written, then under its resolved absolute form.
func (r *Rewriter) lookupLiteralFirst(ref string) (string, bool) {
	if v, ok := r.assets[ref]; ok {
		return v, true
	}
	if v, ok := r.assets[parse.Resolve(ref, r.baseURL)]; ok {
		return v, true
	}
	return "", false
}

// lookupAbsoluteFirst is the reverse order, used for url() refs inside CSS
// text where the stored key is usually the resolved form.
func (r *Rewriter) lookupAbsoluteFirst(ref string) (string, bool) {
	if v, ok := r.assets[parse.Resolve(ref, r.baseURL)]; ok {
		return v, true
	}
	if v, ok := r.assets[ref]; ok {
		return v, true
	}
	return "", false
}

func (r *Rewriter) substituteImages(doc *goquery.Document) {
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, exists := sel.Attr("src")
		if !exists || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		if inlined, ok := r.lookupLiteralFirst(src); ok {
			sel.SetAttr("src", inlined)
		}
	})
}

func (r *Rewriter) substituteInlineBackgrounds(doc *goquery.Document) {
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		if !strings.Contains(style, "background") {
			return
		}
		rewritten := parse.SubstituteCSSURLs(style, func(raw string) (string, bool) {
			if strings.HasPrefix(raw, "data:") {
				return "", false
			}
			return r.lookupLiteralFirst(raw)
		})
		if rewritten != style {
			sel.SetAttr("style", rewritten)
		}
	})
}

func (r *Rewriter) substituteStylesheets(doc *goquery.Document) {
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists || href == "" {
			return
		}
		css, ok := r.lookupLiteralFirst(href)
		if !ok {
			// Unfetched stylesheet: the link stays, pointing at the live URL
			return
		}
		css = r.inlineCSSAssets(css)
		sel.ReplaceWithHtml(`<style type="text/css">` + css + `</style>`)
	})

	// @import directives inside inline <style> blocks: splice the fetched
	// stylesheet text in place of the directive when it was fetched.
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		original := sel.Text()
		rewritten := r.spliceImports(original)
		if rewritten != original {
			setRawText(sel, rewritten)
		}
	})
}

// setRawText replaces the element's children with a single raw text node.
// Selection.SetText entity-escapes its input, which would corrupt CSS
// (combinators, quotes, ampersands); style elements serialize their text
// children verbatim, so a plain text node is the correct representation.
func setRawText(sel *goquery.Selection, text string) {
	for _, node := range sel.Nodes {
		for child := node.FirstChild; child != nil; {
			next := child.NextSibling
			node.RemoveChild(child)
			child = next
		}
		node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// inlineCSSAssets rewrites url() references inside fetched stylesheet text to
// their stored data URLs. References with no stored asset are left pointing
// at whatever the stylesheet said.
func (r *Rewriter) inlineCSSAssets(css string) string {
	return parse.SubstituteCSSURLs(css, func(raw string) (string, bool) {
		if strings.HasPrefix(raw, "data:") {
			return "", false
		}
		return r.lookupAbsoluteFirst(raw)
	})
}

// spliceImports replaces each fetched @import directive in cssText with the
// imported stylesheet's text. Unfetched imports are kept verbatim.
func (r *Rewriter) spliceImports(cssText string) string {
	for _, ref := range parse.ScanCSSImports(cssText) {
		imported, ok := r.lookupAbsoluteFirst(ref)
		if !ok {
			continue
		}
		imported = r.inlineCSSAssets(imported)
		cssText = replaceImportDirective(cssText, ref, imported)
	}
	return cssText
}

// replaceImportDirective removes the @import statement referencing ref and
// inserts replacement in its place. Handles the quoted and url() spellings.
func replaceImportDirective(cssText, ref, replacement string) string {
	for _, form := range []string{
		`@import url("` + ref + `");`,
		`@import url('` + ref + `');`,
		`@import url(` + ref + `);`,
		`@import "` + ref + `";`,
		`@import '` + ref + `';`,
	} {
		if strings.Contains(cssText, form) {
			return strings.Replace(cssText, form, replacement, 1)
		}
	}
	return cssText
}

func (r *Rewriter) annotate(doc *goquery.Document) {
	body := doc.Find("body")
	if body.Length() == 0 {
		return
	}
	body.PrependHtml(provenanceBanner)
}
