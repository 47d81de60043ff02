package parse

import (
	"regexp"
	"strings"
)

// Regex-based CSS reference scanning. Deliberately isolated here: malformed
// url() syntax and nested quotes are the most failure-prone inputs in the
// whole pipeline, and a scan that matches nothing must degrade to an empty
// result, never an error.
var (
	// url(...) with optional single or double quotes around the reference
	cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

	// @import "x.css" / @import 'x.css' / @import url(x.css) variants
	cssImportPattern = regexp.MustCompile(`@import\s+(?:url\(\s*['"]?([^'")]+)['"]?\s*\)|['"]([^'"]+)['"])`)
)

// CSSURLRef is one url(...) occurrence found in CSS or style-attribute text
type CSSURLRef struct {
	Raw string // Reference text exactly as written inside url(...)
}

// ScanCSSURLs returns every url(...) reference in cssText, in source order.
// data: references are skipped (already embedded, nothing to fetch).
func ScanCSSURLs(cssText string) []CSSURLRef {
	matches := cssURLPattern.FindAllStringSubmatch(cssText, -1)
	refs := make([]CSSURLRef, 0, len(matches))
	for _, m := range matches {
		raw := strings.TrimSpace(m[1])
		if raw == "" || strings.HasPrefix(raw, "data:") {
			continue
		}
		refs = append(refs, CSSURLRef{Raw: raw})
	}
	return refs
}

// ScanCSSImports returns the reference text of every @import directive in
// cssText, covering both the quoted-string and url() forms.
func ScanCSSImports(cssText string) []string {
	matches := cssImportPattern.FindAllStringSubmatch(cssText, -1)
	imports := make([]string, 0, len(matches))
	for _, m := range matches {
		ref := m[1]
		if ref == "" {
			ref = m[2]
		}
		ref = strings.TrimSpace(ref)
		if ref == "" || strings.HasPrefix(ref, "data:") {
			continue
		}
		imports = append(imports, ref)
	}
	return imports
}

// SubstituteCSSURLs rewrites cssText by replacing each url(...) reference via
// lookup. The lookup receives the raw reference text and returns the
// replacement plus true, or false to leave the occurrence untouched.
func SubstituteCSSURLs(cssText string, lookup func(raw string) (string, bool)) string {
	return cssURLPattern.ReplaceAllStringFunc(cssText, func(match string) string {
		sub := cssURLPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		raw := strings.TrimSpace(sub[1])
		if replacement, ok := lookup(raw); ok {
			return "url(" + replacement + ")"
		}
		return match
	})
}
