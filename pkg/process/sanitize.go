package process

import (
	"github.com/PuerkitoBio/goquery"
)

// Tags removed outright: anything that executes code or embeds a live
// sub-document has no place in a static replica.
var activeContentTags = []string{"script", "noscript", "iframe", "object", "embed"}

// Inline event-handler attributes stripped from every remaining element.
var eventHandlerAttrs = []string{
	"onabort", "onblur", "onchange", "onclick", "ondblclick", "ondrag",
	"ondragend", "ondragenter", "ondragleave", "ondragover", "ondragstart",
	"ondrop", "onerror", "onfocus", "oninput", "onkeydown", "onkeypress",
	"onkeyup", "onload", "onmousedown", "onmouseenter", "onmouseleave",
	"onmousemove", "onmouseout", "onmouseover", "onmouseup", "onscroll",
	"onsubmit", "ontouchend", "ontouchmove", "ontouchstart", "onwheel",
}

// Sanitize strips active content from the document in place: code-bearing
// elements are removed, inline event handlers are dropped, and forms plus
// their controls are force-disabled so nothing in the replica can submit or
// execute. Runs before any URL substitution so injected asset payloads are
// never scanned.
func Sanitize(doc *goquery.Document) {
	for _, tag := range activeContentTags {
		doc.Find(tag).Remove()
	}

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range eventHandlerAttrs {
			if _, exists := sel.Attr(attr); exists {
				sel.RemoveAttr(attr)
			}
		}
	})

	// Forms stay visible but inert
	doc.Find("form").Each(func(_ int, sel *goquery.Selection) {
		sel.RemoveAttr("action")
		sel.RemoveAttr("method")
	})
	doc.Find("input, textarea, button, select").Each(func(_ int, sel *goquery.Selection) {
		sel.SetAttr("disabled", "disabled")
	})
}
