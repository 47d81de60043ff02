package process

import (
	"io"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"page-replica/pkg/models"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func testEntry() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func TestExtractAssets_Images(t *testing.T) {
	doc := parseDoc(t, `<html><body>
		<img src="/logo.png">
		<img src="https://cdn.example.com/hero.jpg">
		<img src="data:image/gif;base64,R0lGOD">
		<img alt="no source">
	</body></html>`)

	out := ExtractAssets(doc, "https://example.com/page", testEntry())

	require.Len(t, out.Images, 2)
	assert.Equal(t, "/logo.png", out.Images[0].OriginalText)
	assert.Equal(t, "https://example.com/logo.png", out.Images[0].AbsoluteURL)
	assert.Equal(t, models.RefImage, out.Images[0].Kind)
	assert.Equal(t, "https://cdn.example.com/hero.jpg", out.Images[1].AbsoluteURL)
}

func TestExtractAssets_InlineBackgrounds(t *testing.T) {
	doc := parseDoc(t, `<html><body>
		<div style="background: url('bg.png') no-repeat; color: red"></div>
		<div style="background-image: url(a.png), url(b.png)"></div>
		<div style="color: blue"></div>
		<div style="background: url(data:image/png;base64,xyz)"></div>
	</body></html>`)

	out := ExtractAssets(doc, "https://example.com/dir/page", testEntry())

	require.Len(t, out.Images, 3)
	assert.Equal(t, "bg.png", out.Images[0].OriginalText)
	assert.Equal(t, "https://example.com/dir/bg.png", out.Images[0].AbsoluteURL)
	assert.Equal(t, models.RefInlineStyleBackground, out.Images[0].Kind)
	assert.Equal(t, "a.png", out.Images[1].OriginalText)
	assert.Equal(t, "b.png", out.Images[2].OriginalText)
}

func TestExtractAssets_StylesheetLinks(t *testing.T) {
	doc := parseDoc(t, `<html><head>
		<link rel="stylesheet" href="/css/main.css">
		<link rel="icon" href="/favicon.ico">
		<link rel="stylesheet" href="data:text/css,body{}">
	</head><body></body></html>`)

	out := ExtractAssets(doc, "https://example.com/", testEntry())

	require.Len(t, out.Stylesheets, 1)
	assert.Equal(t, "/css/main.css", out.Stylesheets[0].OriginalText)
	assert.Equal(t, "https://example.com/css/main.css", out.Stylesheets[0].AbsoluteURL)
	assert.Equal(t, models.RefStylesheet, out.Stylesheets[0].Kind)
}

func TestExtractAssets_StyleBlockImports(t *testing.T) {
	doc := parseDoc(t, `<html><head><style>
		@import url("imported.css");
		@import 'other.css';
		body { color: black; }
	</style></head><body></body></html>`)

	out := ExtractAssets(doc, "https://example.com/", testEntry())

	require.Len(t, out.Stylesheets, 2)
	assert.Equal(t, "imported.css", out.Stylesheets[0].OriginalText)
	assert.Equal(t, models.RefCSSImport, out.Stylesheets[0].Kind)
	assert.Equal(t, "other.css", out.Stylesheets[1].OriginalText)
}

func TestExtractAssets_MalformedStyleAttribute(t *testing.T) {
	doc := parseDoc(t, `<html><body>
		<div style="background: url(unclosed"></div>
		<div style="background:;;;"></div>
	</body></html>`)

	out := ExtractAssets(doc, "https://example.com/", testEntry())
	assert.Empty(t, out.Images)
	assert.Empty(t, out.Stylesheets)
}

func TestExtractAssets_EmptyDocument(t *testing.T) {
	doc := parseDoc(t, `<html><body><p>text only</p></body></html>`)

	out := ExtractAssets(doc, "https://example.com/", testEntry())
	assert.Empty(t, out.Images)
	assert.Empty(t, out.Stylesheets)
}
