package models

// RefKind classifies where an asset reference was discovered
type RefKind string

const (
	RefImage                 RefKind = "image"                  // <img src>
	RefStylesheet            RefKind = "stylesheet"             // <link rel="stylesheet">
	RefInlineStyleBackground RefKind = "inline_style_background" // url(...) inside a style attribute
	RefCSSImport             RefKind = "css_import"             // @import inside a <style> block
)

// AssetReference is one discovered pointer to an external resource.
// OriginalText is the literal string as it appeared in source; AbsoluteURL is
// that text resolved against the page's effective base. Both forms are used as
// store keys so the rewrite phase can match on either.
type AssetReference struct {
	OriginalText string
	AbsoluteURL  string
	Kind         RefKind
}

// ReplicationStats counts attempted vs succeeded asset fetches for one job.
// These counts are the only caller-visible trace of partial failures.
type ReplicationStats struct {
	Images      int `json:"images"`      // Images successfully inlined
	TotalImages int `json:"totalImages"` // Image references discovered
	Stylesheets int `json:"stylesheets"` // Stylesheets successfully inlined
}

// Extraction groups the asset references discovered in one document
type Extraction struct {
	Images      []AssetReference
	Stylesheets []AssetReference
}
