// Package auto wires the format loaders for every supported document type
// on top of one byte source.
package auto

import (
	"github.com/OFFIS-RIT/policygraph/pkg/loader"
	"github.com/OFFIS-RIT/policygraph/pkg/loader/doc"
	"github.com/OFFIS-RIT/policygraph/pkg/loader/pdf"
	"github.com/OFFIS-RIT/policygraph/pkg/loader/web"
)

// New returns a Loader that reads bytes from source and converts them by
// document type. Plain text and markdown are passed through; URLs are
// fetched with the web loader regardless of source.
func New(source loader.Loader) *loader.Router {
	return loader.NewRouter(nil, map[loader.DocumentType]loader.Loader{
		loader.DocumentTypeText:     source,
		loader.DocumentTypeMarkdown: source,
		loader.DocumentTypePDF:      pdf.NewPDFLoader(source),
		loader.DocumentTypeDOCX:     doc.NewDocLoader(source),
		loader.DocumentTypeHTML:     web.NewHTMLLoader(source),
		loader.DocumentTypeURL:      web.NewWebLoader(nil),
	})
}
