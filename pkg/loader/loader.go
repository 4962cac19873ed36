package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DocumentType is the format of a policy document.
type DocumentType string

const (
	DocumentTypeText     DocumentType = "text"
	DocumentTypeMarkdown DocumentType = "markdown"
	DocumentTypePDF      DocumentType = "pdf"
	DocumentTypeDOCX     DocumentType = "docx"
	DocumentTypeHTML     DocumentType = "html"
	DocumentTypeURL      DocumentType = "url"
)

var ErrUnsupportedType = errors.New("unsupported document type")

// Document is a policy document whose text is retrieved through a Loader.
// Path is a filesystem path, an object key or a URL depending on the
// Loader.
type Document struct {
	ID     string
	Path   string
	Type   DocumentType
	Loader Loader
}

// Loader defines how the raw text of a Document is produced.
// Implementations may read from disk, object storage or the web, or
// convert the bytes of another Loader.
type Loader interface {
	GetText(ctx context.Context, doc Document) ([]byte, error)
}

// NewDocument creates a Document and detects its type from the path.
//
// Example:
//
//	doc, err := loader.NewDocument("travel", "policies/travel.pdf", auto.New(io.NewIOLoader()))
//	if err != nil {
//		log.Fatal(err)
//	}
//	text, err := doc.GetText(ctx)
func NewDocument(id string, path string, l Loader) (Document, error) {
	typ, err := DetectType(path)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Path: path, Type: typ, Loader: l}, nil
}

// GetText loads the document and returns its normalized text.
func (d *Document) GetText(ctx context.Context) (string, error) {
	if d.Loader == nil {
		return "", fmt.Errorf("no loader for document %s", d.Path)
	}
	raw, err := d.Loader.GetText(ctx, *d)
	if err != nil {
		return "", err
	}
	return NormalizeText(raw), nil
}

// DetectType maps a path or URL to a DocumentType.
func DetectType(path string) (DocumentType, error) {
	lower := strings.ToLower(strings.TrimSpace(path))
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return DocumentTypeURL, nil
	}

	switch filepath.Ext(lower) {
	case ".txt", ".text", "":
		return DocumentTypeText, nil
	case ".md", ".markdown":
		return DocumentTypeMarkdown, nil
	case ".pdf":
		return DocumentTypePDF, nil
	case ".docx":
		return DocumentTypeDOCX, nil
	case ".html", ".htm":
		return DocumentTypeHTML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(path))
	}
}

// CacheKey generates a cache key for a Document based on its ID and path.
func CacheKey(doc Document) string {
	return doc.ID + ":" + doc.Path
}

// Router dispatches to a Loader per DocumentType. Types without an entry
// go to the fallback.
type Router struct {
	fallback Loader
	byType   map[DocumentType]Loader
}

// NewRouter creates a Router. fallback may be nil, in which case
// unregistered types fail with ErrUnsupportedType.
func NewRouter(fallback Loader, byType map[DocumentType]Loader) *Router {
	m := make(map[DocumentType]Loader, len(byType))
	for k, v := range byType {
		m[k] = v
	}
	return &Router{fallback: fallback, byType: m}
}

func (r *Router) GetText(ctx context.Context, doc Document) ([]byte, error) {
	if l, ok := r.byType[doc.Type]; ok {
		return l.GetText(ctx, doc)
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, doc.Type)
	}
	return r.fallback.GetText(ctx, doc)
}
