package pdf

import (
	"context"
	"errors"
	"os/exec"

	"github.com/OFFIS-RIT/policygraph/pkg/loader"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
)

// PDFLoader loads PDF files and extracts their text content. Extraction
// uses pdftotext when it is installed and a pure Go reader otherwise.
type PDFLoader struct {
	source loader.Loader
	memo   *loader.Memo
}

// NewPDFLoader creates a PDF loader that reads the raw bytes from source.
func NewPDFLoader(source loader.Loader) *PDFLoader {
	return &PDFLoader{
		source: source,
		memo:   loader.NewMemo(),
	}
}

// GetText extracts text from a PDF document.
func (l *PDFLoader) GetText(ctx context.Context, doc loader.Document) ([]byte, error) {
	return l.memo.Do(loader.CacheKey(doc), func() ([]byte, error) {
		content, err := l.source.GetText(ctx, doc)
		if err != nil {
			return nil, err
		}

		text, err := parsePDF(ctx, content)
		if errors.Is(err, exec.ErrNotFound) {
			logger.Debug("[Loader] pdftotext not installed, using the built-in reader", "document", doc.Path)
			return readPDF(content)
		}
		return text, err
	})
}
