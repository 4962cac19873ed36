package doc

import (
	"context"
	"io"

	"github.com/OFFIS-RIT/policygraph/pkg/loader"
)

const docXMLMax = 50 << 20

// DocLoader loads Word documents (.docx) and extracts their text content.
type DocLoader struct {
	source loader.Loader
	memo   *loader.Memo
}

// NewDocLoader creates a document loader that extracts text from the docx
// XML read by source.
func NewDocLoader(source loader.Loader) *DocLoader {
	return &DocLoader{
		source: source,
		memo:   loader.NewMemo(),
	}
}

// GetText extracts the text content of a Word document.
func (l *DocLoader) GetText(ctx context.Context, doc loader.Document) ([]byte, error) {
	return l.memo.Do(loader.CacheKey(doc), func() ([]byte, error) {
		content, err := l.source.GetText(ctx, doc)
		if err != nil {
			return nil, err
		}
		return parseDocx(content)
	})
}

// GetTextFromIO extracts text content from a Word document provided as an io.Reader.
func GetTextFromIO(input io.Reader) ([]byte, error) {
	content, err := io.ReadAll(input)
	if err != nil {
		return nil, err
	}
	return parseDocx(content)
}
