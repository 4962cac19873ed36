package io

import (
	"context"
	"os"

	"github.com/OFFIS-RIT/policygraph/pkg/loader"
)

// IOLoader loads documents directly from the local filesystem with caching.
type IOLoader struct {
	memo *loader.Memo
}

// NewIOLoader creates a new filesystem-based loader.
func NewIOLoader() *IOLoader {
	return &IOLoader{memo: loader.NewMemo()}
}

// GetText reads the document from the filesystem. Results are cached.
func (l *IOLoader) GetText(ctx context.Context, doc loader.Document) ([]byte, error) {
	return l.memo.Do(loader.CacheKey(doc), func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return os.ReadFile(doc.Path)
	})
}
