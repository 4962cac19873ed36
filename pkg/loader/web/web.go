package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/OFFIS-RIT/policygraph/pkg/loader"

	"codeberg.org/readeck/go-readability/v2"
)

const maxBody = 50 << 20

// WebLoader fetches documents over HTTP. HTML pages are reduced to their
// main content with readability; other content types are returned as is.
type WebLoader struct {
	client *http.Client
	memo   *loader.Memo
}

// NewWebLoader creates a web loader. A nil client uses http.DefaultClient.
func NewWebLoader(client *http.Client) *WebLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebLoader{client: client, memo: loader.NewMemo()}
}

// GetText fetches doc.Path and extracts its readable text.
func (l *WebLoader) GetText(ctx context.Context, doc loader.Document) ([]byte, error) {
	return l.memo.Do(loader.CacheKey(doc), func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := l.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("failed to fetch url: status %d", resp.StatusCode)
		}

		body := io.LimitReader(resp.Body, maxBody)
		if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
			return HTMLToText(body, doc.Path)
		}
		return io.ReadAll(body)
	})
}

// HTMLLoader converts HTML documents read by another Loader.
type HTMLLoader struct {
	source loader.Loader
	memo   *loader.Memo
}

func NewHTMLLoader(source loader.Loader) *HTMLLoader {
	return &HTMLLoader{source: source, memo: loader.NewMemo()}
}

func (l *HTMLLoader) GetText(ctx context.Context, doc loader.Document) ([]byte, error) {
	return l.memo.Do(loader.CacheKey(doc), func() ([]byte, error) {
		content, err := l.source.GetText(ctx, doc)
		if err != nil {
			return nil, err
		}
		return HTMLToText(strings.NewReader(string(content)), "")
	})
}

// HTMLToText extracts the main article text of an HTML page. pageURL is
// used to resolve relative links and may be empty.
func HTMLToText(r io.Reader, pageURL string) ([]byte, error) {
	var u *url.URL
	if pageURL != "" {
		parsed, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse url: %w", err)
		}
		u = parsed
	}

	article, err := readability.FromReader(r, u)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var builder strings.Builder
	if err := article.RenderText(&builder); err != nil {
		return nil, fmt.Errorf("failed to render article text: %w", err)
	}
	return []byte(builder.String()), nil
}
