package graph

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/ai"
)

// stubOracle answers segmentation with a fixed outline and extraction via
// complete. It records every extraction prompt.
type stubOracle struct {
	mu       sync.Mutex
	outline  segmentResponse
	segErr   error
	complete func(call int, prompt string) (string, error)
	prompts  []string
}

func (s *stubOracle) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if s.segErr != nil {
		return s.segErr
	}
	data, err := json.Marshal(s.outline)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *stubOracle) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	call := len(s.prompts)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.complete == nil {
		return `{"entities": [], "relationships": []}`, nil
	}
	return s.complete(call, prompt)
}

func (s *stubOracle) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

type memoryCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *memoryCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *memoryCache) Put(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]string)
	}
	c.m[key] = value
	return nil
}

func testClient(t *testing.T, params NewGraphClientParams) *GraphClient {
	t.Helper()
	if params.Backoff == nil {
		params.Backoff = &util.Backoff{
			Delays:      []time.Duration{time.Millisecond, 2 * time.Millisecond},
			MaxAttempts: 3,
		}
	}
	g, err := NewGraphClient(params)
	if err != nil {
		t.Fatalf("NewGraphClient() error = %v", err)
	}
	return g
}

// sectionPrefix reads the entity ID prefix out of an extraction prompt.
func sectionPrefix(prompt string) string {
	const marker = "Entity ID Prefix: "
	i := strings.Index(prompt, marker)
	if i < 0 {
		return ""
	}
	rest := prompt[i+len(marker):]
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}
