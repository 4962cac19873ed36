package graph

import (
	"time"

	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/ai"

	"golang.org/x/time/rate"
)

const (
	defaultMaxSectionChars = 2000
	defaultFuzzyThreshold  = 0.85
	defaultParallelAi      = 4
	droppedSampleLimit     = 20
)

// ResponseCache stores raw oracle replies keyed by a digest of the prompt.
// Implementations must be safe for concurrent use.
type ResponseCache interface {
	Get(key string) (string, bool)
	Put(key string, value string) error
}

// GraphClient runs the document to graph pipeline: segmentation, parallel
// per-section extraction and the deterministic merge.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	parallelAiRequests int
	maxSectionChars    int
	fuzzyThreshold     float64
	backoff            util.Backoff
	vocabulary         *Vocabulary
	cache              ResponseCache
	limiter            *rate.Limiter
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// ParallelAiRequests bounds concurrent extraction calls.
// RequestsPerMinute enables a shared rate limiter when > 0.
// MaxSectionChars is the size ceiling above which sections are re-split.
// Backoff overrides the retry schedule for transient oracle failures.
type NewGraphClientParams struct {
	ParallelAiRequests int
	RequestsPerMinute  int
	MaxSectionChars    int
	FuzzyThreshold     float64
	Backoff            *util.Backoff
	Vocabulary         *Vocabulary
	Cache              ResponseCache
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		ParallelAiRequests: 8,
//		RequestsPerMinute:  120,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	g, err := client.Build(ctx, aiClient, "policy.md", text)
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	g := &GraphClient{
		parallelAiRequests: params.ParallelAiRequests,
		maxSectionChars:    params.MaxSectionChars,
		fuzzyThreshold:     params.FuzzyThreshold,
		vocabulary:         params.Vocabulary,
		cache:              params.Cache,
	}
	if g.parallelAiRequests <= 0 {
		g.parallelAiRequests = defaultParallelAi
	}
	if g.maxSectionChars <= 0 {
		g.maxSectionChars = defaultMaxSectionChars
	}
	if g.fuzzyThreshold <= 0 || g.fuzzyThreshold > 1 {
		g.fuzzyThreshold = defaultFuzzyThreshold
	}
	if g.vocabulary == nil {
		g.vocabulary = DefaultVocabulary()
	}

	if params.Backoff != nil {
		g.backoff = *params.Backoff
	} else {
		g.backoff = util.DefaultBackoff()
	}
	if g.backoff.Retryable == nil {
		g.backoff.Retryable = ai.IsTransient
	}

	if params.RequestsPerMinute > 0 {
		every := time.Minute / time.Duration(params.RequestsPerMinute)
		g.limiter = rate.NewLimiter(rate.Every(every), 1)
	}

	return g, nil
}

// Vocabulary returns the type vocabulary used for extraction and checks.
func (g *GraphClient) Vocabulary() *Vocabulary {
	return g.vocabulary
}
