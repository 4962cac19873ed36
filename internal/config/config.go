// Package config builds the shared clients of the binaries from the
// environment.
package config

import (
	"fmt"
	"io"

	"github.com/OFFIS-RIT/policygraph/internal/cache"
	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	oai "github.com/OFFIS-RIT/policygraph/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/policygraph/pkg/ai/openai"
	"github.com/OFFIS-RIT/policygraph/pkg/graph"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	"github.com/OFFIS-RIT/policygraph/pkg/logger/console"
	"github.com/OFFIS-RIT/policygraph/pkg/query"
)

// InitLogger installs the console logger. DEBUG and LOG_FORMAT=json are
// honored; out defaults to stderr.
func InitLogger(prefix string, out io.Writer) {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		JSON:   util.GetEnv("LOG_FORMAT") == "json",
		Prefix: prefix,
		Output: out,
	}))
}

// NewOracle creates the provider selected by AI_ADAPTER ("openai" by
// default, or "ollama").
func NewOracle() (ai.GraphAIClient, error) {
	segmentModel := util.GetEnv("AI_SEGMENT_MODEL")
	extractModel := util.GetEnvString("AI_EXTRACT_MODEL", segmentModel)
	reasonModel := util.GetEnvString("AI_REASON_MODEL", extractModel)

	switch adapter := util.GetEnvString("AI_ADAPTER", "openai"); adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			SegmentModel:    segmentModel,
			ExtractionModel: extractModel,
			ReasoningModel:  reasonModel,

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return client, nil
	case "openai":
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			SegmentModel:    segmentModel,
			ExtractionModel: extractModel,
			ReasoningModel:  reasonModel,

			ChatURL: util.GetEnv("AI_CHAT_URL"),
			ChatKey: util.GetEnv("AI_CHAT_KEY"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", adapter)
	}
}

// OpenCache opens the extraction cache in CACHE_DIR. Without CACHE_DIR
// there is no cache and both return values are nil.
func OpenCache() (*cache.Cache, error) {
	dir := util.GetEnv("CACHE_DIR")
	if dir == "" {
		return nil, nil
	}
	return cache.Open(cache.Config{
		Dir: dir,
		TTL: util.GetEnvDuration("CACHE_TTL", 0),
	})
}

// NewGraphClient creates the pipeline client. c may be nil.
func NewGraphClient(c *cache.Cache) (*graph.GraphClient, error) {
	vocab := graph.DefaultVocabulary()
	if path := util.GetEnv("VOCABULARY_FILE"); path != "" {
		v, err := graph.LoadVocabulary(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load vocabulary: %w", err)
		}
		vocab = v
	}

	params := graph.NewGraphClientParams{
		ParallelAiRequests: util.GetEnvInt("AI_PARALLEL_REQ", 4),
		RequestsPerMinute:  util.GetEnvInt("AI_RPM", 0),
		MaxSectionChars:    util.GetEnvInt("SECTION_MAX_CHARS", 0),
		FuzzyThreshold:     util.GetEnvNumeric("FUZZY_THRESHOLD", 0),
		Vocabulary:         vocab,
	}
	if c != nil {
		params.Cache = c
	}
	return graph.NewGraphClient(params)
}

// NewAgent creates the reasoning agent with AGENT_MAX_TURNS and
// AI_REASON_MODEL applied.
func NewAgent(oracle ai.ChatOracle) *query.Agent {
	opts := []query.QueryOption{
		query.WithMaxTurns(util.GetEnvInt("AGENT_MAX_TURNS", query.DefaultMaxTurns)),
	}
	if model := util.GetEnv("AI_REASON_MODEL"); model != "" {
		opts = append(opts, query.WithModel(model))
	}
	return query.NewAgent(oracle, opts...)
}
