package openai

import (
	"github.com/OFFIS-RIT/policygraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GraphOpenAIClient talks to any OpenAI compatible chat completion API.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	segmentModel    string
	extractionModel string
	reasoningModel  string

	chatURL string
	chatKey string

	ai.Usage

	ChatClient *openai.Client
}

// NewGraphOpenAIClientParams configures a GraphOpenAIClient.
//
// SegmentModel is the default for structured outline requests,
// ExtractionModel for free text extraction and ReasoningModel for tool
// calling turns. Any of them can be overridden per call with ai.WithModel.
type NewGraphOpenAIClientParams struct {
	SegmentModel    string
	ExtractionModel string
	ReasoningModel  string

	ChatURL string
	ChatKey string
}

// NewGraphOpenAIClient creates a client. An empty ChatURL targets the
// official OpenAI endpoint.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		SegmentModel:    "gpt-4.1",
//		ExtractionModel: "gpt-4.1",
//		ReasoningModel:  "gpt-4.1-mini",
//		ChatKey:         os.Getenv("AI_CHAT_KEY"),
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	return &GraphOpenAIClient{
		segmentModel:    params.SegmentModel,
		extractionModel: params.ExtractionModel,
		reasoningModel:  params.ReasoningModel,

		chatURL: params.ChatURL,
		chatKey: params.ChatKey,

		ChatClient: newOpenaiClient(params.ChatURL, params.ChatKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// retries are owned by the pipeline's backoff schedule
		option.WithMaxRetries(0),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
