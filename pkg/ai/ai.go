package ai

import (
	"context"
)

// ToolHandler executes a tool call. arguments is the raw JSON sent by the model.
type ToolHandler func(ctx context.Context, arguments string) (string, error)

// Tool defines a function the model may call.
type Tool struct {
	Name        string         // Unique identifier for the tool
	Description string         // Human-readable description of what the tool does
	Parameters  map[string]any // JSON Schema of the tool's input
	Handler     ToolHandler    // Called when the model requests the tool
}

// ToolCall is a request from the model to invoke a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatMessage is a single message in a conversation.
//
// Role must be one of:
//   - "user"      → a user-provided message
//   - "assistant" → a model reply, possibly carrying ToolCalls
//   - "tool"      → the result of the tool call named by ToolCallID
type ChatMessage struct {
	Message    string     `json:"message"`
	Role       string     `json:"role"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ChatTurn is one model response: either text, tool calls, or both.
type ChatTurn struct {
	Content   string
	ToolCalls []ToolCall
}

// GenerateOptions holds configuration for generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	Thinking      string   // Extended thinking mode configuration
	MaxTokens     int64    // Completion token cap, 0 for provider default
}

// ModelMetrics contains accumulated usage of a client.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	Requests       int     `json:"requests"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// GenerateOption configures a generation request.
type GenerateOption func(*GenerateOptions)

func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature sets the sampling temperature. Lower values make outputs
// more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking enables extended thinking with the given effort or budget.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

func WithMaxTokens(n int64) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// ApplyOptions folds opts over the given defaults.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		o(&defaults)
	}
	return defaults
}

// CompletionOracle returns free text for a prompt.
type CompletionOracle interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
}

// StructuredOracle fills out with JSON conforming to out's schema.
type StructuredOracle interface {
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error
}

// ChatOracle performs a single tool-calling round trip. It never executes
// tools itself; the caller owns the loop.
type ChatOracle interface {
	GenerateChatTurn(
		ctx context.Context,
		messages []ChatMessage,
		tools []Tool,
		opts ...GenerateOption,
	) (ChatTurn, error)
}

// GraphAIClient is implemented by every provider adapter.
type GraphAIClient interface {
	CompletionOracle
	StructuredOracle
	ChatOracle

	LoadModel(ctx context.Context, opts ...GenerateOption) error
	ResetMetrics()
	GetMetrics() ModelMetrics
}
