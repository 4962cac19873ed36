package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/OFFIS-RIT/policygraph/pkg/ai"

	"github.com/ollama/ollama/api"
)

const defaultContext = 4096

// chat runs one non-streaming request under the request semaphore and
// returns the aggregated response.
func (c *GraphOllamaClient) chat(ctx context.Context, req *api.ChatRequest) (api.ChatResponse, error) {
	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return api.ChatResponse{}, err
	}
	defer c.reqLock.Release(1)

	stream := false
	req.Stream = &stream
	if req.Options == nil {
		req.Options = map[string]any{}
	}
	if _, ok := req.Options["num_ctx"]; !ok {
		tokens := 200
		for _, m := range req.Messages {
			tokens += ai.EstimateTokens(m.Content)
		}
		if tokens > defaultContext {
			req.Options["num_ctx"] = tokens
		}
	}

	var final api.ChatResponse
	var content strings.Builder
	err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		content.WriteString(cr.Message.Content)
		if len(cr.Message.ToolCalls) > 0 {
			final.Message.ToolCalls = append(final.Message.ToolCalls, cr.Message.ToolCalls...)
		}
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) && ai.IsTransientStatus(statusErr.StatusCode) {
			return api.ChatResponse{}, ai.MarkTransient(err)
		}
		if ai.IsTransient(err) {
			return api.ChatResponse{}, ai.MarkTransient(err)
		}
		return api.ChatResponse{}, err
	}
	final.Message.Role = "assistant"
	final.Message.Content = content.String()

	c.Record(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})
	return final, nil
}

func newRequest(options ai.GenerateOptions, msgs []api.Message) *api.ChatRequest {
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.MaxTokens > 0 {
		req.Options["num_predict"] = options.MaxTokens
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{
			Value: options.Thinking,
		}
	}
	return req
}

func systemMessages(options ai.GenerateOptions) []api.Message {
	msgs := make([]api.Message, 0, len(options.SystemPrompts)+1)
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	return msgs
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *GraphOllamaClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.1,
	}, opts...)

	msgs := append(systemMessages(options), api.Message{Role: "user", Content: prompt})
	final, err := c.chat(ctx, newRequest(options, msgs))
	if err != nil {
		return "", err
	}
	return final.Message.Content, nil
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *GraphOllamaClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	formatBytes, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.segmentModel,
		Temperature: 0.1,
	}, opts...)

	msgs := append(systemMessages(options), api.Message{Role: "user", Content: prompt})
	req := newRequest(options, msgs)
	req.Format = json.RawMessage(formatBytes)

	final, err := c.chat(ctx, req)
	if err != nil {
		return err
	}
	if strings.TrimSpace(final.Message.Content) == "" {
		return fmt.Errorf("%s: %w", name, ai.ErrEmptyResponse)
	}
	return ai.UnmarshalFlexible(final.Message.Content, out)
}

// GenerateChatTurn sends the conversation and tool definitions and returns
// the next step. Ollama does not assign tool call IDs, so positional IDs are
// generated for the caller to echo back.
func (c *GraphOllamaClient) GenerateChatTurn(
	ctx context.Context,
	messages []ai.ChatMessage,
	tools []ai.Tool,
	opts ...ai.GenerateOption,
) (ai.ChatTurn, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.reasoningModel,
		Temperature: 0.2,
	}, opts...)

	msgs, err := toOllamaMessages(messages)
	if err != nil {
		return ai.ChatTurn{}, err
	}
	req := newRequest(options, append(systemMessages(options), msgs...))
	if len(tools) > 0 {
		req.Tools = toOllamaTools(tools)
	}

	final, err := c.chat(ctx, req)
	if err != nil {
		return ai.ChatTurn{}, err
	}

	turn := ai.ChatTurn{Content: final.Message.Content}
	for i, tc := range final.Message.ToolCalls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			return ai.ChatTurn{}, fmt.Errorf("failed to marshal tool arguments: %w", err)
		}
		turn.ToolCalls = append(turn.ToolCalls, ai.ToolCall{
			ID:        fmt.Sprintf("call_%d_%d", len(messages), i),
			Name:      tc.Function.Name,
			Arguments: string(args),
		})
	}
	return turn, nil
}

// LoadModel preloads a model into memory to reduce latency on subsequent requests.
func (c *GraphOllamaClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model: c.extractionModel,
	}, opts...)

	req := &api.ChatRequest{
		Model: options.Model,
	}

	return c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		return nil
	})
}

func toOllamaMessages(messages []ai.ChatMessage) ([]api.Message, error) {
	msgs := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		msg := api.Message{Role: role, Content: m.Message}
		for _, tc := range m.ToolCalls {
			var args api.ToolCallFunctionArguments
			if tc.Arguments != "" {
				if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
					return nil, fmt.Errorf("tool call %s has invalid arguments: %w", tc.Name, err)
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func toOllamaTools(tools []ai.Tool) api.Tools {
	ollamaTools := make(api.Tools, len(tools))
	for i, tool := range tools {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Required:   []string{},
			Properties: map[string]api.ToolProperty{},
		}

		if tool.Parameters != nil {
			if props, ok := tool.Parameters["properties"].(map[string]any); ok {
				for name, prop := range props {
					propMap, ok := prop.(map[string]any)
					if !ok {
						continue
					}
					tp := api.ToolProperty{}
					if t, ok := propMap["type"].(string); ok {
						tp.Type = api.PropertyType([]string{t})
					}
					if desc, ok := propMap["description"].(string); ok {
						tp.Description = desc
					}
					if enum, ok := propMap["enum"].([]any); ok {
						tp.Enum = enum
					}
					params.Properties[name] = tp
				}
			}
			switch req := tool.Parameters["required"].(type) {
			case []string:
				params.Required = req
			case []any:
				for _, v := range req {
					if s, ok := v.(string); ok {
						params.Required = append(params.Required, s)
					}
				}
			}
		}

		ollamaTools[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return ollamaTools
}
