package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/policygraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

func (c *GraphOpenAIClient) newBody(options ai.GenerateOptions, msgs []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxTokens > 0 {
		body.MaxCompletionTokens = openai.Int(options.MaxTokens)
	}

	if options.Thinking != "" {
		// gpt-5 models reject temperatures other than 1.0 when reasoning is enabled
		if c.chatURL == "" {
			body.Temperature = openai.Float(1.0)
		}
		body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
	}
	return body
}

func systemMessages(options ai.GenerateOptions) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+1)
	for _, sp := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	return msgs
}

// complete executes one request, records usage and classifies failures.
func (c *GraphOpenAIClient) complete(ctx context.Context, body openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(ctx, body)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && ai.IsTransientStatus(apiErr.StatusCode) {
			return nil, ai.MarkTransient(err)
		}
		if ai.IsTransient(err) {
			return nil, ai.MarkTransient(err)
		}
		return nil, err
	}

	c.Record(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response from model: %w", ai.ErrEmptyResponse)
	}
	return response, nil
}

// GenerateCompletion sends a single prompt and returns the reply as text.
//
// Example:
//
//	resp, err := client.GenerateCompletion(ctx, prompt, ai.WithTemperature(0))
func (c *GraphOpenAIClient) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.extractionModel,
		Temperature: 0.1,
	}, opts...)

	msgs := append(systemMessages(options), openai.UserMessage(prompt))
	response, err := c.complete(ctx, c.newBody(options, msgs))
	if err != nil {
		return "", err
	}

	return response.Choices[0].Message.Content, nil
}

// GenerateCompletionWithFormat sends a prompt with a strict JSON schema
// derived from out and unmarshals the reply into out.
//
// Example:
//
//	var outline Outline
//	err := client.GenerateCompletionWithFormat(ctx, "segment_document", "Document outline", prompt, &outline)
func (c *GraphOpenAIClient) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.segmentModel,
		Temperature: 0.1,
	}, opts...)

	msgs := append(systemMessages(options), openai.UserMessage(prompt))
	body := c.newBody(options, msgs)
	body.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        name,
				Description: openai.String(description),
				Schema:      ai.GenerateSchema(out),
				Strict:      openai.Bool(true),
			},
		},
	}

	response, err := c.complete(ctx, body)
	if err != nil {
		return err
	}

	message := response.Choices[0].Message.Content
	if message == "" {
		return fmt.Errorf("%w (finish_reason: %s)", ai.ErrEmptyResponse, response.Choices[0].FinishReason)
	}
	return ai.UnmarshalFlexible(message, out)
}

// GenerateChatTurn sends the conversation with the tool definitions and
// returns the model's next step without executing any tool.
// Parallel tool calls are disabled so one turn maps to one decision.
func (c *GraphOpenAIClient) GenerateChatTurn(
	ctx context.Context,
	messages []ai.ChatMessage,
	tools []ai.Tool,
	opts ...ai.GenerateOption,
) (ai.ChatTurn, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.reasoningModel,
		Temperature: 0.2,
	}, opts...)

	msgs := append(systemMessages(options), toOpenAIMessages(messages)...)
	body := c.newBody(options, msgs)
	if len(tools) > 0 {
		body.Tools = toOpenAITools(tools)
		body.ParallelToolCalls = openai.Bool(false)
	}

	response, err := c.complete(ctx, body)
	if err != nil {
		return ai.ChatTurn{}, err
	}

	message := response.Choices[0].Message
	turn := ai.ChatTurn{Content: message.Content}
	for _, tc := range message.ToolCalls {
		ftc := tc.AsFunction()
		turn.ToolCalls = append(turn.ToolCalls, ai.ToolCall{
			ID:        ftc.ID,
			Name:      ftc.Function.Name,
			Arguments: ftc.Function.Arguments,
		})
	}
	return turn, nil
}

// LoadModel is a no-op for OpenAI as models are loaded on-demand.
func (c *GraphOpenAIClient) LoadModel(ctx context.Context, opts ...ai.GenerateOption) error {
	return nil
}

func toOpenAITools(tools []ai.Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		out[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  tool.Parameters,
		})
	}
	return out
}

func toOpenAIMessages(messages []ai.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, message := range messages {
		switch message.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(message.Message))
		case "assistant":
			if len(message.ToolCalls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(message.Message))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if message.Message != "" {
				assistant.Content.OfString = openai.String(message.Message)
			}
			for _, tc := range message.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case "tool":
			msgs = append(msgs, openai.ToolMessage(message.Message, message.ToolCallID))
		default:
			msgs = append(msgs, openai.UserMessage(message.Message))
		}
	}
	return msgs
}
