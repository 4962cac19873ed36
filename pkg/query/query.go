// Package query answers questions about a policy graph with a bounded,
// tool-calling reasoning loop over an in-memory store.
package query

import (
	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/ai"
)

// DefaultMaxTurns bounds the oracle round trips of one question.
const DefaultMaxTurns = 15

type queryOptions struct {
	SystemPrompts []string
	Model         string
	Thinking      string
	MaxTurns      int
	Backoff       util.Backoff
	Tracer        Tracer
}

// QueryOption is a functional option for configuring the agent.
type QueryOption func(*queryOptions)

// WithSystemPrompts appends system prompts after the agent prompt.
func WithSystemPrompts(prompts ...string) QueryOption {
	return func(o *queryOptions) {
		o.SystemPrompts = append(o.SystemPrompts, prompts...)
	}
}

func WithModel(model string) QueryOption {
	return func(o *queryOptions) {
		o.Model = model
	}
}

func WithThinking(thinking string) QueryOption {
	return func(o *queryOptions) {
		o.Thinking = thinking
	}
}

// WithMaxTurns sets the turn ceiling. The last permitted turn is always the
// forced answer turn.
func WithMaxTurns(n int) QueryOption {
	return func(o *queryOptions) {
		o.MaxTurns = n
	}
}

// WithBackoff sets the retry schedule for transport failures of the oracle.
func WithBackoff(b util.Backoff) QueryOption {
	return func(o *queryOptions) {
		o.Backoff = b
	}
}

// WithTracer forwards trace events to t in addition to the agent's own trace.
func WithTracer(t Tracer) QueryOption {
	return func(o *queryOptions) {
		o.Tracer = t
	}
}

func (o queryOptions) generateOptions(systemPrompts ...string) []ai.GenerateOption {
	opts := []ai.GenerateOption{
		ai.WithSystemPrompts(append(systemPrompts, o.SystemPrompts...)...),
		ai.WithTemperature(0),
	}
	if o.Model != "" {
		opts = append(opts, ai.WithModel(o.Model))
	}
	if o.Thinking != "" {
		opts = append(opts, ai.WithThinking(o.Thinking))
	}
	return opts
}
