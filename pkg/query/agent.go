package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/policygraph/internal/metrics"
	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	"github.com/OFFIS-RIT/policygraph/pkg/store"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNoStore       = errors.New("no graph store")
)

const (
	// NoInformationAnswer is given when nothing in the graph was touched.
	NoInformationAnswer = "The policy graph does not contain information about this."

	synthesizedEntities = 25
	synthesizedOutput   = 1500
)

// Agent answers questions by letting a chat oracle query a graph store
// through the graph tools.
type Agent struct {
	oracle  ai.ChatOracle
	options queryOptions
}

// NewAgent creates an Agent. Unless overridden the agent allows
// DefaultMaxTurns turns and retries transient oracle failures on
// util.DefaultBackoff.
//
// Example:
//
//	agent := query.NewAgent(aiClient, query.WithMaxTurns(10))
//	resp, err := agent.Ask(ctx, "Who approves travel to high risk countries?", s)
func NewAgent(oracle ai.ChatOracle, opts ...QueryOption) *Agent {
	a := &Agent{oracle: oracle}
	for _, o := range opts {
		o(&a.options)
	}
	if a.options.MaxTurns <= 0 {
		a.options.MaxTurns = DefaultMaxTurns
	}
	if a.options.Backoff.MaxAttempts == 0 {
		a.options.Backoff = util.DefaultBackoff()
	}
	if a.options.Backoff.Retryable == nil {
		a.options.Backoff.Retryable = ai.IsTransient
	}
	return a
}

// run holds the state of one question.
type run struct {
	trace      *QueryTrace
	tracer     Tracer
	messages   []ai.ChatMessage
	invocation []common.ToolInvocation
	lastOutput string
}

// Ask answers question from the graph in s. The loop ends when the oracle
// replies without tool calls or when the turn ceiling is reached, in which
// case the oracle is asked once more, without tools, to answer from what it
// has gathered. Oracle failures that survive the retries end the loop the
// same way. Errors are only returned for a missing question or store.
func (a *Agent) Ask(ctx context.Context, question string, s *store.Store) (common.AgentResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return common.AgentResponse{}, ErrEmptyQuestion
	}
	if s == nil {
		return common.AgentResponse{}, ErrNoStore
	}

	r := &run{
		trace:    NewQueryTrace(),
		messages: []ai.ChatMessage{{Role: "user", Message: question}},
	}
	r.tracer = MultiTracer{r.trace, a.options.Tracer}

	tools := Tools(s, r.tracer)
	handlers := make(map[string]ai.ToolHandler, len(tools))
	for _, t := range tools {
		handlers[t.Name] = t.Handler
	}

	logger.Info("[Agent] Question", "question", util.Truncate(question, 120), "max_turns", a.options.MaxTurns)

	for turn := 1; turn < a.options.MaxTurns; turn++ {
		resp, err := a.chat(ctx, r.messages, tools)
		if err != nil {
			logger.Warn("[Agent] Oracle failed, giving up on the loop", "turn", turn, "err", err)
			return a.finish(r, s, turn, common.StateForcedAnswer, ""), nil
		}

		if len(resp.ToolCalls) == 0 {
			if answer := strings.TrimSpace(resp.Content); answer != "" {
				return a.finish(r, s, turn, common.StateDone, answer), nil
			}
			logger.Debug("[Agent] Empty reply without tool calls", "turn", turn)
			r.messages = append(r.messages,
				ai.ChatMessage{Role: "assistant", Message: resp.Content},
				ai.ChatMessage{Role: "user", Message: "Answer the question or call a tool."},
			)
			continue
		}

		r.messages = append(r.messages, ai.ChatMessage{Role: "assistant", Message: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			out := r.execute(ctx, turn, call, handlers)
			r.messages = append(r.messages, ai.ChatMessage{Role: "tool", Message: out, ToolCallID: call.ID})
		}
	}

	return a.forceAnswer(ctx, r, s), nil
}

// chat performs one oracle round trip with retries.
func (a *Agent) chat(ctx context.Context, msgs []ai.ChatMessage, tools []ai.Tool) (ai.ChatTurn, error) {
	backoff := a.options.Backoff
	backoff.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.OracleRetries.WithLabelValues("agent").Inc()
		logger.Warn("[Agent] Retrying oracle call", "attempt", attempt, "delay", delay, "err", err)
	}
	opts := a.options.generateOptions(ai.AgentSystemPrompt)
	turn, _, err := util.RetryWithBackoff(ctx, backoff, func(ctx context.Context) (ai.ChatTurn, error) {
		return a.oracle.GenerateChatTurn(ctx, msgs, tools, opts...)
	})
	return turn, err
}

// execute runs one tool call. Failures become the tool result so the oracle
// can correct itself on the next turn.
func (r *run) execute(ctx context.Context, turn int, call ai.ToolCall, handlers map[string]ai.ToolHandler) string {
	inv := common.ToolInvocation{Turn: turn, Name: call.Name, Arguments: call.Arguments}
	start := time.Now()

	var out string
	handler, ok := handlers[call.Name]
	if !ok {
		out = fmt.Sprintf("Unknown tool: %s", call.Name)
		inv.Error = out
	} else {
		res, err := handler(ctx, call.Arguments)
		if err != nil {
			out = "Error: " + err.Error()
			inv.Error = err.Error()
		} else {
			out = res
		}
	}

	var toolErr error
	if inv.Error != "" {
		toolErr = errors.New(inv.Error)
		logger.Debug("[Agent] Tool failed", "tool", call.Name, "err", inv.Error)
	}
	RecordToolCall(r.tracer, call.Name, call.Arguments, time.Since(start).Milliseconds(), toolErr)

	r.invocation = append(r.invocation, inv)
	r.lastOutput = out
	return out
}

// forceAnswer spends the last permitted turn on an answer without tools.
func (a *Agent) forceAnswer(ctx context.Context, r *run, s *store.Store) common.AgentResponse {
	msgs := append(r.messages, ai.ChatMessage{Role: "user", Message: ai.ForcedAnswerPrompt})
	resp, err := a.chat(ctx, msgs, nil)
	if err != nil {
		logger.Warn("[Agent] Forced answer failed", "err", err)
		return a.finish(r, s, a.options.MaxTurns, common.StateForcedAnswer, "")
	}
	return a.finish(r, s, a.options.MaxTurns, common.StateForcedAnswer, strings.TrimSpace(resp.Content))
}

func (a *Agent) finish(r *run, s *store.Store, turns int, state common.AgentState, answer string) common.AgentResponse {
	snap := r.trace.Snapshot()
	if answer == "" {
		answer = synthesize(s, snap.QueriedEntityIDs, r.lastOutput)
		state = common.StateForcedAnswer
	}

	metrics.AgentTurns.Observe(float64(turns))
	metrics.AgentAnswers.WithLabelValues(string(state)).Inc()
	logger.Info("[Agent] Answered", "state", state, "turns", turns, "tool_calls", len(r.invocation), "entities", len(snap.QueriedEntityIDs))

	calls := r.invocation
	if calls == nil {
		calls = []common.ToolInvocation{}
	}
	return common.AgentResponse{
		Answer:             answer,
		ReferencedEntities: snap.QueriedEntityIDs,
		TurnCount:          turns,
		State:              state,
		Forced:             state == common.StateForcedAnswer,
		ToolCalls:          calls,
	}
}

// synthesize builds an answer from the gathered evidence when the oracle
// produced none.
func synthesize(s *store.Store, ids []string, lastOutput string) string {
	if len(ids) == 0 {
		return NoInformationAnswer
	}

	var sb strings.Builder
	sb.WriteString("No final answer was produced within the query budget. Entities consulted:\n")
	for i, id := range ids {
		if i == synthesizedEntities {
			fmt.Fprintf(&sb, "- ... and %d more\n", len(ids)-i)
			break
		}
		e, err := s.Entity(id)
		if err != nil {
			fmt.Fprintf(&sb, "- %s\n", id)
			continue
		}
		fmt.Fprintf(&sb, "- %s [%s]: %s\n", e.ID, e.Type, e.Name)
	}
	if lastOutput = strings.TrimSpace(lastOutput); lastOutput != "" {
		sb.WriteString("\nLast query result:\n")
		sb.WriteString(util.Truncate(lastOutput, synthesizedOutput))
	}
	return strings.TrimRight(sb.String(), "\n")
}
