// Package agent implements the tool-calling loop and the turn runner that
// connects it to chat channels.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/miniclaw/miniclaw/internal/provider"
	"github.com/miniclaw/miniclaw/internal/tools"
)

// DefaultMaxIterations bounds the completion requests of a single turn.
const DefaultMaxIterations = 10

const (
	// EmptyResponsePlaceholder replaces a final answer with no content.
	EmptyResponsePlaceholder = "(no response content)"
	// IterationExhaustedMessage is returned when the iteration ceiling is hit.
	IterationExhaustedMessage = "⚠️ Reached the maximum number of iterations; the task may be incomplete."
)

// Observer is told about every completion and tool execution of a turn.
// Observers never influence the loop.
type Observer interface {
	OnCompletion(ev CompletionEvent)
	OnToolCall(ev ToolEvent)
}

// CompletionEvent describes one completion request.
type CompletionEvent struct {
	Iteration    int
	Model        string
	Started      time.Time
	Duration     time.Duration
	FinishReason string
	Usage        provider.Usage
	ToolCalls    []string
	Err          error
}

// ToolEvent describes one tool call.
type ToolEvent struct {
	Iteration int
	CallID    string
	Name      string
	Arguments string
	Stage     tools.ParseStage
	Result    string
	Started   time.Time
	Duration  time.Duration
}

// LoopOptions contains configuration for the agent loop.
type LoopOptions struct {
	Provider      provider.LLMProvider
	Executor      *tools.Executor
	Workspace     string
	Model         string
	MaxIterations int
	MaxTokens     int
	Temperature   float64
}

// Loop drives the bounded completion/tool-execution cycle of one turn. It
// holds no per-conversation state; callers serialize turns per conversation.
type Loop struct {
	provider       provider.LLMProvider
	executor       *tools.Executor
	contextBuilder *ContextBuilder
	toolDefs       []provider.ToolDefinition
	model          string
	maxIterations  int
	maxTokens      int
	temperature    float64
}

// NewLoop creates a new agent loop.
func NewLoop(opts LoopOptions) *Loop {
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	executor := opts.Executor
	if executor == nil {
		executor = tools.NewExecutor(opts.Workspace, 0)
	}
	workspace := opts.Workspace
	if workspace == "" {
		workspace = executor.Workspace
	}
	model := opts.Model
	if model == "" && opts.Provider != nil {
		model = opts.Provider.DefaultModel()
	}
	return &Loop{
		provider:       opts.Provider,
		executor:       executor,
		contextBuilder: NewContextBuilder(workspace),
		toolDefs:       buildToolDefinitions(),
		model:          model,
		maxIterations:  maxIter,
		maxTokens:      opts.MaxTokens,
		temperature:    opts.Temperature,
	}
}

// Model returns the model the loop requests completions from.
func (l *Loop) Model() string { return l.model }

// MaxIterations returns the iteration ceiling.
func (l *Loop) MaxIterations() int { return l.maxIterations }

// Workspace returns the root the tools operate on.
func (l *Loop) Workspace() string { return l.executor.Workspace }

// Result is the outcome of one turn.
type Result struct {
	Content    string
	Iterations int
	Exhausted  bool
	Usage      provider.Usage
}

// Process runs one turn and returns the final answer. A failed completion
// aborts the turn with a *provider.CompletionError.
func (l *Loop) Process(ctx context.Context, userMessage string, history []provider.Message) (string, error) {
	res, err := l.Turn(ctx, userMessage, history, nil)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// Turn is Process with an optional observer and the full result.
func (l *Loop) Turn(ctx context.Context, userMessage string, history []provider.Message, obs Observer) (*Result, error) {
	messages := l.contextBuilder.BuildMessages(history, userMessage)
	res := &Result{}

	for i := 1; i <= l.maxIterations; i++ {
		res.Iterations = i

		start := time.Now()
		resp, err := l.provider.Chat(ctx, &provider.ChatRequest{
			Messages:    messages,
			Tools:       l.toolDefs,
			Model:       l.model,
			MaxTokens:   l.maxTokens,
			Temperature: l.temperature,
		})
		ev := CompletionEvent{Iteration: i, Model: l.model, Started: start, Duration: time.Since(start), Err: err}
		if err != nil {
			notify(obs, func(o Observer) { o.OnCompletion(ev) })
			slog.Error("Completion failed", "iteration", i, "error", err)
			return nil, asCompletionError(err)
		}

		ev.FinishReason = resp.FinishReason
		ev.Usage = resp.Usage
		for _, tc := range resp.ToolCalls {
			ev.ToolCalls = append(ev.ToolCalls, tc.Name)
		}
		notify(obs, func(o Observer) { o.OnCompletion(ev) })
		addUsage(&res.Usage, resp.Usage)
		slog.Debug("Completion received", "iteration", i, "tool_calls", len(resp.ToolCalls), "tokens", resp.Usage.TotalTokens)

		if len(resp.ToolCalls) == 0 {
			res.Content = resp.Content
			if res.Content == "" {
				res.Content = EmptyResponsePlaceholder
			}
			return res, nil
		}

		messages = append(messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			toolStart := time.Now()
			parsed := tools.ParseArguments(tc.Name, tc.Arguments)

			var result string
			if parsed.Err != nil {
				slog.Warn("Tool arguments unreadable", "tool", tc.Name, "error", parsed.Err)
				result = parsed.Err.Message()
			} else {
				if parsed.Stage == tools.StageLenient {
					slog.Debug("Tool arguments recovered by lenient parse", "tool", tc.Name)
				}
				result = l.executor.Execute(ctx, tc.Name, parsed.Args)
			}

			tev := ToolEvent{
				Iteration: i,
				CallID:    tc.ID,
				Name:      tc.Name,
				Arguments: tc.Arguments,
				Stage:     parsed.Stage,
				Result:    result,
				Started:   toolStart,
				Duration:  time.Since(toolStart),
			}
			notify(obs, func(o Observer) { o.OnToolCall(tev) })
			slog.Info("Tool call", "iteration", i, "tool", tc.Name, "result", truncateStr(result, 120))

			messages = append(messages, provider.Message{
				Role:       provider.RoleTool,
				Content:    result,
				ToolCallID: tc.ID,
			})
		}
	}

	slog.Warn("Iteration ceiling reached", "max_iterations", l.maxIterations)
	res.Content = IterationExhaustedMessage
	res.Exhausted = true
	return res, nil
}

func notify(obs Observer, fn func(Observer)) {
	if obs != nil {
		fn(obs)
	}
}

func asCompletionError(err error) error {
	var ce *provider.CompletionError
	if errors.As(err, &ce) {
		return err
	}
	return &provider.CompletionError{Message: "completion failed", Cause: err}
}

func addUsage(total *provider.Usage, u provider.Usage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

func buildToolDefinitions() []provider.ToolDefinition {
	decls := tools.Declarations()
	defs := make([]provider.ToolDefinition, 0, len(decls))
	for _, d := range decls {
		defs = append(defs, provider.ToolDefinition{
			Type: "function",
			Function: provider.FunctionDef{
				Name:        d.Name(),
				Description: d.Description,
				Parameters:  d.Schema(),
			},
		})
	}
	return defs
}

// truncateStr returns s trimmed to maxLen runes.
func truncateStr(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
