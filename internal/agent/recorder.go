package agent

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/miniclaw/miniclaw/internal/timeline"
	"github.com/miniclaw/miniclaw/internal/trace"
)

const spanDetailLimit = 2000

// turnRecorder turns loop events into timeline spans and collects the tool
// summary published with the turn trace.
type turnRecorder struct {
	timeline *timeline.TimelineService
	turnID   string

	mu    sync.Mutex
	tools []trace.ToolSummary
}

func newTurnRecorder(tl *timeline.TimelineService, turnID string) *turnRecorder {
	return &turnRecorder{timeline: tl, turnID: turnID}
}

func (r *turnRecorder) OnCompletion(ev CompletionEvent) {
	if r.timeline == nil || r.turnID == "" {
		return
	}
	detail := fmt.Sprintf("finish=%s tokens=%d", ev.FinishReason, ev.Usage.TotalTokens)
	if len(ev.ToolCalls) > 0 {
		detail += " tool_calls=" + strings.Join(ev.ToolCalls, ",")
	}
	span := &timeline.Span{
		TurnID:     r.turnID,
		Kind:       timeline.SpanKindLLM,
		Name:       ev.Model,
		Iteration:  ev.Iteration,
		Detail:     detail,
		StartedAt:  ev.Started,
		DurationMS: ev.Duration.Milliseconds(),
	}
	if ev.Err != nil {
		span.ErrorText = ev.Err.Error()
	}
	if err := r.timeline.AddSpan(span); err != nil {
		slog.Warn("Failed to record completion span", "turn_id", r.turnID, "error", err)
	}
}

func (r *turnRecorder) OnToolCall(ev ToolEvent) {
	r.mu.Lock()
	r.tools = append(r.tools, trace.ToolSummary{
		Name:       ev.Name,
		Stage:      ev.Stage.String(),
		Iteration:  ev.Iteration,
		DurationMS: ev.Duration.Milliseconds(),
	})
	r.mu.Unlock()

	if r.timeline == nil || r.turnID == "" {
		return
	}
	span := &timeline.Span{
		TurnID:     r.turnID,
		Kind:       timeline.SpanKindTool,
		Name:       ev.Name,
		Iteration:  ev.Iteration,
		Stage:      ev.Stage.String(),
		Detail:     truncateStr(ev.Result, spanDetailLimit),
		StartedAt:  ev.Started,
		DurationMS: ev.Duration.Milliseconds(),
	}
	if err := r.timeline.AddSpan(span); err != nil {
		slog.Warn("Failed to record tool span", "turn_id", r.turnID, "error", err)
	}
}

func (r *turnRecorder) toolSummaries() []trace.ToolSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]trace.ToolSummary(nil), r.tools...)
}
