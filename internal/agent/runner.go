package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/miniclaw/miniclaw/internal/bus"
	"github.com/miniclaw/miniclaw/internal/provider"
	"github.com/miniclaw/miniclaw/internal/session"
	"github.com/miniclaw/miniclaw/internal/timeline"
	"github.com/miniclaw/miniclaw/internal/trace"
)

// Replies produced by the command router.
const (
	HistoryClearedMessage = "✅ Conversation history cleared"
	NoHistoryMessage      = "ℹ️ No conversation history"
	ErrorReplyPrefix      = "❌ Error while processing message: "
)

const welcomeMessage = `👋 Hi! I'm miniclaw, a minimal assistant that works inside a workspace directory.

I can:
📁 read, write and list files
💻 run shell commands
🤔 answer questions

Just send me a message!

Commands:
/start - show this message
/clear - clear conversation history
/status - show session status`

// TurnPublisher exports a summary of every finished turn.
type TurnPublisher interface {
	PublishAsync(s trace.TurnSummary)
}

// RunnerOptions wires the runner to its collaborators. Timeline and Trace
// are optional.
type RunnerOptions struct {
	Loop     *Loop
	Sessions *session.Store
	Bus      *bus.MessageBus
	Timeline *timeline.TimelineService
	Trace    TurnPublisher
}

// Reply is the single text outcome of one inbound message.
type Reply struct {
	Content string
	TurnID  string
	TraceID string
	Command bool
	Failed  bool
}

// Runner turns inbound messages into replies. Turns of the same session run
// one at a time and in arrival order; different sessions run concurrently.
type Runner struct {
	loop     *Loop
	sessions *session.Store
	bus      *bus.MessageBus
	timeline *timeline.TimelineService
	trace    TurnPublisher

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	queueMu sync.Mutex
	queues  map[string][]*bus.InboundMessage
	wg      sync.WaitGroup
}

// NewRunner creates a turn runner.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{
		loop:     opts.Loop,
		sessions: opts.Sessions,
		bus:      opts.Bus,
		timeline: opts.Timeline,
		trace:    opts.Trace,
		locks:    make(map[string]*sync.Mutex),
		queues:   make(map[string][]*bus.InboundMessage),
	}
}

// Run consumes inbound messages from the bus and publishes the replies.
// Blocks until ctx is cancelled, then waits for in-flight turns.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("Turn runner started", "model", r.loop.Model(), "max_iterations", r.loop.MaxIterations())
	for {
		msg, err := r.bus.ConsumeInbound(ctx)
		if err != nil {
			r.wg.Wait()
			slog.Info("Turn runner stopped")
			return err
		}
		r.enqueue(ctx, msg)
	}
}

func (r *Runner) enqueue(ctx context.Context, msg *bus.InboundMessage) {
	key := msg.SessionKey()
	r.queueMu.Lock()
	pending, active := r.queues[key]
	r.queues[key] = append(pending, msg)
	r.queueMu.Unlock()

	if !active {
		r.wg.Add(1)
		go r.drain(ctx, key)
	}
}

// drain processes one session's queue until it is empty.
func (r *Runner) drain(ctx context.Context, key string) {
	defer r.wg.Done()
	for {
		r.queueMu.Lock()
		pending := r.queues[key]
		if len(pending) == 0 {
			delete(r.queues, key)
			r.queueMu.Unlock()
			return
		}
		msg := pending[0]
		r.queues[key] = pending[1:]
		r.queueMu.Unlock()

		reply := r.handle(ctx, msg, true)
		if reply.Content == "" {
			continue
		}
		r.bus.PublishOutbound(&bus.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			TraceID: reply.TraceID,
			TurnID:  reply.TurnID,
			Content: reply.Content,
		})
	}
}

// Handle processes one message synchronously and returns its reply. The reply
// is not published; turns handled this way are not retried for delivery.
func (r *Runner) Handle(ctx context.Context, msg *bus.InboundMessage) Reply {
	return r.handle(ctx, msg, false)
}

func (r *Runner) handle(ctx context.Context, msg *bus.InboundMessage, deliver bool) Reply {
	key := msg.SessionKey()
	unlock := r.lock(key)
	defer unlock()

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return Reply{}
	}
	if cmd, ok := parseCommand(text); ok {
		slog.Info("Command received", "session", key, "command", cmd)
		return Reply{Content: r.command(cmd, msg), TraceID: msg.TraceID, Command: true}
	}

	slog.Info("Message received", "session", key, "sender", msg.SenderID, "preview", truncateStr(text, 50))
	return r.turn(ctx, msg, text, deliver)
}

func (r *Runner) turn(ctx context.Context, msg *bus.InboundMessage, text string, deliver bool) Reply {
	key := msg.SessionKey()
	stored := r.sessions.Load(key)
	history := make([]provider.Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, provider.Message{Role: m.Role, Content: m.Content})
	}

	reply := Reply{TraceID: msg.TraceID}
	if r.timeline != nil {
		t, err := r.timeline.CreateTurn(&timeline.Turn{
			TraceID:    msg.TraceID,
			SessionKey: key,
			Channel:    msg.Channel,
			ChatID:     msg.ChatID,
			SenderID:   msg.SenderID,
			Model:      r.loop.Model(),
			ContentIn:  text,
		})
		if err != nil {
			slog.Warn("Failed to record turn", "session", key, "error", err)
		} else {
			reply.TurnID = t.TurnID
			reply.TraceID = t.TraceID
		}
	}

	rec := newTurnRecorder(r.timeline, reply.TurnID)
	started := time.Now()
	res, err := r.loop.Turn(ctx, text, history, rec)

	summary := trace.TurnSummary{
		TraceID:    reply.TraceID,
		TurnID:     reply.TurnID,
		SessionKey: key,
		Channel:    msg.Channel,
		ChatID:     msg.ChatID,
		Model:      r.loop.Model(),
		Tools:      rec.toolSummaries(),
		StartedAt:  started,
		DurationMS: time.Since(started).Milliseconds(),
	}
	outcome := timeline.TurnOutcome{}

	if err != nil {
		// History is left untouched so the failed exchange is not replayed.
		reply.Content = ErrorReplyPrefix + err.Error()
		reply.Failed = true
		slog.Error("Turn failed", "session", key, "error", err)

		outcome.Status = timeline.TurnStatusFailed
		outcome.ContentOut = reply.Content
		outcome.ErrorText = err.Error()
		summary.Status = timeline.TurnStatusFailed
		summary.Error = err.Error()
	} else {
		reply.Content = res.Content
		if err := r.sessions.Append(key,
			session.Message{Role: provider.RoleUser, Content: text},
			session.Message{Role: provider.RoleAssistant, Content: res.Content},
		); err != nil {
			slog.Error("Failed to save history", "session", key, "error", err)
		}
		slog.Info("Turn completed", "session", key, "iterations", res.Iterations, "exhausted", res.Exhausted, "preview", truncateStr(res.Content, 50))

		outcome = timeline.TurnOutcome{
			Status:           timeline.TurnStatusCompleted,
			ContentOut:       res.Content,
			Iterations:       res.Iterations,
			Exhausted:        res.Exhausted,
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.TotalTokens,
		}
		summary.Status = timeline.TurnStatusCompleted
		summary.Iterations = res.Iterations
		summary.Exhausted = res.Exhausted
		summary.PromptTokens = res.Usage.PromptTokens
		summary.CompletionTokens = res.Usage.CompletionTokens
		summary.TotalTokens = res.Usage.TotalTokens
	}

	if r.timeline != nil && reply.TurnID != "" {
		if err := r.timeline.FinishTurn(reply.TurnID, outcome); err != nil {
			slog.Warn("Failed to finish turn record", "turn_id", reply.TurnID, "error", err)
		}
		if !deliver {
			_ = r.timeline.SetDeliveryStatus(reply.TurnID, timeline.DeliverySkipped)
		}
	}
	if r.trace != nil {
		r.trace.PublishAsync(summary)
	}
	return reply
}

func (r *Runner) command(cmd string, msg *bus.InboundMessage) string {
	key := msg.SessionKey()
	switch cmd {
	case "start", "help":
		return welcomeMessage
	case "clear":
		existed, err := r.sessions.Delete(key)
		if err != nil {
			slog.Error("Failed to clear history", "session", key, "error", err)
			return ErrorReplyPrefix + err.Error()
		}
		if !existed {
			return NoHistoryMessage
		}
		slog.Info("History cleared", "session", key)
		return HistoryClearedMessage
	case "status":
		st := r.sessions.Stats(key)
		return fmt.Sprintf("📊 Status\n\n"+
			"🆔 Chat ID: %s\n"+
			"🤖 Model: %s\n"+
			"💬 History: %d messages\n"+
			"  - user: %d\n"+
			"  - assistant: %d\n"+
			"📂 Workspace: %s\n"+
			"🔧 Max iterations: %d",
			msg.ChatID, r.loop.Model(), st.Total, st.User, st.Assistant,
			r.loop.Workspace(), r.loop.MaxIterations())
	default:
		return fmt.Sprintf("❓ Unknown command: /%s\n\nSend /help to see the available commands.", cmd)
	}
}

// parseCommand recognizes "/name" and "/name@bot" as the first word. Text
// such as "/etc/hosts" is not a command.
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(word, '@'); at >= 0 {
		word = word[:at]
	}
	if word == "" || strings.ContainsAny(word, "/.\\") {
		return "", false
	}
	return strings.ToLower(word), true
}

func (r *Runner) lock(key string) func() {
	r.locksMu.Lock()
	mu, ok := r.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[key] = mu
	}
	r.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}
