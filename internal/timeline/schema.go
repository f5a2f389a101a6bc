package timeline

import (
	"time"
)

// Turn is one processed user message and the agent's reply.
type Turn struct {
	ID               int64      `json:"id"`
	TurnID           string     `json:"turn_id"`
	TraceID          string     `json:"trace_id,omitempty"`
	SessionKey       string     `json:"session_key"`
	Channel          string     `json:"channel"`
	ChatID           string     `json:"chat_id"`
	SenderID         string     `json:"sender_id,omitempty"`
	Model            string     `json:"model,omitempty"`
	Status           string     `json:"status"`
	ContentIn        string     `json:"content_in,omitempty"`
	ContentOut       string     `json:"content_out,omitempty"`
	ErrorText        string     `json:"error_text,omitempty"`
	Iterations       int        `json:"iterations"`
	Exhausted        bool       `json:"exhausted"`
	PromptTokens     int        `json:"prompt_tokens"`
	CompletionTokens int        `json:"completion_tokens"`
	TotalTokens      int        `json:"total_tokens"`
	DeliveryStatus   string     `json:"delivery_status"`
	DeliveryAttempts int        `json:"delivery_attempts"`
	DeliveryNextAt   *time.Time `json:"delivery_next_at,omitempty"`
	PartsSent        int        `json:"parts_sent"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Span is one completion request or tool call inside a turn.
type Span struct {
	ID         int64     `json:"id"`
	TurnID     string    `json:"turn_id"`
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	Iteration  int       `json:"iteration"`
	Stage      string    `json:"stage,omitempty"` // argument parse stage for tool spans
	Detail     string    `json:"detail,omitempty"`
	ErrorText  string    `json:"error_text,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// TurnFilter narrows ListTurns.
type TurnFilter struct {
	SessionKey string
	Channel    string
	Status     string
	Limit      int
	Offset     int
}

// Summary aggregates all recorded turns.
type Summary struct {
	Turns           int `json:"turns"`
	Completed       int `json:"completed"`
	Failed          int `json:"failed"`
	Exhausted       int `json:"exhausted"`
	PendingDelivery int `json:"pending_delivery"`
	FailedDelivery  int `json:"failed_delivery"`
	TotalTokens     int `json:"total_tokens"`
	ToolCalls       int `json:"tool_calls"`
	CompletionCalls int `json:"completion_calls"`
}

const (
	TurnStatusRunning   = "running"
	TurnStatusCompleted = "completed"
	TurnStatusFailed    = "failed"

	DeliveryPending = "pending"
	DeliverySent    = "sent"
	DeliveryRetry   = "retry"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped"

	SpanKindLLM  = "llm"
	SpanKindTool = "tool"
)

const Schema = `
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id TEXT UNIQUE NOT NULL,
	trace_id TEXT,
	session_key TEXT NOT NULL,
	channel TEXT NOT NULL,
	chat_id TEXT NOT NULL,
	sender_id TEXT,
	model TEXT,
	status TEXT NOT NULL DEFAULT 'running',
	content_in TEXT,
	content_out TEXT,
	error_text TEXT,
	iterations INTEGER NOT NULL DEFAULT 0,
	exhausted BOOLEAN NOT NULL DEFAULT 0,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	delivery_status TEXT NOT NULL DEFAULT 'pending',
	delivery_attempts INTEGER NOT NULL DEFAULT 0,
	delivery_next_at DATETIME,
	parts_sent INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_key);
CREATE INDEX IF NOT EXISTS idx_turns_status ON turns(status);
CREATE INDEX IF NOT EXISTS idx_turns_trace ON turns(trace_id);
CREATE INDEX IF NOT EXISTS idx_turns_delivery ON turns(delivery_status, delivery_next_at);

CREATE TABLE IF NOT EXISTS spans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	turn_id TEXT NOT NULL REFERENCES turns(turn_id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	iteration INTEGER NOT NULL DEFAULT 0,
	stage TEXT,
	detail TEXT,
	error_text TEXT,
	started_at DATETIME,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_spans_turn ON spans(turn_id);
`
