// Package trace exports turn summaries to Kafka.
package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultTimeout bounds one publish.
const DefaultTimeout = 5 * time.Second

// ToolSummary is one tool call inside a turn.
type ToolSummary struct {
	Name       string `json:"name"`
	Stage      string `json:"stage"`
	Iteration  int    `json:"iteration"`
	DurationMS int64  `json:"duration_ms"`
}

// TurnSummary is the record published per turn.
type TurnSummary struct {
	TraceID          string        `json:"trace_id"`
	TurnID           string        `json:"turn_id,omitempty"`
	SessionKey       string        `json:"session_key"`
	Channel          string        `json:"channel"`
	ChatID           string        `json:"chat_id"`
	Model            string        `json:"model"`
	Status           string        `json:"status"`
	Iterations       int           `json:"iterations"`
	Exhausted        bool          `json:"exhausted"`
	Tools            []ToolSummary `json:"tools,omitempty"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	DurationMS       int64         `json:"duration_ms"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes turn summaries to a Kafka topic keyed by session key.
type Publisher struct {
	w       messageWriter
	topic   string
	timeout time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string, sec Security) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("trace: no brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("trace: no topic configured")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	tr, err := sec.transport(DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	if tr != nil {
		w.Transport = tr
	}
	return &Publisher{w: w, topic: topic, timeout: DefaultTimeout}, nil
}

// Topic returns the destination topic.
func (p *Publisher) Topic() string { return p.topic }

// Publish writes one summary. It gives up after the publisher timeout.
func (p *Publisher) Publish(ctx context.Context, s TurnSummary) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal turn summary: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(s.SessionKey),
		Value: payload,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "trace_id", Value: []byte(s.TraceID)},
			{Key: "status", Value: []byte(s.Status)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish turn summary: %w", err)
	}
	slog.Debug("Turn summary published", "topic", p.topic, "trace_id", s.TraceID)
	return nil
}

// PublishAsync publishes in the background and only logs failures.
// Summaries handed in after Close are dropped.
func (p *Publisher) PublishAsync(s TurnSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		slog.Warn("Trace publisher closed, dropping summary", "trace_id", s.TraceID)
		return
	}
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		if err := p.Publish(context.Background(), s); err != nil {
			slog.Warn("Trace publish failed", "trace_id", s.TraceID, "error", err)
		}
	}()
}

// Close waits for in-flight publishes, then closes the writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.inflight.Wait()
	return p.w.Close()
}
