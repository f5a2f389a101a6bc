package agent

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/miniclaw/miniclaw/internal/bus"
	"github.com/miniclaw/miniclaw/internal/timeline"
)

func newTestTimeline(t *testing.T) *timeline.TimelineService {
	t.Helper()
	svc, err := timeline.NewTimelineService(filepath.Join(t.TempDir(), "timeline.db"))
	if err != nil {
		t.Fatalf("failed to create timeline service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func completedTurn(t *testing.T, tl *timeline.TimelineService) *timeline.Turn {
	t.Helper()
	turn, err := tl.CreateTurn(&timeline.Turn{
		SessionKey: "whatsapp:123@s.whatsapp.net",
		Channel:    "whatsapp",
		ChatID:     "123@s.whatsapp.net",
		ContentIn:  "hello",
	})
	if err != nil {
		t.Fatalf("create turn: %v", err)
	}
	if err := tl.FinishTurn(turn.TurnID, timeline.TurnOutcome{Status: timeline.TurnStatusCompleted, ContentOut: "response"}); err != nil {
		t.Fatalf("finish turn: %v", err)
	}
	return turn
}

func TestDeliveryReportSuccessMarksSent(t *testing.T) {
	tl := newTestTimeline(t)
	worker := NewDeliveryWorker(tl, bus.NewMessageBus())
	turn := completedTurn(t, tl)

	worker.Report(&bus.OutboundMessage{TurnID: turn.TurnID}, nil)

	got, _ := tl.GetTurn(turn.TurnID)
	if got.DeliveryStatus != timeline.DeliverySent || got.DeliveryAttempts != 1 {
		t.Fatalf("expected sent after one attempt, got %s/%d", got.DeliveryStatus, got.DeliveryAttempts)
	}
}

func TestDeliveryReportFailureSchedulesRetry(t *testing.T) {
	tl := newTestTimeline(t)
	msgBus := bus.NewMessageBus()
	worker := NewDeliveryWorker(tl, msgBus)
	turn := completedTurn(t, tl)

	worker.Report(&bus.OutboundMessage{TurnID: turn.TurnID}, errors.New("send failed"))

	got, _ := tl.GetTurn(turn.TurnID)
	if got.DeliveryStatus != timeline.DeliveryRetry || got.DeliveryNextAt == nil {
		t.Fatalf("expected retry with next_at, got %+v", got)
	}
	if !got.DeliveryNextAt.After(time.Now()) {
		t.Fatalf("expected retry in the future, got %v", got.DeliveryNextAt)
	}

	// Make the retry due and poll.
	past := time.Now().Add(-time.Second)
	tl.UpdateDelivery(turn.TurnID, timeline.DeliveryRetry, &past)
	worker.poll()

	if msgBus.OutboundSize() != 1 {
		t.Fatalf("expected one re-published message, got %d", msgBus.OutboundSize())
	}
	got, _ = tl.GetTurn(turn.TurnID)
	if got.DeliveryStatus != timeline.DeliveryPending {
		t.Fatalf("expected pending while in flight, got %s", got.DeliveryStatus)
	}
}

func TestDeliveryMaxRetryMarksFailed(t *testing.T) {
	tl := newTestTimeline(t)
	worker := NewDeliveryWorker(tl, bus.NewMessageBus())
	turn := completedTurn(t, tl)

	sendErr := errors.New("still down")
	for i := 0; i < worker.maxRetry; i++ {
		worker.Report(&bus.OutboundMessage{TurnID: turn.TurnID}, sendErr)
	}

	got, _ := tl.GetTurn(turn.TurnID)
	if got.DeliveryStatus != timeline.DeliveryFailed {
		t.Fatalf("expected failed after max retries, got %s (attempts %d)", got.DeliveryStatus, got.DeliveryAttempts)
	}
}

func TestDeliveryBackoff(t *testing.T) {
	now := time.Now()
	if d := DeliveryBackoff(0).Sub(now); d < 29*time.Second || d > 31*time.Second {
		t.Fatalf("expected ~30s for first retry, got %v", d)
	}
	if d := DeliveryBackoff(10).Sub(now); d > 5*time.Minute+time.Second {
		t.Fatalf("expected backoff capped at 5m, got %v", d)
	}
}

func TestDeliveryRetryResumesSplitReply(t *testing.T) {
	tl := newTestTimeline(t)
	msgBus := bus.NewMessageBus()
	worker := NewDeliveryWorker(tl, msgBus)
	turn := completedTurn(t, tl)

	sendErr := &bus.PartialDeliveryError{Sent: 2, Total: 3, Err: errors.New("rate limited")}
	worker.Report(&bus.OutboundMessage{TurnID: turn.TurnID}, sendErr)

	got, _ := tl.GetTurn(turn.TurnID)
	if got.PartsSent != 2 || got.DeliveryStatus != timeline.DeliveryRetry {
		t.Fatalf("expected 2 parts recorded with retry, got %d/%s", got.PartsSent, got.DeliveryStatus)
	}

	resent := make(chan *bus.OutboundMessage, 1)
	msgBus.Subscribe("whatsapp", func(ctx context.Context, msg *bus.OutboundMessage) error {
		resent <- msg
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go msgBus.DispatchOutbound(ctx)

	past := time.Now().Add(-time.Second)
	tl.UpdateDelivery(turn.TurnID, timeline.DeliveryRetry, &past)
	worker.poll()

	var msg *bus.OutboundMessage
	select {
	case msg = <-resent:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resend")
	}
	if msg.PartsSent != 2 || msg.Content != "response" {
		t.Fatalf("expected resend from part 3, got %+v", msg)
	}
}
