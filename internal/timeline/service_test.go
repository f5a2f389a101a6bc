package timeline

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestService(t *testing.T) *TimelineService {
	t.Helper()
	svc, err := NewTimelineService(filepath.Join(t.TempDir(), "timeline.db"))
	if err != nil {
		t.Fatalf("failed to create timeline service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestCreateAndGetTurn(t *testing.T) {
	svc := newTestService(t)

	turn, err := svc.CreateTurn(&Turn{
		SessionKey: "telegram:42",
		Channel:    "telegram",
		ChatID:     "42",
		Model:      "gpt-4o-mini",
		ContentIn:  "hello",
	})
	if err != nil {
		t.Fatalf("create turn: %v", err)
	}
	if turn.TurnID == "" || turn.TraceID == "" {
		t.Fatalf("expected generated ids, got %+v", turn)
	}
	if turn.Status != TurnStatusRunning || turn.DeliveryStatus != DeliveryPending {
		t.Fatalf("unexpected initial state: %s/%s", turn.Status, turn.DeliveryStatus)
	}

	if _, err := svc.GetTurn("missing"); err == nil {
		t.Fatal("expected error for missing turn")
	}
}

func TestFinishTurn(t *testing.T) {
	svc := newTestService(t)
	turn, _ := svc.CreateTurn(&Turn{SessionKey: "cli:default", Channel: "cli", ChatID: "default", ContentIn: "list files"})

	err := svc.FinishTurn(turn.TurnID, TurnOutcome{
		Status:      TurnStatusCompleted,
		ContentOut:  "a.txt",
		Iterations:  2,
		TotalTokens: 120,
	})
	if err != nil {
		t.Fatalf("finish turn: %v", err)
	}

	got, err := svc.GetTurn(turn.TurnID)
	if err != nil {
		t.Fatalf("get turn: %v", err)
	}
	if got.Status != TurnStatusCompleted || got.ContentOut != "a.txt" || got.Iterations != 2 || got.TotalTokens != 120 {
		t.Fatalf("unexpected turn: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}

	if err := svc.FinishTurn("missing", TurnOutcome{Status: TurnStatusFailed}); err == nil {
		t.Fatal("expected error finishing unknown turn")
	}
}

func TestSpansInOrder(t *testing.T) {
	svc := newTestService(t)
	turn, _ := svc.CreateTurn(&Turn{SessionKey: "s", Channel: "cli", ChatID: "s"})

	spans := []*Span{
		{TurnID: turn.TurnID, Kind: SpanKindLLM, Name: "gpt-4o-mini", Iteration: 1, DurationMS: 30},
		{TurnID: turn.TurnID, Kind: SpanKindTool, Name: "list_dir", Iteration: 1, Stage: "strict", Detail: "📂 Directory is empty"},
		{TurnID: turn.TurnID, Kind: SpanKindLLM, Name: "gpt-4o-mini", Iteration: 2},
	}
	for _, sp := range spans {
		if err := svc.AddSpan(sp); err != nil {
			t.Fatalf("add span: %v", err)
		}
	}

	got, err := svc.ListSpans(turn.TurnID)
	if err != nil {
		t.Fatalf("list spans: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(got))
	}
	if got[1].Kind != SpanKindTool || got[1].Name != "list_dir" || got[1].Stage != "strict" {
		t.Fatalf("unexpected tool span: %+v", got[1])
	}
	if got[0].DurationMS != 30 {
		t.Fatalf("expected duration 30, got %d", got[0].DurationMS)
	}

	sum, err := svc.Summarize()
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Turns != 1 || sum.ToolCalls != 1 || sum.CompletionCalls != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestListTurnsFilter(t *testing.T) {
	svc := newTestService(t)
	svc.CreateTurn(&Turn{SessionKey: "telegram:1", Channel: "telegram", ChatID: "1"})
	svc.CreateTurn(&Turn{SessionKey: "telegram:2", Channel: "telegram", ChatID: "2"})
	svc.CreateTurn(&Turn{SessionKey: "slack:C1", Channel: "slack", ChatID: "C1"})

	all, err := svc.ListTurns(TurnFilter{})
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(all))
	}
	if all[0].SessionKey != "slack:C1" {
		t.Fatalf("expected newest first, got %s", all[0].SessionKey)
	}

	tg, _ := svc.ListTurns(TurnFilter{Channel: "telegram"})
	if len(tg) != 2 {
		t.Fatalf("expected 2 telegram turns, got %d", len(tg))
	}
	one, _ := svc.ListTurns(TurnFilter{SessionKey: "telegram:2"})
	if len(one) != 1 || one[0].ChatID != "2" {
		t.Fatalf("unexpected session filter result: %+v", one)
	}
}

func TestPendingDeliveries(t *testing.T) {
	svc := newTestService(t)
	turn, _ := svc.CreateTurn(&Turn{SessionKey: "whatsapp:1", Channel: "whatsapp", ChatID: "1"})
	svc.FinishTurn(turn.TurnID, TurnOutcome{Status: TurnStatusCompleted, ContentOut: "hi"})

	// Pending turns are delivered by the runner itself, not retried.
	pending, err := svc.ListPendingDeliveries(10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no retries yet, got %d", len(pending))
	}

	past := time.Now().Add(-time.Minute)
	if err := svc.UpdateDelivery(turn.TurnID, DeliveryRetry, &past); err != nil {
		t.Fatalf("update delivery: %v", err)
	}
	pending, _ = svc.ListPendingDeliveries(10)
	if len(pending) != 1 || pending[0].DeliveryAttempts != 1 {
		t.Fatalf("expected one due retry, got %+v", pending)
	}

	future := time.Now().Add(time.Hour)
	svc.UpdateDelivery(turn.TurnID, DeliveryRetry, &future)
	pending, _ = svc.ListPendingDeliveries(10)
	if len(pending) != 0 {
		t.Fatalf("expected retry to be deferred, got %d", len(pending))
	}
}

func TestSetPartsSent(t *testing.T) {
	svc := newTestService(t)
	turn, _ := svc.CreateTurn(&Turn{SessionKey: "telegram:1", Channel: "telegram", ChatID: "1"})
	if turn.PartsSent != 0 {
		t.Fatalf("expected no parts sent on a new turn, got %d", turn.PartsSent)
	}
	if err := svc.SetPartsSent(turn.TurnID, 3); err != nil {
		t.Fatalf("set parts sent: %v", err)
	}
	got, _ := svc.GetTurn(turn.TurnID)
	if got.PartsSent != 3 {
		t.Fatalf("expected 3 parts sent, got %d", got.PartsSent)
	}
}

func TestDeleteSessionTurnsCascades(t *testing.T) {
	svc := newTestService(t)
	turn, _ := svc.CreateTurn(&Turn{SessionKey: "cli:x", Channel: "cli", ChatID: "x"})
	svc.AddSpan(&Span{TurnID: turn.TurnID, Kind: SpanKindLLM, Name: "m"})

	n, err := svc.DeleteSessionTurns("cli:x")
	if err != nil || n != 1 {
		t.Fatalf("delete = %d, %v", n, err)
	}
	spans, _ := svc.ListSpans(turn.TurnID)
	if len(spans) != 0 {
		t.Fatalf("expected spans removed with turn, got %d", len(spans))
	}
}
