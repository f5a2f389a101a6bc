package agent

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/miniclaw/miniclaw/internal/bus"
	"github.com/miniclaw/miniclaw/internal/timeline"
)

// DeliveryWorker records the outcome of outbound sends and re-publishes
// replies whose send failed.
type DeliveryWorker struct {
	timeline *timeline.TimelineService
	bus      *bus.MessageBus
	interval time.Duration
	maxRetry int
}

// NewDeliveryWorker creates a delivery worker with sensible defaults.
func NewDeliveryWorker(tl *timeline.TimelineService, b *bus.MessageBus) *DeliveryWorker {
	return &DeliveryWorker{
		timeline: tl,
		bus:      b,
		interval: 5 * time.Second,
		maxRetry: 5,
	}
}

// Run starts the polling loop. Blocks until context is cancelled.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	slog.Info("Delivery worker started", "interval", w.interval, "max_retry", w.maxRetry)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Delivery worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.poll()
		}
	}
}

// Report is installed as the bus delivery reporter.
func (w *DeliveryWorker) Report(msg *bus.OutboundMessage, err error) {
	if msg.TurnID == "" {
		return
	}
	if err == nil {
		if uerr := w.timeline.UpdateDelivery(msg.TurnID, timeline.DeliverySent, nil); uerr != nil {
			slog.Warn("Failed to mark delivery", "turn_id", msg.TurnID, "error", uerr)
		}
		return
	}

	turn, gerr := w.timeline.GetTurn(msg.TurnID)
	if gerr != nil {
		slog.Warn("Delivery report for unknown turn", "turn_id", msg.TurnID, "error", gerr)
		return
	}
	var partial *bus.PartialDeliveryError
	if errors.As(err, &partial) && partial.Sent > turn.PartsSent {
		if perr := w.timeline.SetPartsSent(msg.TurnID, partial.Sent); perr != nil {
			slog.Warn("Failed to record delivered parts", "turn_id", msg.TurnID, "error", perr)
		}
	}
	attempts := turn.DeliveryAttempts + 1
	if attempts >= w.maxRetry {
		slog.Warn("Delivery max retries exceeded", "turn_id", msg.TurnID, "attempts", attempts)
		_ = w.timeline.UpdateDelivery(msg.TurnID, timeline.DeliveryFailed, nil)
		return
	}
	next := DeliveryBackoff(turn.DeliveryAttempts)
	_ = w.timeline.UpdateDelivery(msg.TurnID, timeline.DeliveryRetry, &next)
	slog.Info("Delivery scheduled for retry", "turn_id", msg.TurnID, "attempts", attempts, "next_at", next)
}

func (w *DeliveryWorker) poll() {
	turns, err := w.timeline.ListPendingDeliveries(10)
	if err != nil {
		slog.Error("Delivery worker poll failed", "error", err)
		return
	}

	for _, turn := range turns {
		if turn.DeliveryAttempts >= w.maxRetry {
			slog.Warn("Delivery max retries exceeded", "turn_id", turn.TurnID, "attempts", turn.DeliveryAttempts)
			_ = w.timeline.SetDeliveryStatus(turn.TurnID, timeline.DeliveryFailed)
			continue
		}

		// Pending until the dispatcher reports the outcome.
		_ = w.timeline.SetDeliveryStatus(turn.TurnID, timeline.DeliveryPending)
		w.bus.PublishOutbound(&bus.OutboundMessage{
			Channel: turn.Channel,
			ChatID:  turn.ChatID,
			TraceID: turn.TraceID,
			TurnID:  turn.TurnID,
			Content: turn.ContentOut,

			// Resume a split reply after the parts that already arrived.
			PartsSent: turn.PartsSent,
		})
		slog.Info("Delivery worker dispatched", "turn_id", turn.TurnID, "channel", turn.Channel)
	}
}

// DeliveryBackoff calculates the next retry time using exponential backoff.
// Returns min(30s * 2^attempts, 5min).
func DeliveryBackoff(attempts int) time.Time {
	delay := time.Duration(30*math.Pow(2, float64(attempts))) * time.Second
	maxDelay := 5 * time.Minute
	if delay > maxDelay {
		delay = maxDelay
	}
	return time.Now().Add(delay)
}
