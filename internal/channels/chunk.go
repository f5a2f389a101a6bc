package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/miniclaw/miniclaw/internal/bus"
)

// Per-platform message length limits, in characters.
const (
	TelegramMaxLength = 4096
	SlackMaxLength    = 4000
	WhatsAppMaxLength = 4096
)

// DefaultChunkPause is the delay between the parts of a split reply.
const DefaultChunkPause = 500 * time.Millisecond

// SplitMessage cuts text into pieces of at most limit characters.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}
	parts := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

func partHeader(i, n int) string {
	return fmt.Sprintf("📄 %d/%d\n\n", i, n)
}

// FormatParts numbers the parts of a multi-part reply. A single part is
// returned unchanged.
func FormatParts(parts []string) []string {
	if len(parts) <= 1 {
		return parts
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = partHeader(i+1, len(parts)) + p
	}
	return out
}

// ChunkMessage splits text so that every numbered part, header included, fits
// in limit characters.
func ChunkMessage(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}
	// The header widens as the part count grows; settle on a stable count.
	n := 2
	for {
		body := limit - len([]rune(partHeader(n, n)))
		if body <= 0 {
			return FormatParts(SplitMessage(text, limit))
		}
		parts := SplitMessage(text, body)
		if len(parts) <= n {
			return FormatParts(parts)
		}
		n = len(parts)
	}
}

// SendChunked splits text at limit and sends the numbered parts in order,
// pausing between them. Parts before index from were delivered by an earlier
// attempt and are skipped. It stops at the first failed part and reports how
// far it got as a *bus.PartialDeliveryError.
func SendChunked(ctx context.Context, text string, limit, from int, pause time.Duration, send func(ctx context.Context, part string) error) error {
	parts := ChunkMessage(text, limit)
	if from < 0 || from >= len(parts) {
		from = 0
	}
	for i := from; i < len(parts); i++ {
		if i > from && pause > 0 {
			select {
			case <-ctx.Done():
				return &bus.PartialDeliveryError{Sent: i, Total: len(parts), Err: ctx.Err()}
			case <-time.After(pause):
			}
		}
		if err := send(ctx, parts[i]); err != nil {
			return &bus.PartialDeliveryError{
				Sent:  i,
				Total: len(parts),
				Err:   fmt.Errorf("send part %d/%d: %w", i+1, len(parts), err),
			}
		}
	}
	return nil
}
