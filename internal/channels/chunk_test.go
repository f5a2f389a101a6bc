package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/miniclaw/miniclaw/internal/bus"
)

func TestSplitMessage(t *testing.T) {
	if parts := SplitMessage("short", 10); len(parts) != 1 || parts[0] != "short" {
		t.Fatalf("unexpected parts for short text: %#v", parts)
	}

	text := strings.Repeat("a", 25)
	parts := SplitMessage(text, 10)
	if len(parts) != 3 || len(parts[2]) != 5 {
		t.Fatalf("expected 10/10/5 split, got %#v", parts)
	}
	if strings.Join(parts, "") != text {
		t.Fatal("split lost characters")
	}

	// Multi-byte runes are never cut in half.
	emoji := strings.Repeat("😀", 5)
	parts = SplitMessage(emoji, 2)
	if len(parts) != 3 || parts[0] != "😀😀" || parts[2] != "😀" {
		t.Fatalf("unexpected rune split: %#v", parts)
	}
}

func TestFormatParts(t *testing.T) {
	if got := FormatParts([]string{"only"}); got[0] != "only" {
		t.Fatalf("single part must be unchanged, got %q", got[0])
	}
	got := FormatParts([]string{"a", "b"})
	if got[0] != "📄 1/2\n\na" || got[1] != "📄 2/2\n\nb" {
		t.Fatalf("unexpected numbering: %#v", got)
	}
}

func TestChunkMessageFitsLimit(t *testing.T) {
	if parts := ChunkMessage("short", TelegramMaxLength); len(parts) != 1 || parts[0] != "short" {
		t.Fatalf("unexpected parts for short text: %#v", parts)
	}

	for _, size := range []int{4097, 5000, 8192, 50_000} {
		text := strings.Repeat("a", size)
		parts := ChunkMessage(text, TelegramMaxLength)
		if len(parts) < 2 {
			t.Fatalf("size %d: expected a split, got %d parts", size, len(parts))
		}
		var body strings.Builder
		for i, p := range parts {
			if n := utf8.RuneCountInString(p); n > TelegramMaxLength {
				t.Fatalf("size %d: part %d has %d runes, limit %d", size, i+1, n, TelegramMaxLength)
			}
			header := fmt.Sprintf("📄 %d/%d\n\n", i+1, len(parts))
			if !strings.HasPrefix(p, header) {
				t.Fatalf("size %d: part %d missing header %q", size, i+1, header)
			}
			body.WriteString(strings.TrimPrefix(p, header))
		}
		if body.String() != text {
			t.Fatalf("size %d: split lost characters", size)
		}
	}
}

func TestSendChunked(t *testing.T) {
	text := strings.Repeat("x", 30)
	var sent []string
	err := SendChunked(context.Background(), text, 17, 0, time.Millisecond, func(ctx context.Context, part string) error {
		sent = append(sent, part)
		return nil
	})
	if err != nil {
		t.Fatalf("send chunked: %v", err)
	}
	if len(sent) != 3 || !strings.HasPrefix(sent[2], "📄 3/3\n\n") {
		t.Fatalf("unexpected parts: %#v", sent)
	}
	for _, p := range sent {
		if utf8.RuneCountInString(p) > 17 {
			t.Fatalf("part over limit: %q", p)
		}
	}
}

func TestSendChunkedReportsProgress(t *testing.T) {
	text := strings.Repeat("x", 30)
	boom := errors.New("rate limited")
	calls := 0
	err := SendChunked(context.Background(), text, 17, 0, 0, func(ctx context.Context, part string) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	var partial *bus.PartialDeliveryError
	if !errors.As(err, &partial) || !errors.Is(err, boom) || calls != 2 {
		t.Fatalf("expected stop at failing part, got err=%v calls=%d", err, calls)
	}
	if partial.Sent != 1 || partial.Total != 3 {
		t.Fatalf("expected 1/3 delivered, got %d/%d", partial.Sent, partial.Total)
	}

	// A retry resumes after the delivered part.
	var resent []string
	err = SendChunked(context.Background(), text, 17, partial.Sent, 0, func(ctx context.Context, part string) error {
		resent = append(resent, part)
		return nil
	})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if len(resent) != 2 || !strings.HasPrefix(resent[0], "📄 2/3\n\n") {
		t.Fatalf("expected parts 2 and 3 only, got %#v", resent)
	}

	// An out-of-range offset sends everything.
	resent = nil
	SendChunked(context.Background(), text, 17, 9, 0, func(ctx context.Context, part string) error {
		resent = append(resent, part)
		return nil
	})
	if len(resent) != 3 {
		t.Fatalf("expected full resend, got %d parts", len(resent))
	}
}
