// Package timeline records turns and their completion/tool spans in SQLite.
package timeline

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type TimelineService struct {
	db *sql.DB
}

func NewTimelineService(dbPath string) (*TimelineService, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	// Databases created before split-reply resume lack this column.
	_, _ = db.Exec(`ALTER TABLE turns ADD COLUMN parts_sent INTEGER NOT NULL DEFAULT 0`)
	return &TimelineService{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *TimelineService) DB() *sql.DB { return s.db }

func (s *TimelineService) Close() error {
	return s.db.Close()
}

// --- Turns ---

const turnColumns = `id, turn_id, COALESCE(trace_id,''), session_key, channel, chat_id,
	COALESCE(sender_id,''), COALESCE(model,''), status,
	COALESCE(content_in,''), COALESCE(content_out,''), COALESCE(error_text,''),
	iterations, exhausted, prompt_tokens, completion_tokens, total_tokens,
	delivery_status, delivery_attempts, delivery_next_at, parts_sent,
	created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTurn(row rowScanner) (*Turn, error) {
	var t Turn
	var deliveryNextAt, completedAt sql.NullTime
	err := row.Scan(
		&t.ID, &t.TurnID, &t.TraceID, &t.SessionKey, &t.Channel, &t.ChatID,
		&t.SenderID, &t.Model, &t.Status,
		&t.ContentIn, &t.ContentOut, &t.ErrorText,
		&t.Iterations, &t.Exhausted, &t.PromptTokens, &t.CompletionTokens, &t.TotalTokens,
		&t.DeliveryStatus, &t.DeliveryAttempts, &deliveryNextAt, &t.PartsSent,
		&t.CreatedAt, &t.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if deliveryNextAt.Valid {
		t.DeliveryNextAt = &deliveryNextAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	var turns []Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, *t)
	}
	return turns, rows.Err()
}

// CreateTurn inserts a running turn. TurnID and TraceID are generated if empty.
func (s *TimelineService) CreateTurn(turn *Turn) (*Turn, error) {
	if turn.TurnID == "" {
		turn.TurnID = uuid.NewString()
	}
	if turn.TraceID == "" {
		turn.TraceID = uuid.NewString()
	}
	if turn.Status == "" {
		turn.Status = TurnStatusRunning
	}
	if turn.DeliveryStatus == "" {
		turn.DeliveryStatus = DeliveryPending
	}

	_, err := s.db.Exec(`
	INSERT INTO turns (turn_id, trace_id, session_key, channel, chat_id, sender_id, model, status, content_in, delivery_status)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.TurnID,
		turn.TraceID,
		turn.SessionKey,
		turn.Channel,
		turn.ChatID,
		turn.SenderID,
		turn.Model,
		turn.Status,
		turn.ContentIn,
		turn.DeliveryStatus,
	)
	if err != nil {
		return nil, fmt.Errorf("create turn: %w", err)
	}
	return s.GetTurn(turn.TurnID)
}

// GetTurn returns a turn by turn_id.
func (s *TimelineService) GetTurn(turnID string) (*Turn, error) {
	t, err := scanTurn(s.db.QueryRow(`SELECT `+turnColumns+` FROM turns WHERE turn_id = ?`, turnID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("turn not found: %s", turnID)
	}
	if err != nil {
		return nil, fmt.Errorf("get turn: %w", err)
	}
	return t, nil
}

// TurnOutcome is what a finished turn produced.
type TurnOutcome struct {
	Status           string
	ContentOut       string
	ErrorText        string
	Iterations       int
	Exhausted        bool
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FinishTurn stores the outcome of a turn and stamps completed_at.
func (s *TimelineService) FinishTurn(turnID string, out TurnOutcome) error {
	res, err := s.db.Exec(`UPDATE turns SET
		status = ?, content_out = ?, error_text = ?, iterations = ?, exhausted = ?,
		prompt_tokens = ?, completion_tokens = ?, total_tokens = ?,
		updated_at = datetime('now'), completed_at = datetime('now')
	WHERE turn_id = ?`,
		out.Status, out.ContentOut, out.ErrorText, out.Iterations, out.Exhausted,
		out.PromptTokens, out.CompletionTokens, out.TotalTokens,
		turnID,
	)
	if err != nil {
		return fmt.Errorf("finish turn: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("turn not found: %s", turnID)
	}
	return nil
}

// UpdateDelivery sets delivery_status and delivery_next_at and counts one
// delivery attempt.
func (s *TimelineService) UpdateDelivery(turnID, deliveryStatus string, nextAt *time.Time) error {
	var nextAtVal any
	if nextAt != nil {
		nextAtVal = nextAt.UTC()
	}
	_, err := s.db.Exec(`UPDATE turns SET delivery_status = ?, delivery_attempts = delivery_attempts + 1,
		delivery_next_at = ?, updated_at = datetime('now') WHERE turn_id = ?`,
		deliveryStatus, nextAtVal, turnID)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	return nil
}

// SetDeliveryStatus changes delivery_status without counting an attempt.
func (s *TimelineService) SetDeliveryStatus(turnID, deliveryStatus string) error {
	_, err := s.db.Exec(`UPDATE turns SET delivery_status = ?, updated_at = datetime('now') WHERE turn_id = ?`,
		deliveryStatus, turnID)
	if err != nil {
		return fmt.Errorf("set delivery status: %w", err)
	}
	return nil
}

// SetPartsSent records how many parts of a split reply were delivered.
func (s *TimelineService) SetPartsSent(turnID string, sent int) error {
	_, err := s.db.Exec(`UPDATE turns SET parts_sent = ?, updated_at = datetime('now') WHERE turn_id = ?`,
		sent, turnID)
	if err != nil {
		return fmt.Errorf("set parts sent: %w", err)
	}
	return nil
}

// ListPendingDeliveries returns completed turns whose delivery is due for a retry.
func (s *TimelineService) ListPendingDeliveries(limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`SELECT `+turnColumns+` FROM turns
	WHERE status = ? AND delivery_status = ?
		AND (delivery_next_at IS NULL OR delivery_next_at <= ?)
	ORDER BY created_at ASC
	LIMIT ?`, TurnStatusCompleted, DeliveryRetry, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending deliveries: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// ListTurns returns turns, newest first.
func (s *TimelineService) ListTurns(filter TurnFilter) ([]Turn, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `SELECT ` + turnColumns + ` FROM turns WHERE 1=1`
	args := []any{}

	if filter.SessionKey != "" {
		query += " AND session_key = ?"
		args = append(args, filter.SessionKey)
	}
	if filter.Channel != "" {
		query += " AND channel = ?"
		args = append(args, filter.Channel)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// DeleteSessionTurns removes all turns (and their spans) of a session.
func (s *TimelineService) DeleteSessionTurns(sessionKey string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM turns WHERE session_key = ?`, sessionKey)
	if err != nil {
		return 0, fmt.Errorf("delete session turns: %w", err)
	}
	return res.RowsAffected()
}

// --- Spans ---

// AddSpan records a completion or tool span.
func (s *TimelineService) AddSpan(span *Span) error {
	if span.StartedAt.IsZero() {
		span.StartedAt = time.Now()
	}
	res, err := s.db.Exec(`
	INSERT INTO spans (turn_id, kind, name, iteration, stage, detail, error_text, started_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		span.TurnID,
		span.Kind,
		span.Name,
		span.Iteration,
		span.Stage,
		span.Detail,
		span.ErrorText,
		span.StartedAt.UTC(),
		span.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("add span: %w", err)
	}
	span.ID, _ = res.LastInsertId()
	return nil
}

// ListSpans returns the spans of a turn in recording order.
func (s *TimelineService) ListSpans(turnID string) ([]Span, error) {
	rows, err := s.db.Query(`SELECT id, turn_id, kind, name, iteration, COALESCE(stage,''),
		COALESCE(detail,''), COALESCE(error_text,''), started_at, duration_ms
	FROM spans WHERE turn_id = ? ORDER BY id ASC`, turnID)
	if err != nil {
		return nil, fmt.Errorf("list spans: %w", err)
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var sp Span
		var startedAt sql.NullTime
		if err := rows.Scan(&sp.ID, &sp.TurnID, &sp.Kind, &sp.Name, &sp.Iteration, &sp.Stage,
			&sp.Detail, &sp.ErrorText, &startedAt, &sp.DurationMS); err != nil {
			return nil, err
		}
		if startedAt.Valid {
			sp.StartedAt = startedAt.Time
		}
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}

// Summarize aggregates turn and span counts.
func (s *TimelineService) Summarize() (*Summary, error) {
	var sum Summary
	err := s.db.QueryRow(`SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN exhausted THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN delivery_status IN ('pending','retry') AND status = 'completed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN delivery_status = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(total_tokens), 0)
	FROM turns`).Scan(&sum.Turns, &sum.Completed, &sum.Failed, &sum.Exhausted,
		&sum.PendingDelivery, &sum.FailedDelivery, &sum.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("summarize turns: %w", err)
	}
	err = s.db.QueryRow(`SELECT
		COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0)
	FROM spans`, SpanKindTool, SpanKindLLM).Scan(&sum.ToolCalls, &sum.CompletionCalls)
	if err != nil {
		return nil, fmt.Errorf("summarize spans: %w", err)
	}
	return &sum, nil
}
