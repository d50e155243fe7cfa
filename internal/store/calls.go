package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lukasbauer/apriori/internal/followup"
)

const callColumns = `id, employee_id, call_type, scheduled_at, completed_at, external_conversation_id,
	external_agent_id, status, duration_seconds, was_successful, retention_risk_level,
	needs_human_followup, transcript, summary, provider_cost, twilio_cost_cents,
	voice_agent_cost_cents, failure_reason, created_at, updated_at`

func scanCall(row pgx.Row) (*followup.FollowUpCall, error) {
	var c followup.FollowUpCall
	var callType, status, risk string
	var conversationID *string
	if err := row.Scan(&c.ID, &c.EmployeeID, &callType, &c.ScheduledAt, &c.CompletedAt, &conversationID,
		&c.AgentID, &status, &c.DurationSeconds, &c.WasSuccessful, &risk,
		&c.NeedsHumanFollowup, &c.Transcript, &c.Summary, &c.ProviderCost, &c.TwilioCostCents,
		&c.VoiceAgentCostCents, &c.FailureReason, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CallType = followup.CallType(callType)
	c.Status = followup.CallStatus(status)
	c.RetentionRiskLevel = followup.RiskLevel(risk)
	c.ConversationID = stringOrDefault(conversationID, "")
	return &c, nil
}

func collectCalls(rows pgx.Rows) ([]followup.FollowUpCall, error) {
	defer rows.Close()
	var out []followup.FollowUpCall
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func statusNames(statuses []followup.CallStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func (s *Store) HasRecentCall(ctx context.Context, employeeID string, since time.Time, statuses []followup.CallStatus) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM followup_calls
			WHERE employee_id = $1 AND scheduled_at >= $2 AND status = ANY($3)
		)
	`, employeeID, since, statusNames(statuses)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check recent call: %w", err)
	}
	return exists, nil
}

// CreateCall inserts call only when no recent call exists. The check and the
// insert are a single statement, so concurrent schedulers cannot both win.
func (s *Store) CreateCall(ctx context.Context, call *followup.FollowUpCall, dedupSince time.Time) error {
	now := call.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	risk := call.RetentionRiskLevel
	if risk == "" {
		risk = followup.RiskUnknown
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO followup_calls (employee_id, call_type, scheduled_at, status, external_agent_id,
			retention_risk_level, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM followup_calls
			WHERE employee_id = $1 AND scheduled_at >= $8 AND status = ANY($9)
		)
		RETURNING id
	`, call.EmployeeID, string(call.CallType), call.ScheduledAt, string(call.Status), call.AgentID,
		string(risk), now, dedupSince, statusNames(followup.DedupStatuses)).Scan(&call.ID)
	if err == pgx.ErrNoRows {
		return followup.ErrDuplicateCall
	}
	if err != nil {
		return fmt.Errorf("create call: %w", err)
	}
	call.CreatedAt = now
	call.UpdatedAt = now
	call.RetentionRiskLevel = risk
	return nil
}

func (s *Store) ListDueCalls(ctx context.Context, from, to time.Time) ([]followup.FollowUpCall, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+callColumns+`
		FROM followup_calls
		WHERE status = $1 AND scheduled_at BETWEEN $2 AND $3
		ORDER BY scheduled_at, id
	`, string(followup.StatusScheduled), from, to)
	if err != nil {
		return nil, fmt.Errorf("list due calls: %w", err)
	}
	return collectCalls(rows)
}

func (s *Store) ListCalls(ctx context.Context, since time.Time) ([]followup.FollowUpCall, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+callColumns+`
		FROM followup_calls
		WHERE created_at >= $1
		ORDER BY created_at, id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return collectCalls(rows)
}

func (s *Store) GetCall(ctx context.Context, id int64) (*followup.FollowUpCall, error) {
	c, err := scanCall(s.db.QueryRow(ctx, `
		SELECT `+callColumns+`
		FROM followup_calls
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Store) GetCallByConversationID(ctx context.Context, conversationID string) (*followup.FollowUpCall, error) {
	if conversationID == "" {
		return nil, followup.ErrNotFound
	}
	c, err := scanCall(s.db.QueryRow(ctx, `
		SELECT `+callColumns+`
		FROM followup_calls
		WHERE external_conversation_id = $1
	`, conversationID))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ApplyTransition moves a call out of t.From. Zero affected rows means another
// writer got there first.
func (s *Store) ApplyTransition(ctx context.Context, t followup.Transition) error {
	var completedAt *time.Time
	if t.To == followup.StatusCompleted {
		at := t.At
		completedAt = &at
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE followup_calls
		SET status = $3,
			updated_at = $4,
			external_conversation_id = COALESCE($5, external_conversation_id),
			failure_reason = COALESCE($6, failure_reason),
			completed_at = COALESCE($7, completed_at)
		WHERE id = $1 AND status = $2
	`, t.CallID, string(t.From), string(t.To), t.At, nullIfEmpty(t.ConversationID), nullIfEmpty(t.FailureReason), completedAt)
	if err != nil {
		return fmt.Errorf("transition call %d: %w", t.CallID, err)
	}
	if tag.RowsAffected() == 0 {
		return followup.ErrStaleState
	}
	return nil
}

// CompleteCall stores everything a completed call produces in one transaction.
func (s *Store) CompleteCall(ctx context.Context, c followup.Completion) (followup.CompletionResult, error) {
	var res followup.CompletionResult
	t := c.Transition

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var employeeID string
	err = tx.QueryRow(ctx, `
		UPDATE followup_calls
		SET status = $3,
			updated_at = $4,
			completed_at = $4,
			duration_seconds = $5,
			provider_cost = $6,
			twilio_cost_cents = $7,
			voice_agent_cost_cents = $8,
			transcript = $9,
			summary = $10,
			was_successful = $11,
			retention_risk_level = $12,
			needs_human_followup = $13
		WHERE id = $1 AND status = $2
		RETURNING employee_id
	`, t.CallID, string(t.From), string(t.To), t.At, c.DurationSeconds, c.ProviderCost,
		c.TwilioCostCents, c.VoiceAgentCostCents, c.Transcript, c.Summary, c.WasSuccessful,
		string(c.RetentionRisk), c.NeedsHumanFollowup).Scan(&employeeID)
	if err == pgx.ErrNoRows {
		return res, followup.ErrStaleState
	}
	if err != nil {
		return res, fmt.Errorf("complete call %d: %w", t.CallID, err)
	}

	if c.Interview != nil {
		id, err := insertInterviewTx(ctx, tx, c.Interview)
		if err != nil {
			return res, err
		}
		res.InterviewID = id
	}

	if c.Profile != nil {
		updated, err := applyProfileTx(ctx, tx, employeeID, *c.Profile)
		if err != nil {
			return res, err
		}
		res.ProfileUpdated = updated
	}

	if err := tx.Commit(ctx); err != nil {
		return followup.CompletionResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// CallEvent is one row of the call audit trail.
type CallEvent struct {
	ID        int64           `json:"id"`
	CallID    int64           `json:"call_id"`
	EventType string          `json:"event_type"`
	EventData json.RawMessage `json:"event_data"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *Store) ListCallEvents(ctx context.Context, callID int64) ([]CallEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, call_id, event_type, event_data, created_at
		FROM call_events
		WHERE call_id = $1
		ORDER BY created_at, id
	`, callID)
	if err != nil {
		return nil, fmt.Errorf("list call events: %w", err)
	}
	defer rows.Close()

	var out []CallEvent
	for rows.Next() {
		var ev CallEvent
		if err := rows.Scan(&ev.ID, &ev.CallID, &ev.EventType, &ev.EventData, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
