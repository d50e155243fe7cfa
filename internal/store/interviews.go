package store

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/lukasbauer/apriori/internal/analysis"
	"github.com/lukasbauer/apriori/internal/followup"
)

// Interview list paging.
const (
	DefaultInterviewLimit = 50
	MaxInterviewLimit     = 200

	// listTranscriptRunes is how much transcript a list row carries.
	listTranscriptRunes = 500
)

func insertInterviewTx(ctx context.Context, tx pgx.Tx, iv *followup.Interview) (int64, error) {
	createdAt := iv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO interviews (employee_id, call_id, conversation_id, transcript, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, iv.EmployeeID, iv.CallID, iv.ConversationID, iv.Transcript, iv.DurationSeconds, createdAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert interview: %w", err)
	}

	rec := iv.Insight
	lists := make([][]byte, 0, 6)
	for _, l := range [][]string{rec.SecondaryReasons, rec.Recommendations, rec.ActionItems, rec.KeyQuotes, rec.RedFlags, rec.PositiveFeedback} {
		b, err := marshalJSON(l, "[]")
		if err != nil {
			return 0, err
		}
		lists = append(lists, b)
	}
	answers, err := marshalJSON(rec.StructuredAnswers, "{}")
	if err != nil {
		return 0, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO interview_analyses (interview_id, executive_summary, detailed_summary,
			sentiment_score, satisfaction_score, retention_risk, confidence_score, primary_reason,
			secondary_reasons, answers_structured, recommendations, action_items, key_quotes,
			red_flags, positive_feedback, ai_model_used, processing_time_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, id, rec.ExecutiveSummary, rec.DetailedSummary,
		rec.SentimentScore, rec.SatisfactionScore, rec.RetentionRisk, rec.ConfidenceScore, rec.PrimaryReason,
		lists[0], answers, lists[1], lists[2], lists[3],
		lists[4], lists[5], rec.ModelUsed, rec.ProcessingSeconds, createdAt)
	if err != nil {
		return 0, fmt.Errorf("insert interview analysis: %w", err)
	}
	iv.ID = id
	return id, nil
}

const analysisColumns = `a.executive_summary, a.detailed_summary, a.sentiment_score, a.satisfaction_score,
	a.retention_risk, a.confidence_score, a.primary_reason, a.secondary_reasons,
	a.answers_structured, a.recommendations, a.action_items, a.key_quotes, a.red_flags,
	a.positive_feedback, a.ai_model_used, a.processing_time_seconds`

// scanRecord scans analysisColumns preceded by lead.
func scanRecord(row pgx.Row, r *analysis.InsightRecord, lead ...any) error {
	var secondary, answers, recs, actions, quotes, flags, positive []byte
	dst := append(lead,
		&r.ExecutiveSummary, &r.DetailedSummary, &r.SentimentScore, &r.SatisfactionScore,
		&r.RetentionRisk, &r.ConfidenceScore, &r.PrimaryReason, &secondary,
		&answers, &recs, &actions, &quotes, &flags,
		&positive, &r.ModelUsed, &r.ProcessingSeconds)
	if err := row.Scan(dst...); err != nil {
		return err
	}
	decode := []struct {
		raw []byte
		dst any
	}{
		{secondary, &r.SecondaryReasons},
		{answers, &r.StructuredAnswers},
		{recs, &r.Recommendations},
		{actions, &r.ActionItems},
		{quotes, &r.KeyQuotes},
		{flags, &r.RedFlags},
		{positive, &r.PositiveFeedback},
	}
	for _, d := range decode {
		if err := unmarshalJSON(d.raw, d.dst); err != nil {
			return fmt.Errorf("decode insight: %w", err)
		}
	}
	return nil
}

// ListInsights returns every analyzed interview created at or after since,
// paired with the employee's department.
func (s *Store) ListInsights(ctx context.Context, since time.Time) ([]analysis.DepartmentInsight, error) {
	rows, err := s.db.Query(ctx, `
		SELECT e.department, `+analysisColumns+`
		FROM interviews i
		JOIN interview_analyses a ON a.interview_id = i.id
		JOIN employees e ON e.employee_id = i.employee_id
		WHERE i.created_at >= $1
		ORDER BY i.created_at, i.id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var out []analysis.DepartmentInsight
	for rows.Next() {
		var it analysis.DepartmentInsight
		if err := scanRecord(rows, &it.Record, &it.Department); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// InterviewFilter narrows ListInterviews. Zero fields match everything.
type InterviewFilter struct {
	Department string
	MinRisk    float64 // retention_risk >= MinRisk when > 0
	Search     string  // case-insensitive transcript substring
	SortByRisk bool    // highest risk first instead of newest first
	Limit      int
	Offset     int
}

// InterviewDetail is an interview with its analysis and employee.
type InterviewDetail struct {
	followup.Interview
	EmployeeName string `json:"employee_name"`
	Department   string `json:"department"`
	Position     string `json:"position"`
}

const interviewSelect = `
	SELECT i.id, i.employee_id, COALESCE(i.call_id, 0), i.conversation_id, i.transcript,
		i.duration_seconds, i.created_at, e.name, e.department, e.position, ` + analysisColumns + `
	FROM interviews i
	JOIN interview_analyses a ON a.interview_id = i.id
	JOIN employees e ON e.employee_id = i.employee_id`

func scanInterview(row pgx.Row) (*InterviewDetail, error) {
	var d InterviewDetail
	err := scanRecord(row, &d.Insight,
		&d.ID, &d.EmployeeID, &d.CallID, &d.ConversationID, &d.Transcript,
		&d.DurationSeconds, &d.CreatedAt, &d.EmployeeName, &d.Department, &d.Position)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListInterviews pages through analyzed interviews. Transcripts are cut to a
// preview; GetInterview returns them whole.
func (s *Store) ListInterviews(ctx context.Context, f InterviewFilter) ([]InterviewDetail, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultInterviewLimit
	}
	if f.Limit > MaxInterviewLimit {
		f.Limit = MaxInterviewLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	order := "i.created_at DESC, i.id DESC"
	if f.SortByRisk {
		order = "a.retention_risk DESC, i.created_at DESC, i.id DESC"
	}

	rows, err := s.db.Query(ctx, interviewSelect+`
		WHERE ($1::text = '' OR e.department = $1::text)
		  AND ($2::float8 <= 0 OR a.retention_risk >= $2::float8)
		  AND ($3::text = '' OR strpos(lower(i.transcript), lower($3::text)) > 0)
		ORDER BY `+order+`
		LIMIT $4 OFFSET $5
	`, f.Department, f.MinRisk, f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	defer rows.Close()

	out := []InterviewDetail{}
	for rows.Next() {
		d, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		d.Transcript = TruncateTranscript(d.Transcript, listTranscriptRunes)
		out = append(out, *d)
	}
	return out, rows.Err()
}

// GetInterview returns one interview with its full transcript.
func (s *Store) GetInterview(ctx context.Context, id int64) (*InterviewDetail, error) {
	d, err := scanInterview(s.db.QueryRow(ctx, interviewSelect+`
		WHERE i.id = $1
	`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

// TruncateTranscript cuts s to n runes, marking the cut with "...".
func TruncateTranscript(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
