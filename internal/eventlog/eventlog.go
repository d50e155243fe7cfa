// Package eventlog persists call lifecycle events to the call_events audit table.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/lukasbauer/apriori/internal/followup"
	"github.com/lukasbauer/apriori/internal/metrics"
)

// EventType represents the type of call event
type EventType string

const (
	EventCallScheduled EventType = "call_scheduled"
	EventCallStarted   EventType = "call_started"
	EventCallCompleted EventType = "call_completed"
	EventCallFailed    EventType = "call_failed"
	EventCallCancelled EventType = "call_cancelled"
)

// TypeFor names the event recorded when a call enters status to.
func TypeFor(to followup.CallStatus) EventType {
	switch to {
	case followup.StatusScheduled:
		return EventCallScheduled
	case followup.StatusInProgress:
		return EventCallStarted
	case followup.StatusCompleted:
		return EventCallCompleted
	case followup.StatusFailed:
		return EventCallFailed
	case followup.StatusCancelled:
		return EventCallCancelled
	}
	return EventType("call_" + string(to))
}

// Execer is the part of pgxpool.Pool the logger uses.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Logger provides async event logging to the database
type Logger struct {
	db      Execer
	metrics *metrics.Metrics
	logger  zerolog.Logger
	timeout time.Duration
}

// New creates a new event logger. db may be nil to disable persistence.
func New(db Execer, m *metrics.Metrics, logger zerolog.Logger) *Logger {
	if m == nil {
		m = metrics.NewNop()
	}
	return &Logger{db: db, metrics: m, logger: logger, timeout: 2 * time.Second}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, ev followup.LifecycleEvent) error {
	if l.db == nil || ev.CallID == 0 {
		return nil
	}

	data := map[string]any{
		"event_id":    ev.ID,
		"employee_id": ev.EmployeeID,
		"call_type":   ev.CallType,
		"from":        ev.From,
		"to":          ev.To,
	}
	for k, v := range ev.Fields {
		data[k] = v
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO call_events (call_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.CallID, string(TypeFor(ev.To)), dataJSON, ev.At)
	return err
}

// Publish implements followup.EventSink. The write happens in the
// background and never blocks the caller.
func (l *Logger) Publish(_ context.Context, ev followup.LifecycleEvent) {
	if l.db == nil || ev.CallID == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()
		if err := l.Log(ctx, ev); err != nil {
			l.metrics.EventPublishErrors.WithLabelValues("eventlog").Inc()
			l.logger.Warn().Err(err).Int64("call_id", ev.CallID).Msg("EventLog: failed to write event")
		}
	}()
}
