// Package store is the Postgres implementation of followup.Repository.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lukasbauer/apriori/internal/followup"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Pool exposes the connection pool for components that share it.
func (s *Store) Pool() *pgxpool.Pool {
	return s.db
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Schema returns the embedded DDL.
func Schema() string {
	return schema
}

// notFound maps pgx.ErrNoRows to followup.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return followup.ErrNotFound
	}
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOrDefault(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func marshalJSON(v any, empty string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return []byte(empty), nil
	}
	return b, nil
}

func unmarshalJSON(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// Employees

const employeeColumns = `employee_id, name, email, phone, department, position, manager_name,
	hire_date, exit_date, status, preferred_contact_time, time_zone`

func scanEmployee(row pgx.Row) (*followup.Employee, error) {
	var e followup.Employee
	var status, contact string
	if err := row.Scan(&e.ID, &e.Name, &e.Email, &e.Phone, &e.Department, &e.Position, &e.ManagerName,
		&e.HireDate, &e.ExitDate, &status, &contact, &e.TimeZone); err != nil {
		return nil, err
	}
	e.Status = followup.EmployeeStatus(status)
	e.PreferredContactTime = followup.ContactWindow(contact)
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context, statuses []followup.EmployeeStatus) ([]followup.Employee, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE status = ANY($1)
		ORDER BY hire_date, employee_id
	`, names)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var out []followup.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) GetEmployee(ctx context.Context, employeeID string) (*followup.Employee, error) {
	e, err := scanEmployee(s.db.QueryRow(ctx, `
		SELECT `+employeeColumns+`
		FROM employees
		WHERE employee_id = $1
	`, employeeID))
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// UpsertEmployee inserts or replaces an HR record. It is used by imports and tests.
func (s *Store) UpsertEmployee(ctx context.Context, e followup.Employee) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (employee_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			department = EXCLUDED.department,
			position = EXCLUDED.position,
			manager_name = EXCLUDED.manager_name,
			hire_date = EXCLUDED.hire_date,
			exit_date = EXCLUDED.exit_date,
			status = EXCLUDED.status,
			preferred_contact_time = EXCLUDED.preferred_contact_time,
			time_zone = EXCLUDED.time_zone
	`, e.ID, e.Name, e.Email, e.Phone, e.Department, e.Position, e.ManagerName,
		e.HireDate, e.ExitDate, string(e.Status), string(e.PreferredContactTime), e.TimeZone)
	if err != nil {
		return fmt.Errorf("upsert employee %s: %w", e.ID, err)
	}
	return nil
}

// Profiles

func scanProfile(row pgx.Row) (*followup.EmployeeProfile, error) {
	var p followup.EmployeeProfile
	var concerns, history []byte
	if err := row.Scan(&p.EmployeeID, &concerns, &history, &p.ManagerName, &p.CommunicationStyle,
		&p.SensitivityNotes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(concerns, &p.ConcernsMentioned); err != nil {
		return nil, fmt.Errorf("decode concerns: %w", err)
	}
	if err := unmarshalJSON(history, &p.SatisfactionHistory); err != nil {
		return nil, fmt.Errorf("decode satisfaction history: %w", err)
	}
	return &p, nil
}

const profileColumns = `employee_id, concerns_mentioned, satisfaction_history, manager_name,
	communication_style, sensitivity_notes, created_at, updated_at`

func (s *Store) GetProfile(ctx context.Context, employeeID string) (*followup.EmployeeProfile, error) {
	p, err := scanProfile(s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM employee_profiles
		WHERE employee_id = $1
	`, employeeID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// CreateProfile inserts p. An existing profile is left untouched.
func (s *Store) CreateProfile(ctx context.Context, p *followup.EmployeeProfile) error {
	concerns, err := marshalJSON(p.ConcernsMentioned, "[]")
	if err != nil {
		return err
	}
	history, err := marshalJSON(p.SatisfactionHistory, "[]")
	if err != nil {
		return err
	}
	now := p.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO employee_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (employee_id) DO NOTHING
	`, p.EmployeeID, concerns, history, p.ManagerName, p.CommunicationStyle, p.SensitivityNotes, now)
	if err != nil {
		return fmt.Errorf("create profile %s: %w", p.EmployeeID, err)
	}
	return nil
}

// applyProfileTx locks the profile row and merges u into it. It reports false
// when the employee has no profile.
func applyProfileTx(ctx context.Context, tx pgx.Tx, employeeID string, u followup.ProfileUpdate) (bool, error) {
	p, err := scanProfile(tx.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM employee_profiles
		WHERE employee_id = $1
		FOR UPDATE
	`, employeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock profile: %w", err)
	}

	p.Apply(u)
	concerns, err := marshalJSON(p.ConcernsMentioned, "[]")
	if err != nil {
		return false, err
	}
	history, err := marshalJSON(p.SatisfactionHistory, "[]")
	if err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE employee_profiles
		SET concerns_mentioned = $2, satisfaction_history = $3, updated_at = $4
		WHERE employee_id = $1
	`, employeeID, concerns, history, p.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update profile: %w", err)
	}
	return true, nil
}
