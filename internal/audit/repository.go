// Package audit keeps a trail of mode change requests received over the API
// and MQTT, whether they were queued or refused.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions.
const (
	ActionModeRequest = "mode.request"
)

// Outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Entry is one audit record.
type Entry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Source    string         `json:"source"`
	Subject   string         `json:"subject,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Outcome   string         `json:"outcome"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Action  string
	Source  string
	Outcome string
	Limit   int // default 50, max 200
	Offset  int
}

// ListResult is a page of entries plus the total matching count.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and queries audit entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) (*ListResult, error)
}

// SQLiteRepository implements Repository on the audit_log table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts e, filling ID and CreatedAt when they are empty.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - e: Entry to store; Action, Source and Outcome are required
//
// Returns:
//   - error: nil on success, otherwise a validation or database error
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e == nil {
		return fmt.Errorf("audit entry is required")
	}
	if e.Action == "" || e.Source == "" || e.Outcome == "" {
		return fmt.Errorf("audit entry needs action, source and outcome")
	}
	if e.ID == "" {
		e.ID = "aud-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	var details any
	if len(e.Details) > 0 {
		data, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = string(data)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, source, subject, request_id, outcome, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.Source, nullable(e.Subject), nullable(e.RequestID),
		e.Outcome, details, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns entries matching f, newest first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) (*ListResult, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		conds []string
		args  []any
	)
	for col, val := range map[string]string{"action": f.Action, "source": f.Source, "outcome": f.Outcome} {
		if val != "" {
			conds = append(conds, col+" = ?")
			args = append(args, val)
		}
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, action, source, subject, request_id, outcome, details, created_at
		 FROM audit_log`+where+`
		 ORDER BY created_at DESC, id
		 LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e                           Entry
			subject, requestID, details sql.NullString
			createdAt                   int64
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.Source, &subject, &requestID,
			&e.Outcome, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshalling audit details: %w", err)
			}
		}
		e.Subject = subject.String
		e.RequestID = requestID.String
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ModeRequest builds the entry for a mode request. A non-nil reason marks it
// rejected and is kept under details["error"].
func ModeRequest(source, subject, requestID string, details map[string]any, reason error) *Entry {
	e := &Entry{
		Action:    ActionModeRequest,
		Source:    source,
		Subject:   subject,
		RequestID: requestID,
		Outcome:   OutcomeAccepted,
		Details:   details,
	}
	if reason != nil {
		e.Outcome = OutcomeRejected
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		e.Details["error"] = reason.Error()
	}
	return e
}
