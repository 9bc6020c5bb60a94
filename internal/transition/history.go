package transition

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/venus-bridge/internal/venus"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteHistory stores transition reports in the mode_transitions table.
type SQLiteHistory struct {
	db *sql.DB
}

var _ Recorder = (*SQLiteHistory)(nil)

// NewSQLiteHistory creates a history store on an open, migrated database.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteHistory: Store ready for use
func NewSQLiteHistory(db *sql.DB) *SQLiteHistory {
	return &SQLiteHistory{db: db}
}

// Record inserts a finished report.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - r: Report in a terminal state
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (h *SQLiteHistory) Record(ctx context.Context, r *Report) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("report id is required")
	}
	s := r.Summary()

	commandJSON, err := json.Marshal(s.Command)
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}
	observedJSON, err := json.Marshal(s.Observed)
	if err != nil {
		return fmt.Errorf("marshalling observed snapshot: %w", err)
	}
	pathJSON, err := json.Marshal(s.Path)
	if err != nil {
		return fmt.Errorf("marshalling state path: %w", err)
	}

	_, err = h.db.ExecContext(ctx,
		`INSERT INTO mode_transitions
		 (id, device_id, target_mode, command, acknowledged, command_error,
		  state, observed_mode, observed, attempts, path, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.DeviceID, s.TargetMode, string(commandJSON),
		boolToInt(s.Acknowledged), nullableString(s.CommandError),
		string(s.State), nullableString(s.ObservedMode), string(observedJSON),
		s.Attempts, string(pathJSON),
		s.StartedAt.UnixNano(), s.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting mode transition: %w", err)
	}
	return nil
}

// List returns recent transitions, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Summary: Entries ordered by started_at DESC
//   - error: nil on success, otherwise the underlying query error
func (h *SQLiteHistory) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, device_id, target_mode, command, acknowledged, command_error,
		        state, observed_mode, observed, attempts, path, started_at, finished_at
		 FROM mode_transitions
		 ORDER BY started_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying mode transitions: %w", err)
	}
	defer rows.Close()

	entries := make([]Summary, 0, limit)
	for rows.Next() {
		var (
			s                               Summary
			commandJSON, observedJSON, path string
			acknowledged                    int
			commandErr, observedMode        sql.NullString
			state                           string
			startedAt, finishedAt           int64
		)
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.TargetMode, &commandJSON, &acknowledged, &commandErr,
			&state, &observedMode, &observedJSON, &s.Attempts, &path, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning mode transition: %w", err)
		}

		if err := json.Unmarshal([]byte(commandJSON), &s.Command); err != nil {
			return nil, fmt.Errorf("unmarshalling command: %w", err)
		}
		if err := json.Unmarshal([]byte(observedJSON), &s.Observed); err != nil {
			return nil, fmt.Errorf("unmarshalling observed snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(path), &s.Path); err != nil {
			return nil, fmt.Errorf("unmarshalling state path: %w", err)
		}
		if s.Observed == nil {
			s.Observed = venus.Snapshot{}
		}

		s.Acknowledged = acknowledged != 0
		s.CommandError = commandErr.String
		s.ObservedMode = observedMode.String
		s.State = State(state)
		s.StartedAt = time.Unix(0, startedAt).UTC()
		s.FinishedAt = time.Unix(0, finishedAt).UTC()
		s.DurationMS = s.FinishedAt.Sub(s.StartedAt).Milliseconds()

		entries = append(entries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mode transitions: %w", err)
	}
	return entries, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableString maps "" to NULL for optional TEXT columns.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
