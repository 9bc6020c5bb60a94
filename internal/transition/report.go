package transition

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nerrad567/venus-bridge/internal/venus"
)

// Report is the outcome of one transition.
type Report struct {
	ID       string
	DeviceID string

	// Command is the command that was sent. TargetMode is Command.Mode().
	Command    venus.Command
	TargetMode string

	// Acknowledged is true only when SetMode returned true without error.
	Acknowledged bool

	// CommandErr holds the SetMode error, ErrNotAcknowledged, or a
	// validation error for commands that were never sent.
	CommandErr error

	// State is the terminal state. Path lists every state visited, in order.
	State State
	Path  []State

	// Observed is the last mode query result. It is empty when every
	// verification attempt failed.
	Observed venus.Snapshot

	// Attempts counts verification queries issued.
	Attempts int

	// VerifyErr is the error from the exhausted verification, if any.
	VerifyErr error

	StartedAt  time.Time
	FinishedAt time.Time
}

// Verified reports whether the transition ended in the Verified state.
func (r *Report) Verified() bool {
	return r != nil && r.State == Verified
}

// ObservedMode returns the mode from the verification query, or "".
func (r *Report) ObservedMode() string {
	if r == nil {
		return ""
	}
	return r.Observed.Mode()
}

// TargetReached reports whether the observed mode equals the target mode,
// ignoring case. It is independent of the verdict.
func (r *Report) TargetReached() bool {
	if r == nil || r.ObservedMode() == "" {
		return false
	}
	return strings.EqualFold(r.ObservedMode(), r.TargetMode)
}

// Duration is the wall time from start to finish.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Report) enter(s State) {
	r.State = s
	r.Path = append(r.Path, s)
}

// Summary is the serialisable form of a Report, as published over MQTT,
// returned by the API and stored in the history table.
type Summary struct {
	ID           string         `json:"id"`
	DeviceID     string         `json:"device_id"`
	TargetMode   string         `json:"target_mode"`
	Command      map[string]any `json:"command"`
	Acknowledged bool           `json:"acknowledged"`
	CommandError string         `json:"command_error,omitempty"`
	State        State          `json:"state"`
	ObservedMode string         `json:"observed_mode,omitempty"`
	Observed     venus.Snapshot `json:"observed"`
	Attempts     int            `json:"attempts"`
	Path         []State        `json:"path"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	DurationMS   int64          `json:"duration_ms"`
}

// Summary converts the report to its serialisable form.
func (r *Report) Summary() Summary {
	s := Summary{
		ID:           r.ID,
		DeviceID:     r.DeviceID,
		TargetMode:   r.TargetMode,
		Command:      venus.Params(r.Command),
		Acknowledged: r.Acknowledged,
		State:        r.State,
		ObservedMode: r.ObservedMode(),
		Observed:     r.Observed.Clone(),
		Attempts:     r.Attempts,
		Path:         append([]State(nil), r.Path...),
		StartedAt:    r.StartedAt.UTC(),
		FinishedAt:   r.FinishedAt.UTC(),
		DurationMS:   r.Duration().Milliseconds(),
	}
	if r.CommandErr != nil {
		s.CommandError = r.CommandErr.Error()
	}
	return s
}

// MarshalJSON encodes the report as its Summary.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Summary())
}
