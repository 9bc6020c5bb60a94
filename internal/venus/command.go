package venus

import (
	"fmt"
	"strings"
	"time"
)

// Operating modes reported and accepted by the device.
const (
	ModeAI      = "AI"
	ModeManual  = "Manual"
	ModeAuto    = "Auto"
	ModePassive = "Passive"
)

// Manual schedule defaults.
const (
	// AllWeekdays is the week_set bitmask for Monday through Sunday.
	AllWeekdays uint8 = 0x7f

	// MaxSlot is the highest manual schedule slot index.
	MaxSlot = 9

	dayStart = "00:00"
	dayEnd   = "23:59"
)

// Command is a mode change request. The set of implementations is closed:
// AutoCommand and ManualCommand.
type Command interface {
	// Mode is the mode the command asks the device to enter.
	Mode() string

	// Validate checks the command before anything is sent.
	Validate() error

	// config builds the ES.SetMode "config" parameter.
	config() map[string]any
}

// AutoCommand switches the device to self-optimising AI mode.
type AutoCommand struct{}

// Mode returns ModeAI.
func (AutoCommand) Mode() string { return ModeAI }

// Validate always succeeds.
func (AutoCommand) Validate() error { return nil }

func (AutoCommand) config() map[string]any {
	return map[string]any{
		"mode":   ModeAI,
		"ai_cfg": map[string]any{"enable": 1},
	}
}

// String implements fmt.Stringer.
func (AutoCommand) String() string { return "AI" }

// ManualCommand sets a fixed-power manual schedule.
//
// Power is in watts; positive discharges, negative charges, zero holds.
// StartTime and EndTime are "HH:MM". Weekdays is a bitmask with bit 0 for
// Monday; zero means every day. Slot selects one of the device's manual
// schedule entries.
type ManualCommand struct {
	Power     int
	StartTime string
	EndTime   string
	Weekdays  uint8
	Slot      int
}

// NeutralManual is the whole-day, zero-power manual schedule used to restore
// a known state after a mode test.
func NeutralManual() ManualCommand {
	return ManualCommand{
		Power:     0,
		StartTime: dayStart,
		EndTime:   dayEnd,
		Weekdays:  AllWeekdays,
	}
}

// Mode returns ModeManual.
func (ManualCommand) Mode() string { return ModeManual }

// Validate checks time format, weekday mask and slot range.
func (m ManualCommand) Validate() error {
	start, err := parseClock(m.startTime())
	if err != nil {
		return fmt.Errorf("%w: start_time: %w", ErrInvalidCommand, err)
	}
	end, err := parseClock(m.endTime())
	if err != nil {
		return fmt.Errorf("%w: end_time: %w", ErrInvalidCommand, err)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: end_time %s is not after start_time %s", ErrInvalidCommand, m.endTime(), m.startTime())
	}
	if m.Weekdays > AllWeekdays {
		return fmt.Errorf("%w: weekday mask %#x out of range", ErrInvalidCommand, m.Weekdays)
	}
	if m.Slot < 0 || m.Slot > MaxSlot {
		return fmt.Errorf("%w: slot %d out of range 0-%d", ErrInvalidCommand, m.Slot, MaxSlot)
	}
	return nil
}

func (m ManualCommand) config() map[string]any {
	weekdays := m.Weekdays
	if weekdays == 0 {
		weekdays = AllWeekdays
	}
	return map[string]any{
		"mode": ModeManual,
		"manual_cfg": map[string]any{
			"time_num":   m.Slot,
			"start_time": m.startTime(),
			"end_time":   m.endTime(),
			"week_set":   weekdays,
			"power":      m.Power,
			"enable":     1,
		},
	}
}

// String implements fmt.Stringer.
func (m ManualCommand) String() string {
	return fmt.Sprintf("Manual(%dW %s-%s)", m.Power, m.startTime(), m.endTime())
}

func (m ManualCommand) startTime() string {
	if m.StartTime == "" {
		return dayStart
	}
	return m.StartTime
}

func (m ManualCommand) endTime() string {
	if m.EndTime == "" {
		return dayEnd
	}
	return m.EndTime
}

func parseClock(s string) (time.Time, error) {
	if len(s) != len("15:04") || strings.Count(s, ":") != 1 {
		return time.Time{}, fmt.Errorf("%q is not HH:MM", s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not HH:MM", s)
	}
	return t, nil
}

// Params returns the ES.SetMode "config" parameter cmd would send. It is
// used to record commands in transition history.
func Params(cmd Command) map[string]any {
	if cmd == nil {
		return nil
	}
	return cmd.config()
}

// Compile-time interface checks.
var (
	_ Command = AutoCommand{}
	_ Command = ManualCommand{}
)
