package retry

import (
	"fmt"
	"time"
)

// Standard schedules.
var (
	// StatusCheckSchedule is used when reading battery status ahead of a
	// mode change: three attempts, waiting 5s then 10s.
	StatusCheckSchedule = Schedule{5 * time.Second, 10 * time.Second}

	// ModeQuerySchedule is used when verifying a mode change: two
	// attempts, 5s apart.
	ModeQuerySchedule = Schedule{5 * time.Second}
)

// Schedule is the ordered list of waits between attempts.
type Schedule []time.Duration

// MaxAttempts is the total number of attempts the schedule permits.
func (s Schedule) MaxAttempts() int {
	return len(s) + 1
}

// Total is the sum of all waits, the longest time Do spends sleeping.
func (s Schedule) Total() time.Duration {
	var total time.Duration
	for _, d := range s {
		total += d
	}
	return total
}

// Clock abstracts time for retry waits.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks for d.
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Logger is the optional logging interface used by Do.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Policy configures a retry run.
type Policy struct {
	// Name identifies the operation in log output.
	Name string

	Schedule Schedule

	// Clock defaults to SystemClock.
	Clock Clock

	// Logger is optional.
	Logger Logger
}

// Outcome reports the result of a successful run.
type Outcome[T any] struct {
	Value T

	// Attempts is the 1-based number of the successful attempt.
	Attempts int

	// Waited is the total delay slept before success.
	Waited time.Duration
}

// Do invokes op until it succeeds or the schedule is exhausted.
//
// op receives the 1-based attempt number. After a failed attempt Do waits
// the next delay in the schedule and tries again. When all attempts have
// failed the returned error wraps ErrExhausted and the last attempt's error.
//
// Example:
//
//	out, err := retry.Do(retry.Policy{Name: "battery status", Schedule: retry.StatusCheckSchedule},
//	    func(attempt int) (venus.Snapshot, error) {
//	        return client.GetBatteryStatus(ctx)
//	    })
func Do[T any](p Policy, op func(attempt int) (T, error)) (Outcome[T], error) {
	var zero Outcome[T]
	if op == nil {
		return zero, ErrNilOperation
	}

	clock := p.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	var (
		waited  time.Duration
		lastErr error
	)
	maxAttempts := p.Schedule.MaxAttempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value, err := op(attempt)
		if err == nil {
			if attempt > 1 && p.Logger != nil {
				p.Logger.Debug("retry succeeded",
					"operation", p.Name,
					"attempt", attempt,
					"waited", waited,
				)
			}
			return Outcome[T]{Value: value, Attempts: attempt, Waited: waited}, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		delay := p.Schedule[attempt-1]
		if p.Logger != nil {
			p.Logger.Warn("attempt failed, retrying",
				"operation", p.Name,
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"retry_in", delay,
				"error", err,
			)
		}
		clock.Sleep(delay)
		waited += delay
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}
