package transition

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/venus-bridge/internal/retry"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

// Default waits.
const (
	DefaultAutoSettle   = 10 * time.Second
	DefaultManualSettle = 5 * time.Second
	DefaultRestoreDelay = 5 * time.Second
)

// recordTimeout bounds a single history write.
const recordTimeout = 5 * time.Second

// Gateway is the part of the device gateway the controller needs.
type Gateway interface {
	SetMode(ctx context.Context, cmd venus.Command) (bool, error)
	GetMode(ctx context.Context) (venus.Snapshot, error)
}

// Recorder persists finished reports.
type Recorder interface {
	Record(ctx context.Context, r *Report) error
}

// Logger defines the logging interface used by the Controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds transition timings.
type Config struct {
	// DeviceID is copied into every report.
	DeviceID string

	// AutoSettle is the wait after an AutoCommand. Default: 10s.
	AutoSettle time.Duration

	// ManualSettle is the wait after a ManualCommand. Default: 5s.
	ManualSettle time.Duration

	// VerifySchedule is the retry schedule for the mode query.
	// Default: retry.ModeQuerySchedule.
	VerifySchedule retry.Schedule

	// RestoreDelay is the wait before the restore transition. Default: 5s.
	RestoreDelay time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		AutoSettle:     DefaultAutoSettle,
		ManualSettle:   DefaultManualSettle,
		VerifySchedule: retry.ModeQuerySchedule,
		RestoreDelay:   DefaultRestoreDelay,
	}
}

// Controller runs mode transitions against one device.
//
// Thread Safety: a Controller holds no per-transition state, but the device
// should only see one transition at a time. The poller guarantees this by
// running transitions on its own goroutine.
type Controller struct {
	gw       Gateway
	cfg      Config
	recorder Recorder
	logger   Logger
	clock    retry.Clock
}

// NewController creates a transition controller.
//
// Parameters:
//   - gw: Device gateway used for SetMode and GetMode
//   - cfg: Transition timings (zero values are not replaced; use DefaultConfig)
//   - recorder: History store for finished reports (may be nil)
//   - logger: Logger instance (may be nil)
func NewController(gw Gateway, cfg Config, recorder Recorder, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		gw:       gw,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		clock:    retry.SystemClock{},
	}
}

// SetClock replaces the clock used for waits and timestamps.
func (c *Controller) SetClock(clock retry.Clock) {
	if clock != nil {
		c.clock = clock
	}
}

// Config returns the controller's timings.
func (c *Controller) Config() Config {
	return c.cfg
}

// Execute runs one command-then-verify transition and returns its report.
// It never returns nil.
//
// A command that fails validation is never sent; the report goes straight
// to VerificationFailed with CommandErr set.
func (c *Controller) Execute(ctx context.Context, cmd venus.Command) *Report {
	r := &Report{
		ID:        uuid.NewString(),
		DeviceID:  c.cfg.DeviceID,
		Command:   cmd,
		StartedAt: c.clock.Now(),
	}
	r.enter(Idle)

	if cmd == nil {
		r.CommandErr = ErrNilCommand
		return c.finish(ctx, r, VerificationFailed)
	}
	r.TargetMode = cmd.Mode()
	if err := cmd.Validate(); err != nil {
		r.CommandErr = err
		c.logger.Warn("mode command rejected", "transition_id", r.ID, "command", cmd, "error", err)
		return c.finish(ctx, r, VerificationFailed)
	}

	r.enter(CommandSent)
	ack, err := c.gw.SetMode(ctx, cmd)
	switch {
	case err != nil:
		r.CommandErr = err
	case !ack:
		r.CommandErr = ErrNotAcknowledged
	default:
		r.Acknowledged = true
	}
	if r.CommandErr != nil {
		c.logger.Warn("mode command not acknowledged, verifying anyway",
			"transition_id", r.ID,
			"command", cmd,
			"error", r.CommandErr,
		)
	} else {
		c.logger.Info("mode command acknowledged", "transition_id", r.ID, "command", cmd)
	}

	r.enter(Settling)
	c.clock.Sleep(c.settleFor(cmd))

	r.enter(Verifying)
	var last venus.Snapshot
	out, err := retry.Do(retry.Policy{
		Name:     "mode query",
		Schedule: c.cfg.VerifySchedule,
		Clock:    c.clock,
		Logger:   c.logger,
	}, func(attempt int) (venus.Snapshot, error) {
		r.Attempts = attempt
		snap, err := c.gw.GetMode(ctx)
		if err != nil {
			return nil, err
		}
		last = snap
		if !snap.Has(venus.FieldMode) {
			return nil, fmt.Errorf("%w: attempt %d", ErrModeMissing, attempt)
		}
		return snap, nil
	})

	if err != nil {
		r.VerifyErr = err
		r.Observed = last.Clone()
		return c.finish(ctx, r, VerificationFailed)
	}
	r.Observed = out.Value
	return c.finish(ctx, r, Verified)
}

// ExecuteAndRestore runs cmd, waits the restore delay, then always runs the
// neutral manual command. Both reports are returned.
func (c *Controller) ExecuteAndRestore(ctx context.Context, cmd venus.Command) (*Report, *Report) {
	first := c.Execute(ctx, cmd)

	c.logger.Info("restoring neutral manual schedule",
		"after", first.ID,
		"first_state", first.State,
		"delay", c.cfg.RestoreDelay,
	)
	c.clock.Sleep(c.cfg.RestoreDelay)

	restore := c.Execute(ctx, venus.NeutralManual())
	return first, restore
}

func (c *Controller) settleFor(cmd venus.Command) time.Duration {
	if _, ok := cmd.(venus.AutoCommand); ok {
		return c.cfg.AutoSettle
	}
	return c.cfg.ManualSettle
}

func (c *Controller) finish(ctx context.Context, r *Report, terminal State) *Report {
	r.enter(terminal)
	r.FinishedAt = c.clock.Now()

	args := []any{
		"transition_id", r.ID,
		"target_mode", r.TargetMode,
		"state", r.State,
		"observed_mode", r.ObservedMode(),
		"acknowledged", r.Acknowledged,
		"attempts", r.Attempts,
	}
	if r.Verified() {
		c.logger.Info("mode transition verified", args...)
	} else {
		if r.VerifyErr != nil {
			args = append(args, "error", r.VerifyErr)
		}
		c.logger.Warn("mode transition verification failed", args...)
	}

	if c.recorder != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if err := c.recorder.Record(rctx, r); err != nil {
			c.logger.Error("recording transition failed", "transition_id", r.ID, "error", err)
		}
	}
	return r
}
