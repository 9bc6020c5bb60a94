package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/venus-bridge/internal/retry"
	"github.com/nerrad567/venus-bridge/internal/transition"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

// betweenChecksDelay separates the status read from the mode switch.
const betweenChecksDelay = 10 * time.Second

type batteryReader interface {
	GetBatteryStatus(ctx context.Context) (venus.Snapshot, error)
}

type transitioner interface {
	ExecuteAndRestore(ctx context.Context, cmd venus.Command) (*transition.Report, *transition.Report)
	Config() transition.Config
}

// harness runs the checks in order and prints the verdicts.
type harness struct {
	gateway    batteryReader
	controller transitioner
	out        *console
	clock      retry.Clock
	skipSwitch bool
	target     string
}

// run reports whether every check passed.
func (h *harness) run(ctx context.Context) bool {
	h.out.banner("VENUS MODE TEST", "Target: "+h.target)

	passed := h.checkBatteryStatus(ctx)
	if h.skipSwitch {
		h.out.banner("MODE TEST COMPLETE")
		return passed
	}

	h.out.step(fmt.Sprintf("\nWaiting %s before next test...\n", betweenChecksDelay))
	h.clock.Sleep(betweenChecksDelay)
	if ctx.Err() != nil {
		h.out.bad("interrupted, mode left unchanged")
		return false
	}

	passed = h.checkModeSwitch(ctx) && passed
	h.out.banner("MODE TEST COMPLETE")
	return passed
}

func (h *harness) checkBatteryStatus(ctx context.Context) bool {
	const name = "Bat.GetStatus"
	schedule := retry.StatusCheckSchedule

	h.out.heading(name + " (with retries)")
	out, err := retry.Do(retry.Policy{
		Name:     "battery status",
		Schedule: schedule,
		Clock:    h.clock,
		Logger:   h.out,
	}, func(attempt int) (venus.Snapshot, error) {
		h.out.step(fmt.Sprintf("Attempt %d...", attempt))
		snap, err := h.gateway.GetBatteryStatus(ctx)
		if err != nil {
			return nil, err
		}
		if err := snap.Require(venus.FieldSOC); err != nil {
			return nil, err
		}
		return snap, nil
	})
	if err != nil {
		h.out.fail(name, fmt.Sprintf("no valid response after %d attempts", schedule.MaxAttempts()))
		h.out.printf("  Error: %v\n", err)
		return false
	}

	h.out.pass(name)
	snap := out.Value
	h.out.field("SOC", snap["soc"], "%")
	h.out.field("Temp", snap["bat_temp"], "°C")
	h.out.field("Capacity", snap["bat_capacity"], "Wh")
	h.out.field("Rated", snap["rated_capacity"], "Wh")
	h.out.dump(snap)
	return true
}

// checkModeSwitch switches to AI mode and verifies it. The controller then
// restores the neutral manual schedule whatever the first verdict was. The
// pair runs uncancelled so an interrupt cannot leave the device half switched.
func (h *harness) checkModeSwitch(ctx context.Context) bool {
	h.out.heading("ES.GetMode (after AI Mode)")
	h.out.step("Step 1: Switch to AI mode and verify...")
	h.out.step(fmt.Sprintf("Step 2: Restore Manual mode %s later...", h.controller.Config().RestoreDelay))

	switched, restored := h.controller.ExecuteAndRestore(context.WithoutCancel(ctx), venus.AutoCommand{})

	passed := h.reportTransition("ES.GetMode", switched)
	h.out.printf("\n")
	return h.reportTransition("Restore Manual", restored) && passed
}

func (h *harness) reportTransition(name string, r *transition.Report) bool {
	if r.Acknowledged {
		h.out.ok(r.TargetMode + " mode command acknowledged")
	} else {
		h.out.bad(fmt.Sprintf("%s mode command not acknowledged: %v", r.TargetMode, r.CommandErr))
	}

	if !r.Verified() {
		h.out.fail(name, fmt.Sprintf("no valid mode response after %d attempts", r.Attempts))
		if !r.Observed.Empty() {
			h.out.dump(r.Observed)
		}
		return false
	}

	h.out.pass(name)
	h.out.field("Mode", r.Observed["mode"], "")
	h.out.field("Grid Power", r.Observed["ongrid_power"], "W")
	h.out.field("SOC", r.Observed["bat_soc"], "%")
	if !r.TargetReached() {
		h.out.warn(fmt.Sprintf("device reports mode %q, expected %q", r.ObservedMode(), r.TargetMode))
	}
	h.out.dump(r.Observed)
	return true
}
