// Package transition drives verified mode changes on a Venus device.
//
// A transition is a command-then-verify sequence with a fixed state path:
//
//	Idle -> CommandSent -> Settling -> Verifying -> Verified | VerificationFailed
//
// The mode command is sent exactly once. A missing acknowledgment is recorded
// on the Report but does not stop the sequence, because devices sometimes
// apply a command without answering it. After a fixed settle wait the current
// mode is queried through package retry. The transition is Verified when a
// query returns a snapshot carrying a "mode" field.
//
// Verified does not mean the device reached the requested mode. The
// controller never compares the observed mode with the target; callers do
// that with Report.ObservedMode or Report.TargetReached.
//
// ExecuteAndRestore runs a transition and then always returns the device to
// a neutral manual schedule (zero power, whole day), whatever the first
// verdict was.
//
// All waits are blocking and go through a retry.Clock, so tests substitute
// a fake clock and run instantly.
package transition
