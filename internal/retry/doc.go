// Package retry runs an operation against a fixed schedule of delays.
//
// A Schedule lists the waits between attempts: a schedule of N delays
// allows N+1 attempts. The schedule is exhausted only after every delay has
// been waited and every attempt has failed; Do never returns early with
// attempts left.
//
// Waiting goes through a Clock so tests can run schedules without sleeping.
// Waits are blocking and are not interrupted by context cancellation; a
// caller that needs to stop sooner cancels the operation itself.
//
// Two schedules are used by the bridge:
//
//	StatusCheckSchedule // 5s, 10s: battery status before a mode change
//	ModeQuerySchedule   // 5s: mode verification after a mode change
package retry
