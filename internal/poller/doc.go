// Package poller runs the process-lifetime poll and publish loop.
//
// Each iteration of Run, on a single goroutine:
//
//  1. returns if the context is cancelled
//  2. drains broker connection events queued by the MQTT client
//  3. executes queued mode requests through the transition controller
//  4. runs one poll cycle (RunCycle)
//  5. waits the poll interval, or returns on cancellation
//
// A poll cycle makes exactly one GetData attempt. A failed, empty or
// malformed fetch skips the cycle without publishing. A valid snapshot is
// stamped with the publish-time UTC instant and published as flat JSON to
// {topic_prefix}/{device_id}/data. Publish failures are logged and the loop
// carries on; so are panics, which are recovered at the cycle boundary.
//
// Device and broker calls run under context.WithoutCancel, so shutdown
// never interrupts an in-flight exchange. Cancellation is only observed
// between steps and during the interval wait.
package poller
