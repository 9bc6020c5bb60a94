package poller

import "time"

// Status is a point-in-time view of the loop.
type Status struct {
	DeviceID        string           `json:"device_id"`
	Running         bool             `json:"running"`
	Interval        string           `json:"interval"`
	Cycles          uint64           `json:"cycles"`
	Published       uint64           `json:"published"`
	Skipped         uint64           `json:"skipped"`
	PublishFailures uint64           `json:"publish_failures"`
	Failed          uint64           `json:"failed"`
	LastResult      CycleResult      `json:"last_result,omitempty"`
	LastPublishedAt *time.Time       `json:"last_published_at,omitempty"`
	LastSnapshot    map[string]any   `json:"last_snapshot,omitempty"`
	BrokerConnected bool             `json:"broker_connected"`
	LastBrokerEvent *BrokerEvent     `json:"last_broker_event,omitempty"`
	PendingRequests int              `json:"pending_requests"`
	LastTransition  *TransitionEvent `json:"last_transition,omitempty"`
}

// Status returns counters and the most recent snapshot and transition.
func (p *Poller) Status() Status {
	s := Status{
		DeviceID:        p.opts.Topics.DeviceID,
		Running:         p.running.Load(),
		Interval:        p.opts.Interval.String(),
		Cycles:          p.cycles.Load(),
		Published:       p.published.Load(),
		Skipped:         p.skipped.Load(),
		PublishFailures: p.publishFailures.Load(),
		Failed:          p.failed.Load(),
		PendingRequests: p.PendingRequests(),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	s.LastResult = p.lastResult
	s.BrokerConnected = p.brokerConnected
	if !p.lastPublishedAt.IsZero() {
		t := p.lastPublishedAt
		s.LastPublishedAt = &t
	}
	if p.lastSnapshot != nil {
		s.LastSnapshot = p.lastSnapshot.Clone()
	}
	if p.lastBrokerEvent != nil {
		ev := *p.lastBrokerEvent
		s.LastBrokerEvent = &ev
	}
	if p.lastTransition != nil {
		tr := *p.lastTransition
		s.LastTransition = &tr
	}
	return s
}
