package mqtt

import "time"

// eventQueueSize bounds the number of undrained connection events.
const eventQueueSize = 64

// EventKind classifies a connection lifecycle event.
type EventKind string

// Connection lifecycle events reported by the client.
const (
	EventConnected      EventKind = "connected"
	EventConnectionLost EventKind = "connection_lost"
	EventReconnecting   EventKind = "reconnecting"
)

// ConnectionEvent records a change in broker connectivity.
type ConnectionEvent struct {
	Kind EventKind
	Err  error
	At   time.Time
}

// pushEvent enqueues ev, discarding the oldest event when the queue is full.
// It never blocks the paho callback goroutine.
func (c *Client) pushEvent(ev ConnectionEvent) {
	for {
		select {
		case c.events <- ev:
			return
		default:
		}
		select {
		case <-c.events:
		default:
		}
	}
}

// DrainEvents returns every queued event in arrival order without blocking.
func (c *Client) DrainEvents() []ConnectionEvent {
	var out []ConnectionEvent
	for {
		select {
		case ev := <-c.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
