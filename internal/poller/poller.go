package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/venus-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/venus-bridge/internal/transition"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

// TimestampLayout is the format of the published "timestamp" field:
// ISO-8601 UTC with microseconds and a trailing Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Defaults.
const (
	DefaultInterval  = 60 * time.Second
	DefaultQueueSize = 8
)

// WebSocket broadcast channels.
const (
	ChannelTelemetry  = "telemetry.published"
	ChannelTransition = "mode.transition"
)

// Source fetches a telemetry snapshot.
type Source interface {
	GetData(ctx context.Context) (venus.Snapshot, error)
}

// Publisher delivers payloads to the broker.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// EventSource yields broker connection events queued since the last call.
type EventSource interface {
	DrainEvents() []mqtt.ConnectionEvent
}

// Transitioner runs mode transitions.
type Transitioner interface {
	Execute(ctx context.Context, cmd venus.Command) *transition.Report
	ExecuteAndRestore(ctx context.Context, cmd venus.Command) (*transition.Report, *transition.Report)
}

// Sink receives published telemetry and finished transitions for storage.
type Sink interface {
	WriteTelemetry(deviceID string, snapshot map[string]any, ts time.Time)
	WriteTransition(rec influxdb.TransitionRecord)
}

// Observer receives live events, typically the WebSocket hub.
type Observer interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the Poller.
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

// Options holds poll loop settings.
type Options struct {
	// Topics builds the data and transition topics.
	Topics mqtt.Topics

	// Interval is the wait between cycles. Default: 60s.
	Interval time.Duration

	QoS    byte
	Retain bool

	// RequiredFields must all be present for a snapshot to be published.
	// Default: ["soc"].
	RequiredFields []string

	// QueueSize bounds pending mode requests. Default: 8.
	QueueSize int

	// Now returns the publish-time instant. Default: time.Now.
	Now func() time.Time
}

// Deps holds the collaborators of the poll loop. Source and Publisher are
// required; the rest are optional.
type Deps struct {
	Source      Source
	Publisher   Publisher
	Events      EventSource
	Transitions Transitioner
	Sink        Sink
	Observer    Observer
	Logger      Logger
}

// CycleResult is the outcome of one poll cycle.
type CycleResult string

// Cycle outcomes.
const (
	CyclePublished     CycleResult = "published"
	CycleSkipped       CycleResult = "skipped"
	CyclePublishFailed CycleResult = "publish_failed"
	CycleFailed        CycleResult = "failed"
)

// Poller is the poll and publish loop.
//
// Thread Safety: Run, RunCycle and the request queue are meant for a single
// loop goroutine. Submit, HandleModeCommand and Status are safe for
// concurrent use.
type Poller struct {
	source      Source
	publisher   Publisher
	events      EventSource
	transitions Transitioner
	sink        Sink
	observer    Observer
	logger      Logger

	opts     Options
	requests chan ModeRequest

	running         atomic.Bool
	cycles          atomic.Uint64
	published       atomic.Uint64
	skipped         atomic.Uint64
	publishFailures atomic.Uint64
	failed          atomic.Uint64

	mu              sync.RWMutex
	lastResult      CycleResult
	lastPublishedAt time.Time
	lastSnapshot    venus.Snapshot
	brokerConnected bool
	lastBrokerEvent *BrokerEvent
	lastTransition  *TransitionEvent
}

// BrokerEvent is the last broker connection event seen by the loop.
type BrokerEvent struct {
	Kind  mqtt.EventKind `json:"kind"`
	At    time.Time      `json:"at"`
	Error string         `json:"error,omitempty"`
}

// New creates a poll loop.
//
// Parameters:
//   - deps: Collaborators (Source and Publisher required)
//   - opts: Loop settings; zero values take defaults
//
// Returns:
//   - *Poller: Loop ready to Run
//   - error: If a required dependency is missing
func New(deps Deps, opts Options) (*Poller, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("telemetry source is required")
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RequiredFields == nil {
		opts.RequiredFields = []string{venus.FieldSOC}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Poller{
		source:          deps.Source,
		publisher:       deps.Publisher,
		events:          deps.Events,
		transitions:     deps.Transitions,
		sink:            deps.Sink,
		observer:        deps.Observer,
		logger:          deps.Logger,
		opts:            opts,
		requests:        make(chan ModeRequest, opts.QueueSize),
		brokerConnected: deps.Publisher.IsConnected(),
	}, nil
}

// Run drives the loop until ctx is cancelled, then returns nil.
func (p *Poller) Run(ctx context.Context) error {
	p.running.Store(true)
	defer p.running.Store(false)

	p.logger.Info("poll loop started",
		"interval", p.opts.Interval,
		"topic", p.opts.Topics.Data(),
		"qos", p.opts.QoS,
		"retain", p.opts.Retain,
	)

	for {
		if ctx.Err() != nil {
			p.logger.Info("poll loop stopped")
			return nil
		}

		p.drainEvents()
		p.runRequests(ctx)
		p.RunCycle(ctx)

		timer := time.NewTimer(p.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("poll loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle performs one fetch and publish attempt.
func (p *Poller) RunCycle(ctx context.Context) (result CycleResult) {
	p.cycles.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("poll cycle panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = CycleFailed
		}
		p.recordResult(result)
	}()

	callCtx := context.WithoutCancel(ctx)

	snap, err := p.source.GetData(callCtx)
	if err != nil {
		p.logger.Warn("telemetry fetch failed, skipping cycle", "error", err)
		return CycleSkipped
	}
	if snap.Empty() {
		p.logger.Warn("telemetry fetch returned no data, skipping cycle")
		return CycleSkipped
	}
	if err := snap.Require(p.opts.RequiredFields...); err != nil {
		p.logger.Warn("telemetry snapshot invalid, skipping cycle", "error", err)
		return CycleSkipped
	}

	now := p.opts.Now().UTC()
	payload := snap.Clone()
	payload[venus.FieldTimestamp] = now.Format(TimestampLayout)

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("encoding telemetry failed", "error", err)
		return CycleFailed
	}

	topic := p.opts.Topics.Data()
	if err := p.publisher.Publish(topic, data, p.opts.QoS, p.opts.Retain); err != nil {
		p.logger.Warn("telemetry publish failed", "topic", topic, "error", err)
		return CyclePublishFailed
	}
	p.logger.Debug("telemetry published", "topic", topic, "fields", len(payload))

	p.mu.Lock()
	p.lastSnapshot = payload
	p.lastPublishedAt = now
	p.mu.Unlock()

	if p.sink != nil {
		p.sink.WriteTelemetry(p.opts.Topics.DeviceID, payload, now)
	}
	if p.observer != nil {
		p.observer.Broadcast(ChannelTelemetry, payload.Clone())
	}
	return CyclePublished
}

func (p *Poller) recordResult(result CycleResult) {
	switch result {
	case CyclePublished:
		p.published.Add(1)
	case CycleSkipped:
		p.skipped.Add(1)
	case CyclePublishFailed:
		p.publishFailures.Add(1)
	case CycleFailed:
		p.failed.Add(1)
	}
	p.mu.Lock()
	p.lastResult = result
	p.mu.Unlock()
}

// drainEvents folds queued broker events into the loop's connection state.
func (p *Poller) drainEvents() {
	if p.events == nil {
		return
	}
	for _, ev := range p.events.DrainEvents() {
		be := &BrokerEvent{Kind: ev.Kind, At: ev.At}
		if ev.Err != nil {
			be.Error = ev.Err.Error()
		}

		p.mu.Lock()
		switch ev.Kind {
		case mqtt.EventConnected:
			p.brokerConnected = true
		case mqtt.EventConnectionLost, mqtt.EventReconnecting:
			p.brokerConnected = false
		}
		p.lastBrokerEvent = be
		p.mu.Unlock()

		switch ev.Kind {
		case mqtt.EventConnected:
			p.logger.Info("broker connected", "at", ev.At)
		case mqtt.EventConnectionLost:
			p.logger.Warn("broker connection lost", "at", ev.At, "error", ev.Err)
		default:
			p.logger.Debug("broker event", "kind", ev.Kind, "at", ev.At)
		}
	}
}
