package poller

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/venus-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/venus-bridge/internal/transition"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

type sourceReply struct {
	snap  venus.Snapshot
	err   error
	panic any
}

// mockSource replays scripted GetData results, repeating the last one.
type mockSource struct {
	mu      sync.Mutex
	replies []sourceReply
	calls   int
	onFetch func()
}

func (s *mockSource) GetData(context.Context) (venus.Snapshot, error) {
	s.mu.Lock()
	s.calls++
	var r sourceReply
	if len(s.replies) > 0 {
		r = s.replies[0]
		if len(s.replies) > 1 {
			s.replies = s.replies[1:]
		}
	}
	onFetch := s.onFetch
	s.mu.Unlock()

	if onFetch != nil {
		onFetch()
	}
	if r.panic != nil {
		panic(r.panic)
	}
	if r.snap == nil {
		return r.snap, r.err
	}
	return r.snap.Clone(), r.err
}

func (s *mockSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type mockPublisher struct {
	mu        sync.Mutex
	messages  []publishedMessage
	err       error
	connected bool
}

func (p *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (p *mockPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *mockPublisher) published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.messages...)
}

type mockEvents struct {
	mu     sync.Mutex
	queued []mqtt.ConnectionEvent
}

func (e *mockEvents) push(ev mqtt.ConnectionEvent) {
	e.mu.Lock()
	e.queued = append(e.queued, ev)
	e.mu.Unlock()
}

func (e *mockEvents) DrainEvents() []mqtt.ConnectionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.queued
	e.queued = nil
	return out
}

// mockTransitioner returns canned reports and records commands.
type mockTransitioner struct {
	mu       sync.Mutex
	commands []venus.Command
	restores int
	observed venus.Snapshot
}

func (t *mockTransitioner) report(cmd venus.Command) *transition.Report {
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	return &transition.Report{
		ID:           "tr-" + cmd.Mode(),
		DeviceID:     "venus-test",
		Command:      cmd,
		TargetMode:   cmd.Mode(),
		Acknowledged: true,
		State:        transition.Verified,
		Path:         []transition.State{transition.Idle, transition.CommandSent, transition.Settling, transition.Verifying, transition.Verified},
		Observed:     t.observed.Clone(),
		Attempts:     1,
		StartedAt:    start,
		FinishedAt:   start.Add(10 * time.Second),
	}
}

func (t *mockTransitioner) Execute(_ context.Context, cmd venus.Command) *transition.Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commands = append(t.commands, cmd)
	return t.report(cmd)
}

func (t *mockTransitioner) ExecuteAndRestore(_ context.Context, cmd venus.Command) (*transition.Report, *transition.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restores++
	t.commands = append(t.commands, cmd, venus.NeutralManual())
	return t.report(cmd), t.report(venus.NeutralManual())
}

type mockSink struct {
	mu          sync.Mutex
	telemetry   []map[string]any
	times       []time.Time
	transitions []influxdb.TransitionRecord
}

func (s *mockSink) WriteTelemetry(_ string, snapshot map[string]any, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry = append(s.telemetry, snapshot)
	s.times = append(s.times, ts)
}

func (s *mockSink) WriteTransition(rec influxdb.TransitionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, rec)
}

type broadcast struct {
	channel string
	payload any
}

type mockObserver struct {
	mu     sync.Mutex
	events []broadcast
}

func (o *mockObserver) Broadcast(channel string, payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, broadcast{channel, payload})
}

type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}
