package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/venus-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/venus-bridge/internal/transition"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

// Request sources.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
)

// ModeRequest asks the loop to run a mode transition between cycles.
type ModeRequest struct {
	ID          string        `json:"id"`
	Command     venus.Command `json:"-"`
	Restore     bool          `json:"restore"`
	Source      string        `json:"source"`
	RequestedAt time.Time     `json:"requested_at"`
}

// modeRequestBody is the JSON form accepted over HTTP and MQTT:
//
//	{"mode":"ai"}
//	{"mode":"manual","power":-800,"start_time":"01:00","end_time":"05:00","weekdays":31,"slot":0}
//	{"mode":"ai","restore":true}
type modeRequestBody struct {
	Mode      string `json:"mode"`
	Power     int    `json:"power"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Weekdays  int    `json:"weekdays"`
	Slot      int    `json:"slot"`
	Restore   bool   `json:"restore"`
}

// ParseModeRequest decodes and validates a mode request body. Mode names
// are case-insensitive; "ai" and "auto" both select AI mode.
func ParseModeRequest(data []byte) (ModeRequest, error) {
	var body modeRequestBody
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return ModeRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	var cmd venus.Command
	switch strings.ToLower(strings.TrimSpace(body.Mode)) {
	case "ai", "auto":
		cmd = venus.AutoCommand{}
	case "manual":
		if body.Weekdays < 0 || body.Weekdays > int(venus.AllWeekdays) {
			return ModeRequest{}, fmt.Errorf("%w: weekdays %d out of range", ErrInvalidRequest, body.Weekdays)
		}
		cmd = venus.ManualCommand{
			Power:     body.Power,
			StartTime: body.StartTime,
			EndTime:   body.EndTime,
			Weekdays:  uint8(body.Weekdays),
			Slot:      body.Slot,
		}
	case "":
		return ModeRequest{}, fmt.Errorf("%w: mode is required", ErrInvalidRequest)
	default:
		return ModeRequest{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, body.Mode)
	}

	if err := cmd.Validate(); err != nil {
		return ModeRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return ModeRequest{Command: cmd, Restore: body.Restore}, nil
}

// Submit queues a mode request for the loop and returns it with its ID and
// RequestedAt filled in. It never blocks.
func (p *Poller) Submit(req ModeRequest) (ModeRequest, error) {
	if p.transitions == nil {
		return req, ErrTransitionsDisabled
	}
	if req.Command == nil {
		return req, fmt.Errorf("%w: command is required", ErrInvalidRequest)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.RequestedAt = p.opts.Now().UTC()

	select {
	case p.requests <- req:
		p.logger.Info("mode request queued",
			"request_id", req.ID,
			"command", req.Command,
			"restore", req.Restore,
			"source", req.Source,
		)
		return req, nil
	default:
		return req, ErrQueueFull
	}
}

// HandleModeCommand is the MQTT handler for the mode command topic.
func (p *Poller) HandleModeCommand(topic string, payload []byte) error {
	req, err := ParseModeRequest(payload)
	if err != nil {
		return err
	}
	req.Source = SourceMQTT
	_, err = p.Submit(req)
	return err
}

// runRequests executes every queued request, in order.
func (p *Poller) runRequests(ctx context.Context) {
	for {
		select {
		case req := <-p.requests:
			p.executeRequest(ctx, req)
		default:
			return
		}
	}
}

func (p *Poller) executeRequest(ctx context.Context, req ModeRequest) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("mode request panicked",
				"request_id", req.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	callCtx := context.WithoutCancel(ctx)
	p.logger.Info("executing mode request", "request_id", req.ID, "command", req.Command)

	if req.Restore {
		first, restore := p.transitions.ExecuteAndRestore(callCtx, req.Command)
		p.publishReport(req, first)
		p.publishReport(req, restore)
		return
	}
	p.publishReport(req, p.transitions.Execute(callCtx, req.Command))
}

// TransitionEvent is the payload published for each finished transition.
type TransitionEvent struct {
	RequestID string `json:"request_id"`
	Source    string `json:"source,omitempty"`
	transition.Summary
}

func (p *Poller) publishReport(req ModeRequest, r *transition.Report) {
	if r == nil {
		return
	}
	ev := TransitionEvent{RequestID: req.ID, Source: req.Source, Summary: r.Summary()}

	p.mu.Lock()
	p.lastTransition = &ev
	p.mu.Unlock()

	if data, err := json.Marshal(ev); err != nil {
		p.logger.Error("encoding transition report failed", "transition_id", r.ID, "error", err)
	} else if err := p.publisher.Publish(p.opts.Topics.Transition(), data, p.opts.QoS, false); err != nil {
		p.logger.Warn("transition publish failed", "transition_id", r.ID, "error", err)
	}

	if !r.TargetReached() {
		p.logger.Warn("observed mode differs from target",
			"transition_id", r.ID,
			"target_mode", r.TargetMode,
			"observed_mode", r.ObservedMode(),
		)
	}

	if p.sink != nil {
		p.sink.WriteTransition(influxdb.TransitionRecord{
			DeviceID:     r.DeviceID,
			TargetMode:   r.TargetMode,
			State:        string(r.State),
			ObservedMode: r.ObservedMode(),
			Acknowledged: r.Acknowledged,
			Attempts:     r.Attempts,
			Duration:     r.Duration(),
			FinishedAt:   r.FinishedAt,
		})
	}
	if p.observer != nil {
		p.observer.Broadcast(ChannelTransition, ev)
	}
}

// PendingRequests returns the number of queued mode requests.
func (p *Poller) PendingRequests() int {
	return len(p.requests)
}
