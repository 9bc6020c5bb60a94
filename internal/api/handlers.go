package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/nerrad567/venus-bridge/internal/audit"
	"github.com/nerrad567/venus-bridge/internal/poller"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

// healthCheckTimeout bounds each component probe.
const healthCheckTimeout = 2 * time.Second

// Health statuses.
const (
	healthOK       = "ok"
	healthDegraded = "degraded"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	PollLoop   bool              `json:"poll_loop_running"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth probes every registered component. Any failure answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   healthOK,
		Version:  s.version,
		PollLoop: s.controller.Status().Running,
	}

	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := s.checks[name].HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = healthDegraded
				continue
			}
			resp.Components[name] = healthOK
		}
	}

	status := http.StatusOK
	if resp.Status != healthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// deviceStatus describes the UDP link to the battery.
type deviceStatus struct {
	Address string      `json:"address"`
	Stats   venus.Stats `json:"stats"`
}

// statusResponse is the body of GET /status.
type statusResponse struct {
	poller.Status
	Device        *deviceStatus `json:"device,omitempty"`
	Subscriptions []string      `json:"mqtt_subscriptions,omitempty"`
	WSPath        string        `json:"ws_path"`
	Version       string        `json:"version"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Status:  s.controller.Status(),
		WSPath:  s.wsPath(),
		Version: s.version,
	}
	if s.device != nil {
		resp.Device = &deviceStatus{
			Address: s.device.Addr(),
			Stats:   s.device.Stats(),
		}
	}
	if s.broker != nil {
		resp.Subscriptions = s.broker.Subscriptions()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListTransitions returns recorded transitions, newest first.
// Query: ?limit=N.
func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "transition history is not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	transitions, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing transitions failed", "error", err)
		writeInternalError(w, "failed to list transitions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transitions": transitions,
		"count":       len(transitions),
	})
}

// modeAccepted is the body of a 202 from POST /mode.
type modeAccepted struct {
	RequestID   string    `json:"request_id"`
	Mode        string    `json:"mode"`
	Restore     bool      `json:"restore"`
	RequestedAt time.Time `json:"requested_at"`
	RequestedBy string    `json:"requested_by"`
	Status      string    `json:"status"`
}

// handleSetMode queues a mode transition. The poll loop runs it at the next
// cycle boundary and publishes the report to the transition topic. Every
// request, accepted or not, goes to the audit trail when one is configured.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	subject := subjectFromContext(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "request body too large or unreadable")
		return
	}

	req, err := poller.ParseModeRequest(body)
	if err != nil {
		s.recordAudit(r.Context(), audit.ModeRequest(poller.SourceAPI, subject, "", nil, err))
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	req.Source = poller.SourceAPI

	queued, err := s.controller.Submit(req)
	s.recordAudit(r.Context(), audit.ModeRequest(poller.SourceAPI, subject, queued.ID, map[string]any{
		"mode":    req.Command.Mode(),
		"command": venus.Params(req.Command),
		"restore": req.Restore,
	}, err))

	switch {
	case errors.Is(err, poller.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, ErrCodeTooManyRequests, "too many pending mode requests")
		return
	case errors.Is(err, poller.ErrTransitionsDisabled):
		writeUnavailable(w, "mode control is not available")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	s.logger.Debug("mode request accepted", "request_id", queued.ID, "requested_by", subject)

	writeJSON(w, http.StatusAccepted, modeAccepted{
		RequestID:   queued.ID,
		Mode:        queued.Command.Mode(),
		Restore:     queued.Restore,
		RequestedAt: queued.RequestedAt,
		RequestedBy: subject,
		Status:      "queued",
	})
}

// recordAudit stores e. Failures are logged and never fail the request.
func (s *Server) recordAudit(ctx context.Context, e *audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("recording audit entry failed", "action", e.Action, "error", err)
	}
}

// handleListAudit returns audit entries, newest first.
// Query: ?source=api|mqtt&outcome=accepted|rejected&limit=N&offset=N.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeUnavailable(w, "audit trail is not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:  q.Get("action"),
		Source:  q.Get("source"),
		Outcome: q.Get("outcome"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
