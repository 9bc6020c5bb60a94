package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/venus-bridge/internal/audit"
	"github.com/nerrad567/venus-bridge/internal/auth"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/config"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/venus-bridge/internal/poller"
	"github.com/nerrad567/venus-bridge/internal/transition"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// mockController stands in for the poll loop.
type mockController struct {
	mu        sync.Mutex
	status    poller.Status
	submitted []poller.ModeRequest
	err       error
}

func (c *mockController) Status() poller.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *mockController) Submit(req poller.ModeRequest) (poller.ModeRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return req, c.err
	}
	req.ID = "req-1"
	req.RequestedAt = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	c.submitted = append(c.submitted, req)
	return req, nil
}

type mockDevice struct{}

func (mockDevice) Addr() string { return "192.168.1.50:30000" }

func (mockDevice) Stats() venus.Stats {
	return venus.Stats{Requests: 12, Errors: 2, Timeouts: 1}
}

type mockBroker []string

func (b mockBroker) Subscriptions() []string { return b }

type mockHistory struct {
	items     []transition.Summary
	err       error
	lastLimit int
}

func (h *mockHistory) List(_ context.Context, limit int) ([]transition.Summary, error) {
	h.lastLimit = limit
	return h.items, h.err
}

// mockAudit records created entries and answers List from them.
type mockAudit struct {
	mu         sync.Mutex
	entries    []audit.Entry
	createErr  error
	listErr    error
	lastFilter audit.Filter
}

func (a *mockAudit) Create(_ context.Context, e *audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createErr != nil {
		return a.createErr
	}
	a.entries = append(a.entries, *e)
	return nil
}

func (a *mockAudit) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastFilter = f
	if a.listErr != nil {
		return nil, a.listErr
	}
	return &audit.ListResult{Entries: a.entries, Total: len(a.entries), Limit: f.Limit, Offset: f.Offset}, nil
}

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
}

// testServer builds a Server around the given deps, filling the required
// fields. secret enables auth when non-empty.
func testServer(t *testing.T, deps Deps, secret string) (*Server, *mockController) {
	t.Helper()

	ctrl, ok := deps.Controller.(*mockController)
	if !ok || ctrl == nil {
		ctrl = &mockController{status: poller.Status{DeviceID: "venus-test", Running: true}}
		deps.Controller = ctrl
	}
	deps.Logger = testLogger()
	deps.Version = "test"
	deps.WS = config.WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
	deps.Security = config.SecurityConfig{JWT: config.JWTConfig{Secret: secret, AccessTokenTTL: 15}}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv, ctrl
}

func bearer(t *testing.T, role auth.Role) string {
	t.Helper()
	token, err := auth.GenerateAccessToken("tester", role, testSecret, 5)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error: %v", err)
	}
	return "Bearer " + token
}

func do(t *testing.T, h http.Handler, method, path, body, authz string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{Controller: &mockController{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without controller should fail")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, Deps{Checks: map[string]HealthChecker{
		"mqtt": checkFunc(func(context.Context) error { return nil }),
	}}, "")

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" || body["version"] != "test" || body["poll_loop_running"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestHealth_Degraded(t *testing.T) {
	srv, _ := testServer(t, Deps{Checks: map[string]HealthChecker{
		"mqtt":     checkFunc(func(context.Context) error { return nil }),
		"database": checkFunc(func(context.Context) error { return errors.New("disk gone") }),
	}}, testSecret)

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	body := decodeBody(t, w)
	components, _ := body["components"].(map[string]any)
	if body["status"] != "degraded" || components["database"] != "disk gone" || components["mqtt"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := testServer(t, Deps{}, "")
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/api/v1/health", "", "")
	if len(w.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a UUID", w.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-id" {
		t.Errorf("X-Request-ID = %q, want client-id", got)
	}
}

func TestCORS(t *testing.T) {
	srv, _ := testServer(t, Deps{Config: config.APIConfig{CORS: config.CORSConfig{AllowedOrigins: []string{"http://panel.local"}}}}, "")
	h := srv.Handler()

	tests := []struct {
		origin    string
		wantAllow string
	}{
		{"http://panel.local", "http://panel.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/mode", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("%s: status = %d, want 204", tt.origin, w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
			t.Errorf("%s: Allow-Origin = %q, want %q", tt.origin, got, tt.wantAllow)
		}
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t, Deps{}, "")
	if w := do(t, srv.Handler(), http.MethodGet, "/api/v1/devices", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestStatus(t *testing.T) {
	ctrl := &mockController{status: poller.Status{
		DeviceID:        "venus-test",
		Running:         true,
		Published:       4,
		BrokerConnected: true,
		LastSnapshot:    map[string]any{"soc": 80.0},
	}}
	srv, _ := testServer(t, Deps{Controller: ctrl, Device: mockDevice{}}, "")

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/status", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["device_id"] != "venus-test" || body["published"] != 4.0 || body["broker_connected"] != true {
		t.Errorf("body = %v", body)
	}
	if body["ws_path"] != "/ws" {
		t.Errorf("ws_path = %v, want /ws", body["ws_path"])
	}
	device, _ := body["device"].(map[string]any)
	stats, _ := device["stats"].(map[string]any)
	if device["address"] != "192.168.1.50:30000" || stats["requests"] != 12.0 {
		t.Errorf("device = %v", device)
	}
}

func TestStatus_BrokerSubscriptions(t *testing.T) {
	broker := mockBroker{"marstek/venus/aabbccddeeff/set/mode", "marstek/venus/bbccddeeff00/set/mode"}

	tests := []struct {
		name string
		deps Deps
		want []any
	}{
		{"without broker", Deps{}, nil},
		{"with broker", Deps{Broker: broker}, []any{broker[0], broker[1]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, tt.deps, "")
			body := decodeBody(t, do(t, srv.Handler(), http.MethodGet, "/api/v1/status", "", ""))

			got, present := body["mqtt_subscriptions"].([]any)
			if tt.want == nil {
				if present {
					t.Errorf("mqtt_subscriptions = %v, want omitted", got)
				}
				return
			}
			if len(got) != len(tt.want) || got[0] != tt.want[0] || got[1] != tt.want[1] {
				t.Errorf("mqtt_subscriptions = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuth(t *testing.T) {
	srv, _ := testServer(t, Deps{}, testSecret)
	h := srv.Handler()
	modeBody := `{"mode":"ai"}`

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		authz  string
		want   int
	}{
		{"status without token", http.MethodGet, "/api/v1/status", "", "", http.StatusUnauthorized},
		{"status with garbage token", http.MethodGet, "/api/v1/status", "", "Bearer nope", http.StatusUnauthorized},
		{"status with basic auth", http.MethodGet, "/api/v1/status", "", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"status as viewer", http.MethodGet, "/api/v1/status", "", bearer(t, auth.RoleViewer), http.StatusOK},
		{"mode as viewer", http.MethodPost, "/api/v1/mode", modeBody, bearer(t, auth.RoleViewer), http.StatusForbidden},
		{"mode as operator", http.MethodPost, "/api/v1/mode", modeBody, bearer(t, auth.RoleOperator), http.StatusAccepted},
		{"health is public", http.MethodGet, "/api/v1/health", "", "", http.StatusOK},
		{"metrics are public", http.MethodGet, "/api/v1/metrics", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.path, tt.body, tt.authz)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAuth_WrongSecret(t *testing.T) {
	srv, _ := testServer(t, Deps{}, "another-secret-that-is-at-least-32-chars")
	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/status", "", bearer(t, auth.RoleOperator))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestSetMode(t *testing.T) {
	srv, ctrl := testServer(t, Deps{}, testSecret)

	w := do(t, srv.Handler(), http.MethodPost, "/api/v1/mode",
		`{"mode":"manual","power":-500,"start_time":"01:00","end_time":"05:00","weekdays":127,"restore":true}`,
		bearer(t, auth.RoleOperator))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["request_id"] != "req-1" || body["mode"] != venus.ModeManual || body["restore"] != true {
		t.Errorf("body = %v", body)
	}
	if body["requested_by"] != "tester" || body["status"] != "queued" {
		t.Errorf("body = %v", body)
	}

	if len(ctrl.submitted) != 1 {
		t.Fatalf("submitted %d requests, want 1", len(ctrl.submitted))
	}
	req := ctrl.submitted[0]
	if req.Source != poller.SourceAPI || !req.Restore {
		t.Errorf("request = %+v", req)
	}
	if cmd, ok := req.Command.(venus.ManualCommand); !ok || cmd.Power != -500 || cmd.Weekdays != 127 {
		t.Errorf("Command = %#v", req.Command)
	}
}

func TestSetMode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		want     int
		wantCode string
	}{
		{"invalid json", `{"mode":`, nil, http.StatusBadRequest, ErrCodeValidation},
		{"unknown mode", `{"mode":"turbo"}`, nil, http.StatusBadRequest, ErrCodeValidation},
		{"queue full", `{"mode":"ai"}`, poller.ErrQueueFull, http.StatusTooManyRequests, ErrCodeTooManyRequests},
		{"disabled", `{"mode":"ai"}`, poller.ErrTransitionsDisabled, http.StatusServiceUnavailable, ErrCodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, Deps{Controller: &mockController{err: tt.err}}, "")
			w := do(t, srv.Handler(), http.MethodPost, "/api/v1/mode", tt.body, "")
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if body := decodeBody(t, w); body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
		})
	}
}

func TestSetMode_BodyTooLarge(t *testing.T) {
	srv, ctrl := testServer(t, Deps{}, "")
	big := `{"mode":"ai","pad":"` + strings.Repeat("x", maxBodyBytes) + `"}`

	w := do(t, srv.Handler(), http.MethodPost, "/api/v1/mode", big, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if len(ctrl.submitted) != 0 {
		t.Error("oversized request should not be submitted")
	}
}

func TestListTransitions(t *testing.T) {
	hist := &mockHistory{items: []transition.Summary{
		{ID: "b", TargetMode: venus.ModeAI, State: transition.Verified},
		{ID: "a", TargetMode: venus.ModeManual, State: transition.VerificationFailed},
	}}
	srv, _ := testServer(t, Deps{History: hist}, "")
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/api/v1/transitions?limit=5", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if hist.lastLimit != 5 {
		t.Errorf("limit = %d, want 5", hist.lastLimit)
	}
	body := decodeBody(t, w)
	items, _ := body["transitions"].([]any)
	if body["count"] != 2.0 || len(items) != 2 {
		t.Fatalf("body = %v", body)
	}
	if first, _ := items[0].(map[string]any); first["id"] != "b" || first["state"] != "verified" {
		t.Errorf("first = %v", items[0])
	}

	for _, bad := range []string{"0", "-3", "ten"} {
		if w := do(t, h, http.MethodGet, "/api/v1/transitions?limit="+bad, "", ""); w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", bad, w.Code)
		}
	}

	hist.err = errors.New("db locked")
	if w := do(t, h, http.MethodGet, "/api/v1/transitions", "", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestListTransitions_Disabled(t *testing.T) {
	srv, _ := testServer(t, Deps{}, "")
	if w := do(t, srv.Handler(), http.MethodGet, "/api/v1/transitions", "", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	ctrl := &mockController{status: poller.Status{Cycles: 7, Published: 5, Skipped: 2, BrokerConnected: true}}
	srv, _ := testServer(t, Deps{Controller: ctrl, Device: mockDevice{}}, "")

	w := do(t, srv.Handler(), http.MethodGet, "/api/v1/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var m SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding metrics: %v", err)
	}
	if m.Poller.Cycles != 7 || m.Poller.Published != 5 || !m.Broker.Connected {
		t.Errorf("metrics = %+v", m)
	}
	if m.Device == nil || m.Device.Timeouts != 1 {
		t.Errorf("device metrics = %+v", m.Device)
	}
	if m.Database != nil {
		t.Errorf("database metrics = %+v, want nil", m.Database)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime goroutines not reported")
	}
}

type fakeDBStats struct{}

func (fakeDBStats) Stats() sql.DBStats {
	return sql.DBStats{OpenConnections: 2, InUse: 1, WaitCount: 3}
}

func TestPrometheusMetrics(t *testing.T) {
	published := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	ctrl := &mockController{status: poller.Status{
		Running:         true,
		Cycles:          7,
		Published:       5,
		Skipped:         2,
		BrokerConnected: true,
		LastPublishedAt: &published,
		LastSnapshot:    map[string]any{"soc": 81.0, "ongrid_power": -420.0},
	}}
	srv, _ := testServer(t, Deps{Controller: ctrl, Device: mockDevice{}, Database: fakeDBStats{}}, testSecret)

	// Public like /api/v1/health.
	w := do(t, srv.Handler(), http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		"venusbridge_poll_cycles_total 7",
		`venusbridge_poll_results_total{result="published"} 5`,
		`venusbridge_poll_results_total{result="skipped"} 2`,
		"venusbridge_poll_loop_running 1",
		"venusbridge_broker_connected 1",
		"venusbridge_battery_soc_percent 81",
		"venusbridge_ongrid_power_watts -420",
		"venusbridge_last_publish_timestamp_seconds 1.7924112e+09",
		"venusbridge_device_requests_total 12",
		"venusbridge_device_timeouts_total 1",
		"venusbridge_websocket_clients 0",
		"venusbridge_db_open_connections 2",
		"venusbridge_db_wait_count_total 3",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestSnapshotNumber(t *testing.T) {
	snap := map[string]any{"soc": 55.0, "count": 3, "mode": "AI"}
	if got := snapshotNumber(snap, "soc"); got != 55 {
		t.Errorf("soc = %v, want 55", got)
	}
	if got := snapshotNumber(snap, "count"); got != 3 {
		t.Errorf("count = %v, want 3", got)
	}
	for _, key := range []string{"mode", "missing"} {
		if got := snapshotNumber(snap, key); !math.IsNaN(got) {
			t.Errorf("%s = %v, want NaN", key, got)
		}
	}
	if got := snapshotNumber(nil, "soc"); !math.IsNaN(got) {
		t.Errorf("nil snapshot = %v, want NaN", got)
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	srv, _ := testServer(t, Deps{}, testSecret)

	w := do(t, srv.Handler(), http.MethodPost, "/api/v1/auth/ws-ticket", "", bearer(t, auth.RoleViewer))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	ticket, _ := decodeBody(t, w)["ticket"].(string)
	if len(ticket) < 26 {
		t.Fatalf("ticket = %q", ticket)
	}

	entry, ok := srv.tickets.consume(ticket)
	if !ok || entry.subject != "tester" || entry.role != auth.RoleViewer {
		t.Errorf("consume() = %+v, %v", entry, ok)
	}
	if _, ok := srv.tickets.consume(ticket); ok {
		t.Error("ticket accepted twice")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	store := newTicketStore()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	expired := store.issue("a", auth.RoleViewer)
	now = now.Add(ticketTTL)
	fresh := store.issue("b", auth.RoleViewer)

	if _, ok := store.consume(expired); ok {
		t.Error("expired ticket accepted")
	}

	store.issue("c", auth.RoleViewer)
	now = now.Add(ticketTTL)
	store.cleanExpired()
	if n := store.len(); n != 0 {
		t.Errorf("%d tickets left after cleanup, want 0", n)
	}
	if _, ok := store.consume(fresh); ok {
		t.Error("cleaned ticket accepted")
	}
}

func TestWebSocket_RequiresTicket(t *testing.T) {
	srv, _ := testServer(t, Deps{}, testSecret)
	h := srv.Handler()

	if w := do(t, h, http.MethodGet, "/ws", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no ticket: status = %d, want 401", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/ws?ticket=bogus", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("bad ticket: status = %d, want 401", w.Code)
	}
}

func dialWS(t *testing.T, srv *Server, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	srv, _ := testServer(t, Deps{}, testSecret)
	ticket := srv.tickets.issue("tester", auth.RoleViewer)

	conn := dialWS(t, srv, "?ticket="+ticket)
	waitForClients(t, srv.Hub(), 1)

	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{poller.ChannelTransition}},
	}); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeResponse || msg.ID != "1" {
		t.Fatalf("subscribe reply = %+v", msg)
	}

	srv.Hub().Broadcast(poller.ChannelTelemetry, map[string]any{"soc": 50.0})
	srv.Hub().Broadcast(poller.ChannelTransition, map[string]any{"state": "verified"})

	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != poller.ChannelTransition {
		t.Fatalf("event = %+v, want only the subscribed channel", msg)
	}
	if payload, _ := msg.Payload.(map[string]any); payload["state"] != "verified" {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestWebSocket_Messages(t *testing.T) {
	srv, _ := testServer(t, Deps{}, "")
	conn := dialWS(t, srv, "")
	waitForClients(t, srv.Hub(), 1)

	tests := []struct {
		name     string
		msg      WSMessage
		wantType string
	}{
		{"ping", WSMessage{Type: WSTypePing, ID: "p"}, WSTypePong},
		{"unknown type", WSMessage{Type: "shout", ID: "x"}, WSTypeError},
		{"unknown channel", WSMessage{Type: WSTypeSubscribe, Payload: WSSubscribePayload{Channels: []string{"device.state_changed"}}}, WSTypeError},
		{"empty channels", WSMessage{Type: WSTypeSubscribe, Payload: WSSubscribePayload{}}, WSTypeError},
		{"unsubscribe", WSMessage{Type: WSTypeUnsubscribe, Payload: WSSubscribePayload{Channels: []string{poller.ChannelTelemetry}}}, WSTypeResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteJSON(tt.msg); err != nil {
				t.Fatalf("WriteJSON() error: %v", err)
			}
			if got := readWS(t, conn); got.Type != tt.wantType {
				t.Errorf("reply type = %q, want %q (%+v)", got.Type, tt.wantType, got)
			}
		})
	}
}

func TestHub_CloseOnCancel(t *testing.T) {
	srv, _ := testServer(t, Deps{}, "")
	conn := dialWS(t, srv, "")
	waitForClients(t, srv.Hub(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Hub().Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if n := srv.Hub().ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after cancel, want 0", n)
	}
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after hub shutdown")
	}
}

func TestStartClose(t *testing.T) {
	srv, _ := testServer(t, Deps{Config: config.APIConfig{Host: "127.0.0.1", Port: 0}}, "")

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestSetMode_Audited(t *testing.T) {
	trail := &mockAudit{}
	srv, _ := testServer(t, Deps{Audit: trail}, testSecret)
	h := srv.Handler()

	if w := do(t, h, http.MethodPost, "/api/v1/mode", `{"mode":"ai"}`, bearer(t, auth.RoleOperator)); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/mode", `{"mode":"turbo"}`, bearer(t, auth.RoleOperator)); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	// Forbidden callers never reach the handler.
	if w := do(t, h, http.MethodPost, "/api/v1/mode", `{"mode":"ai"}`, bearer(t, auth.RoleViewer)); w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	if len(trail.entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(trail.entries))
	}
	accepted, rejected := trail.entries[0], trail.entries[1]
	if accepted.Outcome != audit.OutcomeAccepted || accepted.RequestID != "req-1" {
		t.Errorf("accepted entry = %+v", accepted)
	}
	if accepted.Source != poller.SourceAPI || accepted.Subject != "tester" || accepted.Details["mode"] != venus.ModeAI {
		t.Errorf("accepted entry = %+v", accepted)
	}
	if rejected.Outcome != audit.OutcomeRejected || rejected.RequestID != "" || rejected.Details["error"] == nil {
		t.Errorf("rejected entry = %+v", rejected)
	}
}

func TestSetMode_AuditFailureDoesNotFailRequest(t *testing.T) {
	srv, ctrl := testServer(t, Deps{Audit: &mockAudit{createErr: errors.New("disk full")}}, "")

	if w := do(t, srv.Handler(), http.MethodPost, "/api/v1/mode", `{"mode":"ai"}`, ""); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	if len(ctrl.submitted) != 1 {
		t.Errorf("submitted %d requests, want 1", len(ctrl.submitted))
	}
}

func TestListAudit(t *testing.T) {
	trail := &mockAudit{entries: []audit.Entry{
		{ID: "aud-1", Action: audit.ActionModeRequest, Source: "mqtt", Outcome: audit.OutcomeRejected},
	}}
	srv, _ := testServer(t, Deps{Audit: trail}, testSecret)
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/api/v1/audit?source=mqtt&outcome=rejected&limit=10&offset=5", "", bearer(t, auth.RoleViewer))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	want := audit.Filter{Source: "mqtt", Outcome: "rejected", Limit: 10, Offset: 5}
	if trail.lastFilter != want {
		t.Errorf("filter = %+v, want %+v", trail.lastFilter, want)
	}
	body := decodeBody(t, w)
	entries, _ := body["entries"].([]any)
	if body["total"] != 1.0 || len(entries) != 1 {
		t.Errorf("body = %v", body)
	}

	for _, q := range []string{"limit=-1", "offset=x"} {
		if w := do(t, h, http.MethodGet, "/api/v1/audit?"+q, "", bearer(t, auth.RoleViewer)); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
	if w := do(t, h, http.MethodGet, "/api/v1/audit", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("without token: status = %d, want 401", w.Code)
	}
}

func TestListAudit_Errors(t *testing.T) {
	srv, _ := testServer(t, Deps{}, "")
	if w := do(t, srv.Handler(), http.MethodGet, "/api/v1/audit", "", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without audit trail: status = %d, want 503", w.Code)
	}

	srv, _ = testServer(t, Deps{Audit: &mockAudit{listErr: errors.New("boom")}}, "")
	if w := do(t, srv.Handler(), http.MethodGet, "/api/v1/audit", "", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("list error: status = %d, want 500", w.Code)
	}
}

func TestPanel(t *testing.T) {
	srv, _ := testServer(t, Deps{Config: config.APIConfig{Panel: config.PanelConfig{Enabled: true}}}, testSecret)
	h := srv.Handler()

	w := do(t, h, http.MethodGet, "/panel", "", "")
	if w.Code != http.StatusMovedPermanently || w.Header().Get("Location") != "/panel/" {
		t.Errorf("GET /panel: status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}

	// The page itself is public; its API calls carry the token.
	w = do(t, h, http.MethodGet, "/panel/", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
		t.Errorf("GET /panel/: status = %d", w.Code)
	}

	srv, _ = testServer(t, Deps{}, "")
	if w := do(t, srv.Handler(), http.MethodGet, "/panel/", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("disabled panel: status = %d, want 404", w.Code)
	}
}
