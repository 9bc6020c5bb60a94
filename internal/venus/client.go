package venus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"
)

// Default connection settings.
const (
	DefaultPort    = 30000
	DefaultTimeout = 10 * time.Second

	// maxDatagramSize bounds a single reply.
	maxDatagramSize = 64 * 1024
)

// RPC method names.
const (
	methodBatteryStatus = "Bat.GetStatus"
	methodGetMode       = "ES.GetMode"
	methodEnergyStatus  = "ES.GetStatus"
	methodSetMode       = "ES.SetMode"
)

// Config holds device connection settings.
type Config struct {
	// Host is the device's LAN address.
	Host string

	// Port is the UDP port of the local API. Default: 30000.
	Port int

	// Timeout bounds each request, from send to matching reply. Default: 10s.
	Timeout time.Duration

	// RPCID is the component id sent as params.id. Default: 0.
	RPCID int
}

// Stats holds gateway counters.
type Stats struct {
	Requests     uint64    `json:"requests"`
	Errors       uint64    `json:"errors"`
	Timeouts     uint64    `json:"timeouts"`
	LastActivity time.Time `json:"last_activity"`
	LastError    string    `json:"last_error,omitempty"`
}

// Client talks to one Venus device.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Each request uses its own
//     socket, so concurrent requests never read each other's replies.
type Client struct {
	cfg  Config
	addr string

	nextID atomic.Uint64

	requests     atomic.Uint64
	errorsTotal  atomic.Uint64
	timeouts     atomic.Uint64
	lastActivity atomic.Int64 // unix nanoseconds
	lastError    atomic.Pointer[string]
}

// NewClient returns a client for the device at cfg.Host. No packets are
// sent until the first request.
func NewClient(cfg Config) *Client {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
	}
}

// Addr returns the device's host:port.
func (c *Client) Addr() string {
	return c.addr
}

type rpcRequest struct {
	ID     uint64 `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call sends one request and decodes the matching reply's result object.
// Replies carrying a different id are discarded.
func (c *Client) call(ctx context.Context, method string, params any) (Snapshot, error) {
	result, err := c.exchange(ctx, method, params)
	c.requests.Add(1)
	if err != nil {
		c.errorsTotal.Add(1)
		if errors.Is(err, ErrNoResponse) {
			c.timeouts.Add(1)
		}
		msg := err.Error()
		c.lastError.Store(&msg)
		return nil, err
	}
	c.lastActivity.Store(time.Now().UnixNano())
	return result, nil
}

func (c *Client) exchange(ctx context.Context, method string, params any) (Snapshot, error) {
	id := c.nextID.Add(1)
	req, err := json.Marshal(rpcRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoResponse, method, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoResponse, method, err)
	}
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoResponse, method, err)
	}

	buf := make([]byte, maxDatagramSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNoResponse, method, err)
		}

		var resp rpcResponse
		if err := json.Unmarshal(buf[:n], &resp); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedResponse, method, err)
		}
		if resp.ID == nil || *resp.ID != id {
			continue
		}
		return decodeResult(method, resp)
	}
}

func decodeResult(method string, resp rpcResponse) (Snapshot, error) {
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s: code %d: %s", ErrDeviceError, method, resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResult, method)
	}

	var result Snapshot
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: %s: result is not an object: %w", ErrMalformedResponse, method, err)
	}
	if result.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResult, method)
	}
	return result, nil
}

// Stats returns current gateway counters.
func (c *Client) Stats() Stats {
	s := Stats{
		Requests: c.requests.Load(),
		Errors:   c.errorsTotal.Load(),
		Timeouts: c.timeouts.Load(),
	}
	if ns := c.lastActivity.Load(); ns > 0 {
		s.LastActivity = time.Unix(0, ns)
	}
	if msg := c.lastError.Load(); msg != nil {
		s.LastError = *msg
	}
	return s
}
