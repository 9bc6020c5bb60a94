package venus

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeReply builds the reply for a request. Returning nil drops the request.
type fakeReply func(id uint64, params map[string]any) any

// fakeDevice is a local UDP JSON-RPC responder standing in for a Venus.
type fakeDevice struct {
	conn net.PacketConn

	mu       sync.Mutex
	handlers map[string]fakeReply
	requests []rpcRequestRecord
}

type rpcRequestRecord struct {
	ID     uint64         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDevice{conn: conn, handlers: make(map[string]fakeReply)}
	t.Cleanup(func() { conn.Close() })
	go d.serve()
	return d
}

func (d *fakeDevice) serve() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := d.conn.ReadFrom(buf)
		if err != nil {
			return
		}
		var req rpcRequestRecord
		if err := json.Unmarshal(buf[:n], &req); err != nil {
			continue
		}

		d.mu.Lock()
		d.requests = append(d.requests, req)
		h := d.handlers[req.Method]
		d.mu.Unlock()

		if h == nil {
			continue
		}
		reply := h(req.ID, req.Params)
		if reply == nil {
			continue
		}
		var out []byte
		if raw, ok := reply.(string); ok {
			out = []byte(raw)
		} else {
			out, _ = json.Marshal(reply)
		}
		_, _ = d.conn.WriteTo(out, addr)
	}
}

func (d *fakeDevice) handle(method string, h fakeReply) {
	d.mu.Lock()
	d.handlers[method] = h
	d.mu.Unlock()
}

// result replies with a result object.
func (d *fakeDevice) result(method string, result map[string]any) {
	d.handle(method, func(id uint64, _ map[string]any) any {
		return map[string]any{"id": id, "src": "VenusE-test", "result": result}
	})
}

func (d *fakeDevice) calls(method string) []rpcRequestRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []rpcRequestRecord
	for _, r := range d.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func (d *fakeDevice) client(timeout time.Duration) *Client {
	addr := d.conn.LocalAddr().(*net.UDPAddr)
	return NewClient(Config{
		Host:    addr.IP.String(),
		Port:    addr.Port,
		Timeout: timeout,
	})
}
