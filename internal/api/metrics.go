package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/venus-bridge/internal/poller"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

// SystemMetrics is the body of GET /api/v1/metrics, a JSON view of the
// same counters /metrics exposes to Prometheus.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Broker        BrokerMetrics    `json:"broker"`
	Poller        PollerMetrics    `json:"poller"`
	Device        *venus.Stats     `json:"device,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

type BrokerMetrics struct {
	Connected bool `json:"connected"`
}

type PollerMetrics struct {
	Running         bool               `json:"running"`
	Cycles          uint64             `json:"cycles"`
	Published       uint64             `json:"published"`
	Skipped         uint64             `json:"skipped"`
	PublishFailures uint64             `json:"publish_failures"`
	Failed          uint64             `json:"failed"`
	LastResult      poller.CycleResult `json:"last_result,omitempty"`
	PendingRequests int                `json:"pending_requests"`
}

type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

const bytesPerMB = 1 << 20

func runtimeMetrics() RuntimeMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(ms.Alloc) / bytesPerMB,
		MemoryTotalMB: float64(ms.TotalAlloc) / bytesPerMB,
		NumGC:         ms.NumGC,
	}
}

func pollerMetrics(st poller.Status) PollerMetrics {
	return PollerMetrics{
		Running:         st.Running,
		Cycles:          st.Cycles,
		Published:       st.Published,
		Skipped:         st.Skipped,
		PublishFailures: st.PublishFailures,
		Failed:          st.Failed,
		LastResult:      st.LastResult,
		PendingRequests: st.PendingRequests,
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	st := s.controller.Status()
	m := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime) / time.Second),
		Runtime:       runtimeMetrics(),
		WebSocket:     WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Broker:        BrokerMetrics{Connected: st.BrokerConnected},
		Poller:        pollerMetrics(st),
	}
	if s.device != nil {
		ds := s.device.Stats()
		m.Device = &ds
	}
	if s.database != nil {
		dbs := s.database.Stats()
		m.Database = &DatabaseMetrics{
			OpenConnections: dbs.OpenConnections,
			InUse:           dbs.InUse,
			Idle:            dbs.Idle,
			WaitCount:       dbs.WaitCount,
		}
	}
	writeJSON(w, http.StatusOK, m)
}
