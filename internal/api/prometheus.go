package api

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/venus-bridge/internal/venus"
)

const metricPrefix = "venusbridge_"

func desc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(metricPrefix+name, help, labels, nil)
}

// bridgeCollector reads poll loop, device link and hub state once per scrape.
type bridgeCollector struct {
	s *Server

	cycles          *prometheus.Desc
	results         *prometheus.Desc
	running         *prometheus.Desc
	brokerConnected *prometheus.Desc
	pending         *prometheus.Desc
	lastPublished   *prometheus.Desc
	soc             *prometheus.Desc
	gridPower       *prometheus.Desc
	deviceRequests  *prometheus.Desc
	deviceErrors    *prometheus.Desc
	deviceTimeouts  *prometheus.Desc
	wsClients       *prometheus.Desc
	dbOpen          *prometheus.Desc
	dbInUse         *prometheus.Desc
	dbWaitCount     *prometheus.Desc
}

func newBridgeCollector(s *Server) *bridgeCollector {
	return &bridgeCollector{
		s:               s,
		cycles:          desc("poll_cycles_total", "Poll cycles started"),
		results:         desc("poll_results_total", "Poll cycles by outcome", "result"),
		running:         desc("poll_loop_running", "1 while the poll loop is running"),
		brokerConnected: desc("broker_connected", "1 while the MQTT broker connection is up"),
		pending:         desc("mode_requests_pending", "Mode requests waiting for the poll loop"),
		lastPublished:   desc("last_publish_timestamp_seconds", "Unix time of the last published snapshot"),
		soc:             desc("battery_soc_percent", "Battery state of charge from the last published snapshot"),
		gridPower:       desc("ongrid_power_watts", "On-grid power from the last published snapshot"),
		deviceRequests:  desc("device_requests_total", "JSON-RPC requests sent to the device"),
		deviceErrors:    desc("device_errors_total", "JSON-RPC requests that failed"),
		deviceTimeouts:  desc("device_timeouts_total", "JSON-RPC requests that timed out"),
		wsClients:       desc("websocket_clients", "Connected WebSocket clients"),
		dbOpen:          desc("db_open_connections", "Open SQLite connections"),
		dbInUse:         desc("db_in_use_connections", "SQLite connections in use"),
		dbWaitCount:     desc("db_wait_count_total", "Waits for a free SQLite connection"),
	}
}

// Describe implements prometheus.Collector.
func (c *bridgeCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.cycles, c.results, c.running, c.brokerConnected, c.pending, c.lastPublished,
		c.soc, c.gridPower, c.deviceRequests, c.deviceErrors, c.deviceTimeouts, c.wsClients,
		c.dbOpen, c.dbInUse, c.dbWaitCount,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *bridgeCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.s.controller.Status()

	ch <- prometheus.MustNewConstMetric(c.cycles, prometheus.CounterValue, float64(st.Cycles))
	for result, n := range map[string]uint64{
		"published":      st.Published,
		"skipped":        st.Skipped,
		"publish_failed": st.PublishFailures,
		"failed":         st.Failed,
	} {
		ch <- prometheus.MustNewConstMetric(c.results, prometheus.CounterValue, float64(n), result)
	}
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, boolValue(st.Running))
	ch <- prometheus.MustNewConstMetric(c.brokerConnected, prometheus.GaugeValue, boolValue(st.BrokerConnected))
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(st.PendingRequests))

	if st.LastPublishedAt != nil {
		ch <- prometheus.MustNewConstMetric(c.lastPublished, prometheus.GaugeValue,
			float64(st.LastPublishedAt.UnixNano())/1e9)
	}
	ch <- prometheus.MustNewConstMetric(c.soc, prometheus.GaugeValue, snapshotNumber(st.LastSnapshot, venus.FieldSOC))
	ch <- prometheus.MustNewConstMetric(c.gridPower, prometheus.GaugeValue, snapshotNumber(st.LastSnapshot, "ongrid_power"))

	if c.s.device != nil {
		ds := c.s.device.Stats()
		ch <- prometheus.MustNewConstMetric(c.deviceRequests, prometheus.CounterValue, float64(ds.Requests))
		ch <- prometheus.MustNewConstMetric(c.deviceErrors, prometheus.CounterValue, float64(ds.Errors))
		ch <- prometheus.MustNewConstMetric(c.deviceTimeouts, prometheus.CounterValue, float64(ds.Timeouts))
	}
	ch <- prometheus.MustNewConstMetric(c.wsClients, prometheus.GaugeValue, float64(c.s.hub.ClientCount()))

	if c.s.database != nil {
		dbs := c.s.database.Stats()
		ch <- prometheus.MustNewConstMetric(c.dbOpen, prometheus.GaugeValue, float64(dbs.OpenConnections))
		ch <- prometheus.MustNewConstMetric(c.dbInUse, prometheus.GaugeValue, float64(dbs.InUse))
		ch <- prometheus.MustNewConstMetric(c.dbWaitCount, prometheus.CounterValue, float64(dbs.WaitCount))
	}
}

// newRegistry builds the server's registry with the bridge collector and
// the Go runtime and process collectors.
func newRegistry(s *Server) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		newBridgeCollector(s),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// snapshotNumber returns snap[key] when it is numeric, NaN otherwise.
func snapshotNumber(snap map[string]any, key string) float64 {
	switch v := snap[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return math.NaN()
	}
}
