// Package metrics implements the process-global registry named in the
// server's external interface table, using prometheus/client_golang the
// same way caddyserver/caddy's own /metrics endpoint does: a registry of
// typed collectors plus promhttp.Handler for exposition.
package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns every counter, gauge, and histogram required by the
// external interface. It is safe for concurrent use; prometheus
// collectors are already internally synchronised.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal  *prometheus.CounterVec
	SlowRequestsTotal  *prometheus.CounterVec
	TotalConnections   prometheus.Counter
	WSConnectionsTotal prometheus.Counter
	WSDisconnections   prometheus.Counter
	WSMessagesSent     *prometheus.CounterVec
	WSMessagesReceived *prometheus.CounterVec
	WSErrorsTotal      *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	PendingRequests        prometheus.Gauge
	ProcessCPUUsagePercent prometheus.Gauge
	ProcessMemoryKB        prometheus.Gauge
	UptimeSeconds          prometheus.Gauge
	WSConnectionsActive    prometheus.Gauge
	WSRoomsTotal           prometheus.Gauge
	WSRoomConnections      *prometheus.GaugeVec

	HTTPRequestDuration *prometheus.HistogramVec
	WSConnectionDuration *prometheus.HistogramVec
	WSMessageSize        *prometheus.HistogramVec

	startedAt time.Time
}

// New builds a fresh registry and registers every collector named in the
// spec's metric-names table. A private registry (rather than the global
// DefaultRegisterer) is used so an embedding application can create more
// than one server instance without collector-already-registered panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry:  reg,
		startedAt: time.Now(),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed, by method/path/status.",
		}, []string{"method", "path", "status"}),

		SlowRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rnode_server_slow_requests_total",
			Help: "Requests whose duration fell into a slow bucket, by method/path/duration_range.",
		}, []string{"method", "path", "duration_range"}),

		TotalConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rnode_server_total_connections",
			Help: "Total accepted connections (HTTP and WebSocket) since startup.",
		}),

		WSConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rnode_server_websocket_connections_total",
			Help: "Total WebSocket connections accepted.",
		}),

		WSDisconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rnode_server_websocket_disconnections_total",
			Help: "Total WebSocket connections closed.",
		}),

		WSMessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rnode_server_websocket_messages_sent_total",
			Help: "WebSocket messages sent, by type/room_id/path.",
		}, []string{"type", "room_id", "path"}),

		WSMessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rnode_server_websocket_messages_received_total",
			Help: "WebSocket messages received, by type/room_id/path.",
		}, []string{"type", "room_id", "path"}),

		WSErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rnode_server_websocket_errors_total",
			Help: "WebSocket errors, by error_type/path/room_id.",
		}, []string{"error_type", "path", "room_id"}),

		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rnode_server_cache_hits_total",
			Help: "Cache reads satisfied by any tier.",
		}),

		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rnode_server_cache_misses_total",
			Help: "Cache reads that missed every tier.",
		}),

		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rnode_server_pending_requests",
			Help: "HTTP requests currently in flight.",
		}),

		ProcessCPUUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rnode_server_process_cpu_usage_percent",
			Help: "Approximate process CPU usage percentage.",
		}),

		ProcessMemoryKB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rnode_server_process_memory_kb",
			Help: "Memory obtained from the OS by the Go runtime, in kilobytes.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rnode_server_uptime_seconds",
			Help: "Seconds since server startup.",
		}),

		WSConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rnode_server_websocket_connections_active",
			Help: "Currently open WebSocket connections.",
		}),

		WSRoomsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rnode_server_websocket_rooms_total",
			Help: "Currently existing rooms.",
		}),

		WSRoomConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rnode_server_websocket_room_connections",
			Help: "Members currently joined to a room, by room_id/room_name.",
		}, []string{"room_id", "room_name"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_requests_duration_seconds",
			Help:    "HTTP request latency, by method/path/status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		WSConnectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rnode_server_websocket_connection_duration_seconds",
			Help:    "WebSocket ping/pong round-trip latency samples, by path/room_id.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "room_id"}),

		WSMessageSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rnode_server_websocket_message_size_bytes",
			Help:    "WebSocket message sizes, by type/direction.",
			Buckets: prometheus.ExponentialBuckets(32, 4, 8),
		}, []string{"type", "direction"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal, m.SlowRequestsTotal, m.TotalConnections,
		m.WSConnectionsTotal, m.WSDisconnections, m.WSMessagesSent,
		m.WSMessagesReceived, m.WSErrorsTotal, m.CacheHitsTotal, m.CacheMissesTotal,
		m.PendingRequests, m.ProcessCPUUsagePercent, m.ProcessMemoryKB, m.UptimeSeconds,
		m.WSConnectionsActive, m.WSRoomsTotal, m.WSRoomConnections,
		m.HTTPRequestDuration, m.WSConnectionDuration, m.WSMessageSize,
	)

	return m
}

// Handler returns the promhttp handler bound to this registry, wired to
// GET /metrics by the server when the metrics config option is enabled.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one completed HTTP request's outcome across
// the counter and histogram named by the metrics registry, and bumps the slow-request
// counter when duration crosses a slow threshold.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, d time.Duration) {
	statusStr := statusLabel(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(d.Seconds())
	if r := slowRange(d); r != "" {
		m.SlowRequestsTotal.WithLabelValues(method, path, r).Inc()
	}
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// slowRange buckets a request duration into a human-readable range once it
// crosses the 1-second slow threshold; fast requests contribute to no
// slow-request bucket at all.
func slowRange(d time.Duration) string {
	switch {
	case d < time.Second:
		return ""
	case d < 5*time.Second:
		return "1s-5s"
	case d < 10*time.Second:
		return "5s-10s"
	default:
		return "10s+"
	}
}

// StartProcessSampler launches a goroutine that periodically refreshes the
// uptime/memory gauges. It returns a stop function.
func (m *Metrics) StartProcessSampler(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.sampleProcess()
			}
		}
	}()
	return func() { close(done) }
}

func (m *Metrics) sampleProcess() {
	m.UptimeSeconds.Set(time.Since(m.startedAt).Seconds())
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.ProcessMemoryKB.Set(float64(ms.Sys) / 1024)
}
