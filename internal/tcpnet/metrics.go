// Package tcpnet implements the command-byte TCP client and server:
// a one-byte role selector after connect, bounded server concurrency,
// idle/shutdown timeouts, and prometheus-exposed counters.
package tcpnet

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// ServerMetrics is a prometheus.Collector exposing the TCP server's
// connection and byte counters. Counters are plain atomics updated on
// the hot accept/read/write paths; Collect only reads them.
type ServerMetrics struct {
	totalConnections int64
	activeConnections int64
	bytesSent         int64
	bytesReceived     int64
	errorCount        int64

	descs []*prometheus.Desc
}

// NewServerMetrics builds a ServerMetrics collector. Register it with a
// prometheus.Registry to expose it.
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{
		descs: []*prometheus.Desc{
			prometheus.NewDesc("netspeed_tcp_connections_total", "Total TCP connections accepted.", nil, nil),
			prometheus.NewDesc("netspeed_tcp_connections_active", "Currently active TCP connections.", nil, nil),
			prometheus.NewDesc("netspeed_tcp_bytes_sent_total", "Total bytes sent by the TCP server.", nil, nil),
			prometheus.NewDesc("netspeed_tcp_bytes_received_total", "Total bytes received by the TCP server.", nil, nil),
			prometheus.NewDesc("netspeed_tcp_errors_total", "Total per-connection errors.", nil, nil),
		},
	}
}

// Describe implements prometheus.Collector.
func (m *ServerMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range m.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (m *ServerMetrics) Collect(ch chan<- prometheus.Metric) {
	snap := m.Snapshot()
	ch <- prometheus.MustNewConstMetric(m.descs[0], prometheus.CounterValue, float64(snap.TotalConnections))
	ch <- prometheus.MustNewConstMetric(m.descs[1], prometheus.GaugeValue, float64(snap.ActiveConnections))
	ch <- prometheus.MustNewConstMetric(m.descs[2], prometheus.CounterValue, float64(snap.BytesSent))
	ch <- prometheus.MustNewConstMetric(m.descs[3], prometheus.CounterValue, float64(snap.BytesReceived))
	ch <- prometheus.MustNewConstMetric(m.descs[4], prometheus.CounterValue, float64(snap.ErrorCount))
}

func (m *ServerMetrics) connectionAccepted() {
	atomic.AddInt64(&m.totalConnections, 1)
	atomic.AddInt64(&m.activeConnections, 1)
}

func (m *ServerMetrics) connectionClosed() {
	atomic.AddInt64(&m.activeConnections, -1)
}

func (m *ServerMetrics) addBytesSent(n int64)     { atomic.AddInt64(&m.bytesSent, n) }
func (m *ServerMetrics) addBytesReceived(n int64) { atomic.AddInt64(&m.bytesReceived, n) }
func (m *ServerMetrics) addError()                { atomic.AddInt64(&m.errorCount, 1) }

// MetricsSnapshot is a point-in-time read of ServerMetrics' counters.
type MetricsSnapshot struct {
	TotalConnections  int64
	ActiveConnections int64
	BytesSent         int64
	BytesReceived     int64
	ErrorCount        int64
}

// Snapshot returns the current counter values.
func (m *ServerMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:  atomic.LoadInt64(&m.totalConnections),
		ActiveConnections: atomic.LoadInt64(&m.activeConnections),
		BytesSent:         atomic.LoadInt64(&m.bytesSent),
		BytesReceived:     atomic.LoadInt64(&m.bytesReceived),
		ErrorCount:        atomic.LoadInt64(&m.errorCount),
	}
}
