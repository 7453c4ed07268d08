package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	MessagesTotal     *prometheus.CounterVec
	DroppedFrames     prometheus.Counter
	PreviewDuration   *prometheus.HistogramVec
}

// NewMetrics builds the collector set and registers it on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kw_active_connections",
			Help: "Currently connected WebSocket clients",
		}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kw_messages_total",
			Help: "Inbound real-time messages by type",
		}, []string{"type"}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kw_dropped_frames_total",
			Help: "Frames dropped because a client's send buffer was full",
		}),
		PreviewDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "kw_preview_duration_seconds",
			Help: "Duration of preview computations",
		}, []string{"node_type"}),
	}
	reg.MustRegister(m.ActiveConnections, m.MessagesTotal, m.DroppedFrames, m.PreviewDuration)
	return m
}
