package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics chat realtime metrics, nil safe
type Metrics struct {
	Connections   prometheus.Gauge
	OnlineMembers prometheus.Gauge
	Messages      *prometheus.CounterVec
	DroppedFrames prometheus.Counter
	InboundFrames *prometheus.CounterVec
}

// NewMetrics register chat metrics into reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "team_chat_connections",
			Help: "Current number of open chat websocket connections",
		}),
		OnlineMembers: f.NewGauge(prometheus.GaugeOpts{
			Name: "team_chat_online_members",
			Help: "Current number of online team members",
		}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "team_chat_messages_total",
			Help: "Chat mutations persisted, by action and result",
		}, []string{"action", "result"}),
		DroppedFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "team_chat_dropped_frames_total",
			Help: "Outbound frames dropped because a subscriber buffer was full",
		}),
		InboundFrames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "team_chat_inbound_frames_total",
			Help: "Inbound websocket frames, by action",
		}, []string{"action"}),
	}
}

func (m *Metrics) connOpened() {
	if m == nil || m.Connections == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil || m.Connections == nil {
		return
	}
	m.Connections.Dec()
}

func (m *Metrics) setOnline(n int) {
	if m == nil || m.OnlineMembers == nil {
		return
	}
	m.OnlineMembers.Set(float64(n))
}

func (m *Metrics) recordMessage(action string, err error) {
	if m == nil || m.Messages == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Messages.WithLabelValues(action, result).Inc()
}

func (m *Metrics) recordDropped(n int) {
	if m == nil || m.DroppedFrames == nil || n == 0 {
		return
	}
	m.DroppedFrames.Add(float64(n))
}

func (m *Metrics) recordInbound(action string) {
	if m == nil || m.InboundFrames == nil {
		return
	}
	m.InboundFrames.WithLabelValues(action).Inc()
}
