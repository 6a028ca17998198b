package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ConnectedClients    prometheus.Gauge
	Decorations         prometheus.Gauge
	DecorationsPlaced   prometheus.Counter
	DecorationsEvicted  prometheus.Counter
	MessagesAdmitted    prometheus.Counter
	MessagesRateLimited prometheus.Counter
	DeliveryFaults      prometheus.Counter
	FramesBroadcast     prometheus.Counter
}

// NewMetrics registers the hub metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConnectedClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "tree_connected_clients",
			Help: "Current number of connected clients",
		}),
		Decorations: f.NewGauge(prometheus.GaugeOpts{
			Name: "tree_decorations",
			Help: "Current number of decorations on the tree",
		}),
		DecorationsPlaced: f.NewCounter(prometheus.CounterOpts{
			Name: "tree_decorations_placed_total",
			Help: "Total number of decorations placed",
		}),
		DecorationsEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "tree_decorations_evicted_total",
			Help: "Total number of decorations evicted by the capacity bound",
		}),
		MessagesAdmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "tree_messages_admitted_total",
			Help: "Total number of messages broadcast",
		}),
		MessagesRateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "tree_messages_rate_limited_total",
			Help: "Total number of messages dropped by the cooldown",
		}),
		DeliveryFaults: f.NewCounter(prometheus.CounterOpts{
			Name: "tree_delivery_faults_total",
			Help: "Total number of failed per-client sends",
		}),
		FramesBroadcast: f.NewCounter(prometheus.CounterOpts{
			Name: "tree_frames_broadcast_total",
			Help: "Total number of broadcast frames handed to client connections",
		}),
	}
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.ConnectedClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.ConnectedClients.Dec()
}

func (m *Metrics) DecorationPlaced(total int) {
	if m == nil {
		return
	}
	m.DecorationsPlaced.Inc()
	m.Decorations.Set(float64(total))
}

func (m *Metrics) DecorationEvicted() {
	if m == nil {
		return
	}
	m.DecorationsEvicted.Inc()
}

func (m *Metrics) MessageAdmitted() {
	if m == nil {
		return
	}
	m.MessagesAdmitted.Inc()
}

func (m *Metrics) MessageRateLimited() {
	if m == nil {
		return
	}
	m.MessagesRateLimited.Inc()
}

func (m *Metrics) DeliveryFault() {
	if m == nil {
		return
	}
	m.DeliveryFaults.Inc()
}

// Broadcast records one fan-out. Dropped sends are counted by DeliveryFault.
func (m *Metrics) Broadcast(sentTo, _ int) {
	if m == nil {
		return
	}
	m.FramesBroadcast.Add(float64(sentTo))
}
