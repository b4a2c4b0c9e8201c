package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages persisted",
	})
	InboundEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_inbound_events_total",
		Help: "Inbound socket events by type and outcome",
	}, []string{"type", "outcome"})
	PushesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_pushes_dropped_total",
		Help: "Outbound events dropped because the connection buffer was full or closed",
	})
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call twice.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Connections, MessagesSent, InboundEvents, PushesDropped)
	})
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
