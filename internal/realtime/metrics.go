package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections_active",
		Help: "Currently open websocket connections.",
	})

	broadcastsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_broadcast_deliveries_total",
		Help: "Events delivered to room members.",
	})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_events_dropped_total",
		Help: "Events dropped because a client send buffer was full.",
	})
)
