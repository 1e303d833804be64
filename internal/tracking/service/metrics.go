package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "location_updates_total",
		Help: "Location updates persisted and broadcast.",
	})

	updatesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "location_updates_rejected_total",
		Help: "Location updates dropped by validation.",
	})

	updatesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "location_updates_failed_total",
		Help: "Location updates that failed to persist.",
	})
)
