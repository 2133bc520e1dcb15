// Package metrics declares the Prometheus collectors this service
// exports, registered against the default registry and served at
// GET /metrics (internal/api/router.go), grounded on the teacher's use
// of promhttp.Handler() in handler.go and cmd/api/main.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounting_reservations_total",
		Help: "Reservation attempts by service type and outcome.",
	}, []string{"service_type", "outcome"})

	ReleasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounting_releases_total",
		Help: "Reservation releases by outcome.",
	}, []string{"outcome"})

	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounting_charges_total",
		Help: "Completed charging decisions by service type and case.",
	}, []string{"service_type", "case"})

	ChargeAmount = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "accounting_charge_amount",
		Help:    "Charged amount per charging decision.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 12),
	}, []string{"service_type"})

	QueueMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounting_queue_messages_total",
		Help: "Queue messages processed by queue and outcome.",
	}, []string{"queue", "outcome"})

	TaskTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "accounting_task_tick_duration_seconds",
		Help:    "Duration of one periodic task tick.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	TaskTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounting_task_ticks_total",
		Help: "Periodic task ticks by task name and outcome.",
	}, []string{"task", "outcome"})
)
