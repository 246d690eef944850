// Package metrics registers the Prometheus counters exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_checkins_total",
		Help: "Student check-in attempts by result.",
	}, []string{"result"})

	RequestsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_requests_resolved_total",
		Help: "Absence requests resolved by outcome.",
	}, []string{"outcome"})

	WarningsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_warnings_created_total",
		Help: "Threshold warnings stored.",
	})

	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sessions_total",
		Help: "Session lifecycle events.",
	}, []string{"event"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})
)
