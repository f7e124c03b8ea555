// Copyright 2025 LingoPilot
// SPDX-License-Identifier: BUSL-1.1

package practice

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingopilot_practice_turns_total",
			Help: "Total number of practice turns processed",
		},
		[]string{"mode", "status"},
	)
	promProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lingopilot_practice_provider_duration_milliseconds",
			Help:    "External provider call duration in milliseconds",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"provider"},
	)
	promBlocksPurchased = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lingopilot_practice_blocks_purchased_total",
			Help: "Total number of overage blocks purchased",
		},
		[]string{"trigger"},
	)
	promRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lingopilot_practice_rate_limited_total",
			Help: "Total number of requests denied by the rate limiter",
		},
	)
	promAdmissionDenied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lingopilot_practice_monthly_cap_denied_total",
			Help: "Total number of requests denied by the monthly margin guard",
		},
	)
)

func init() {
	prometheus.MustRegister(promTurnsTotal)
	prometheus.MustRegister(promProviderDuration)
	prometheus.MustRegister(promBlocksPurchased)
	prometheus.MustRegister(promRateLimited)
	prometheus.MustRegister(promAdmissionDenied)
}
