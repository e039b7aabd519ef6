// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the gateway.
//
// # Description
//
// Metrics cover the request pipeline (counts, latency, rate-limit
// denials), upstream provider traffic (requests, tokens, active
// streams), and the hash chains (appends, erasures, verification
// failures). Exposed on GET /metrics for Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all gateway metrics.
const metricsNamespace = "gateway"

// Metrics holds the gateway's Prometheus instruments.
//
// Create one per process with NewMetrics; tests pass their own registry
// so parallel instances never collide on registration.
type Metrics struct {
	// RequestsTotal counts terminal responses.
	// Labels: route (gin route template), method, status
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures end-to-end request latency.
	// Labels: route
	RequestDurationSeconds *prometheus.HistogramVec

	// RateLimitedTotal counts 429 denials by route class.
	// Labels: class (chat, memory, agents, global)
	RateLimitedTotal *prometheus.CounterVec

	// ProviderRequestsTotal counts upstream exchanges.
	// Labels: provider, status (success, error)
	ProviderRequestsTotal *prometheus.CounterVec

	// ProviderTokensTotal counts tokens reported by upstreams.
	// Labels: provider, direction (input, output)
	ProviderTokensTotal *prometheus.CounterVec

	// ActiveStreams tracks open streaming responses.
	// Labels: transport (sse, websocket)
	ActiveStreams *prometheus.GaugeVec

	// ChainAppendsTotal counts records appended per chain.
	// Labels: chain (audit, memory, tasks)
	ChainAppendsTotal *prometheus.CounterVec

	// ChainErasuresTotal counts redactions per chain.
	// Labels: chain
	ChainErasuresTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the gateway instruments on reg.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Total terminal responses by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end request latency in seconds",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 120},
			},
			[]string{"route"},
		),

		RateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rate_limited_total",
				Help:      "Total rate-limit denials by route class",
			},
			[]string{"class"},
		),

		ProviderRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "provider_requests_total",
				Help:      "Total upstream provider exchanges by provider and outcome",
			},
			[]string{"provider", "status"},
		),

		ProviderTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "provider_tokens_total",
				Help:      "Total tokens reported by upstream providers",
			},
			[]string{"provider", "direction"},
		),

		ActiveStreams: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "active_streams",
				Help:      "Currently open streaming responses by transport",
			},
			[]string{"transport"},
		),

		ChainAppendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "chain_appends_total",
				Help:      "Total records appended per hash chain",
			},
			[]string{"chain"},
		),

		ChainErasuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "chain_erasures_total",
				Help:      "Total redactive erasures per hash chain",
			},
			[]string{"chain"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordProviderRequest records one upstream exchange outcome.
func (m *Metrics) RecordProviderRequest(provider string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ProviderRequestsTotal.WithLabelValues(provider, status).Inc()
}

// RecordProviderTokens records upstream-reported token usage.
func (m *Metrics) RecordProviderTokens(provider string, input, output int) {
	if input > 0 {
		m.ProviderTokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		m.ProviderTokensTotal.WithLabelValues(provider, "output").Add(float64(output))
	}
}

// StreamStarted and StreamEnded bracket a streaming response's lifetime.
func (m *Metrics) StreamStarted(transport string) {
	m.ActiveStreams.WithLabelValues(transport).Inc()
}

func (m *Metrics) StreamEnded(transport string) {
	m.ActiveStreams.WithLabelValues(transport).Dec()
}

// RecordChainAppend records one chain append.
func (m *Metrics) RecordChainAppend(chainName string) {
	m.ChainAppendsTotal.WithLabelValues(chainName).Inc()
}

// RecordChainErasures records n redactive erasures.
func (m *Metrics) RecordChainErasures(chainName string, n int) {
	if n > 0 {
		m.ChainErasuresTotal.WithLabelValues(chainName).Add(float64(n))
	}
}

// =============================================================================
// Gin Middleware
// =============================================================================

// Middleware records request count and latency for every terminal
// response. The route label is the gin template ("/tasks/:id/claim"),
// not the raw path, so cardinality stays bounded; unmatched paths fall
// under "unmatched".
func Middleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.RequestsTotal.WithLabelValues(route, c.Request.Method, status).Inc()
		m.RequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if c.Writer.Status() == 429 {
			m.RateLimitedTotal.WithLabelValues(routeClass(route)).Inc()
		}
	}
}

// routeClass mirrors the rate limiter's class taxonomy for the denial
// counter.
func routeClass(route string) string {
	switch {
	case len(route) >= 3 && route[:3] == "/v1":
		return "chat"
	case len(route) >= 7 && route[:7] == "/memory":
		return "memory"
	case route == "/agents":
		return "agents"
	default:
		return "global"
	}
}
