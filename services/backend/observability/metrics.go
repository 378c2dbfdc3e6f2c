// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability exposes the backend's Prometheus metrics.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every instrument the backend records.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	ActiveConnections prometheus.Gauge
	StreamDuration    prometheus.Histogram
	StreamChunks      prometheus.Counter
	NotificationsSent *prometheus.CounterVec
}

// New registers the backend's instruments on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saathi_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "saathi_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "saathi_ws_active_connections",
			Help: "Currently open websocket connections.",
		}),
		StreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "saathi_stream_duration_seconds",
			Help:    "Wall time of streamed completions.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		}),
		StreamChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "saathi_stream_chunks_total",
			Help: "Word-safe chunks emitted to clients.",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saathi_notifications_sent_total",
			Help: "Push notifications by app id and outcome.",
		}, []string{"app_id", "outcome"}),
	}

	registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.ActiveConnections,
		m.StreamDuration,
		m.StreamChunks,
		m.NotificationsSent,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// GinMiddleware records request counts and latency per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
