package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photos_engine_loads_total",
			Help: "Page load requests handled by query engines, by outcome",
		},
		[]string{"outcome"},
	)

	upstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photos_upstream_requests_total",
			Help: "Requests sent to photo providers, by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	upstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photos_upstream_request_duration_seconds",
			Help:    "Latency of photo provider requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photos_request_cache_lookups_total",
			Help: "Request cache lookups, by result",
		},
		[]string{"result"},
	)

	sessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photos_sessions_created_total",
			Help: "Search sessions created since start",
		},
	)

	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photos_http_requests_total",
			Help: "HTTP requests served, by route and status",
		},
		[]string{"route", "status"},
	)
)
