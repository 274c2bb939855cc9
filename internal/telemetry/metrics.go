/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Evaluation loop

	SchedulerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_scheduler_ticks_total",
		Help: "Total number of timeline evaluations run by the loop.",
	})

	SchedulerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_scheduler_errors_total",
		Help: "Evaluation failures by stage.",
	}, []string{"stage"}) // stage=load_channels|settings|publish

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "timeline_evaluation_duration_seconds",
		Help:    "Time spent loading channels and computing states.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	ChannelsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "timeline_channels",
		Help: "Channels per state in the latest snapshot.",
	}, []string{"state"})

	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_state_transitions_total",
		Help: "Channel state changes observed between snapshots.",
	}, []string{"from", "to"})

	SettingsFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeline_settings_fallback_total",
		Help: "Evaluations that used the default minimum interval because settings could not be read.",
	})

	SnapshotGeneratedTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_snapshot_generated_timestamp_seconds",
		Help: "Unix time of the latest published snapshot.",
	})

	// Leadership

	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "timeline_leader_election_status",
		Help: "1 when this instance holds leadership.",
	}, []string{"instance_id"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_leader_election_changes_total",
		Help: "Leadership acquisitions and losses.",
	}, []string{"instance_id", "change"})

	// HTTP

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_api_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeline_api_request_duration_seconds",
		Help:    "HTTP request latency by method, route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_api_websocket_connections",
		Help: "Open timeline stream connections.",
	})

	// Storage

	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeline_database_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_database_errors_total",
		Help: "Database operation failures.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_database_connections_active",
		Help: "Open database connections.",
	})

	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_cache_requests_total",
		Help: "Cache lookups by key family and outcome.",
	}, []string{"key", "outcome"}) // outcome=hit|miss|error

	// Fan-out

	EventBusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_eventbus_published_total",
		Help: "Events published to the distributed bus.",
	}, []string{"backend", "type"})

	EventBusDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_eventbus_drops_total",
		Help: "Payloads dropped because a local subscriber was full.",
	}, []string{"type"})

	EventBusErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_eventbus_errors_total",
		Help: "Distributed bus failures by backend and operation.",
	}, []string{"backend", "op"})

	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome.",
	}, []string{"event", "outcome"}) // outcome=success|failure
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
