// Package metrics declares the orchestrator's Prometheus collectors. Every
// timed operation named in the core dataflow (lock acquisition, intent
// recognition, handler execution, deferred-action lifecycle) increments or
// observes one of these.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionLockWait observes how long a caller waited to acquire the
	// execution lock, labeled by whether it ultimately succeeded.
	ExecutionLockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "aura_execution_lock_wait_seconds",
			Help: "Time spent waiting to acquire the execution lock.",
		},
		[]string{"outcome"},
	)

	// IntentLockWait observes the same for the independent intent lock.
	IntentLockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "aura_intent_lock_wait_seconds",
			Help: "Time spent waiting to acquire the intent lock.",
		},
		[]string{"outcome"},
	)

	// IntentRecognitionDuration observes how long classification took,
	// labeled by the resolved intent kind and whether it was a fallback.
	IntentRecognitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "aura_intent_recognition_duration_seconds",
			Help: "Time spent classifying an utterance's intent.",
		},
		[]string{"kind", "fallback"},
	)

	// IntentFallbackTotal counts intent recognition fallbacks, labeled by
	// reason (reasoning_unavailable, intent_lock_timeout, parse_failed,
	// unknown_label, low_confidence).
	IntentFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_intent_fallback_total",
			Help: "Count of intent recognition fallbacks to GUI_INTERACTION, by reason.",
		},
		[]string{"reason"},
	)

	// HandlerDuration observes end-to-end handler execution time, labeled
	// by intent kind, resolution method, and final status.
	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "aura_handler_duration_seconds",
			Help: "Time spent executing a handler for one utterance.",
		},
		[]string{"kind", "method", "status"},
	)

	// DeferredLifecycleTotal counts deferred-action state transitions.
	DeferredLifecycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_deferred_lifecycle_total",
			Help: "Count of deferred action lifecycle transitions, by state.",
		},
		[]string{"state"},
	)

	// ErrorsTotal counts handler and orchestrator errors by error code.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_errors_total",
			Help: "Count of errors surfaced to the user, by error code.",
		},
		[]string{"code"},
	)

	// ActiveDeferred reports whether a deferred action is currently armed
	// (0 or 1); there is at most one at a time by construction.
	ActiveDeferred = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aura_active_deferred",
			Help: "1 if a deferred action is currently armed and waiting for a click, else 0.",
		},
	)
)
