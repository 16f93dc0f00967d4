package anchor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recomputation results.
const (
	resultPublished = "published"
	resultUnchanged = "unchanged"
	resultDiscarded = "discarded"
	resultFailed    = "failed"
)

var (
	// recomputations counts strategy invocations by outcome.
	recomputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_recomputations_total",
		Help: "Anchor position recomputations by result",
	}, []string{"result"})

	// strategyFallbacks counts reference-point fallbacks by strategy and cause.
	strategyFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anchor_strategy_fallbacks_total",
		Help: "Strategy fallbacks to the anchorage reference point",
	}, []string{"strategy", "reason"})

	attachedKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anchor_attached_keys",
		Help: "Keys currently attached across all anchors",
	})

	pendingRegistrations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anchor_pending_registrations",
		Help: "Elements waiting for FlushPendingRegistrations",
	})
)
