package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/aggregates/upload"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/events"
	"github.com/iota-uz/payroll-reconciler/modules/dataimport/domain/review"
)

var (
	importTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "import",
		Name:      "transitions_total",
		Help:      "Status transitions fired, by transition.",
	}, []string{"transition"})

	importStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "import",
		Subsystem: "stage",
		Name:      "duration_seconds",
		Help:      "Stage step duration, by step and result.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"step", "result"})

	importReviewDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "import",
		Subsystem: "review",
		Name:      "queue_depth",
		Help:      "Remaining review items of the last observed file, by kind.",
	}, []string{"kind"})

	importReviewDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "import",
		Subsystem: "review",
		Name:      "decisions_total",
		Help:      "Review decisions, by kind and decision.",
	}, []string{"kind", "decision"})

	importUnclassifiedUnits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "import",
		Name:      "unclassified_units_total",
		Help:      "Units left without a taxonomy after classification.",
	})

	importUnattributedRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "import",
		Name:      "unattributed_rows_total",
		Help:      "Raw rows of finished imports that named no employer.",
	})

	importRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "import",
		Name:      "rejected_uploads_total",
		Help:      "Uploads rejected by validation.",
	})

	importWriteConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "import",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Constraint violations surfaced by import writes, by kind.",
	}, []string{"kind"})
)

func recordTransition(t upload.Transition) {
	importTransitions.WithLabelValues(string(t)).Inc()
}

func recordStage(step events.Step, err error, d time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	importStageDuration.WithLabelValues(string(step), result).Observe(d.Seconds())
}

func recordReviewDepth(kind review.Kind, n int64) {
	importReviewDepth.WithLabelValues(string(kind)).Set(float64(n))
}

func recordDecision(kind review.Kind, merged bool) {
	decision := "create"
	if merged {
		decision = "merge"
	}
	importReviewDecisions.WithLabelValues(string(kind), decision).Inc()
}

func recordUnclassified(n int) {
	importUnclassifiedUnits.Add(float64(n))
}

func recordUnattributed(n int64) {
	importUnattributedRows.Add(float64(n))
}

func recordRejected() {
	importRejected.Inc()
}

func recordWriteConflict(kind string) {
	importWriteConflicts.WithLabelValues(kind).Inc()
}
