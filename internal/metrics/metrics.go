package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrackingStarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_starts_total",
			Help: "Tracking start attempts by outcome",
		},
		[]string{"result"}, // "ok", "already_tracking", "error"
	)

	TrackingFinishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracking_finishes_total",
			Help: "Tracking finish attempts by outcome",
		},
		[]string{"result"}, // "saved", "discarded", "invalid", "before_summit", "error"
	)

	TelemetryBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_batches_total",
			Help: "Telemetry batches by pipeline stage and status",
		},
		[]string{"stage", "status"}, // stage: "submit", "ingest"
	)

	TelemetryRowsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_rows_written_total",
			Help: "Live sample rows written to the store of record",
		},
	)

	DeadLettersPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telemetry_dead_letters_pending",
			Help: "Dead-lettered telemetry batches not yet replayed",
		},
	)

	BattleOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battle_outcomes_total",
			Help: "Battle outcomes recorded or dropped",
		},
		[]string{"result"}, // "W", "L", "D", "dropped"
	)
)
