// Package metrics exports evolution progress as Prometheus collectors. A
// Recorder is both a generation observer and a match observer.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ipdevolve/internal/game"
	"ipdevolve/internal/model"
	"ipdevolve/internal/tournament"
)

const (
	metricsNamespace = "ipdevolve"
	evolutionSubsys  = "evolution"
)

const (
	MatchKindPool    = "pool"
	MatchKindControl = "control"
)

type Recorder struct {
	GenerationsTotal  *prometheus.CounterVec
	MatchesTotal      *prometheus.CounterVec
	RoundsTotal       *prometheus.CounterVec
	AverageScore      *prometheus.GaugeVec
	DistinctGenomes   *prometheus.GaugeVec
	FractionExplored  *prometheus.GaugeVec
	AverageAge        *prometheus.GaugeVec
	FitCount          *prometheus.GaugeVec
	ControlWinPercent *prometheus.GaugeVec
	GenerationSeconds *prometheus.HistogramVec
}

// NewRecorder registers every collector with reg. Use a fresh registry per
// run in tests to avoid duplicate registration.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	gauge := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: evolutionSubsys,
			Name:      name,
			Help:      help,
		}, labels)
	}

	return &Recorder{
		GenerationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: evolutionSubsys,
			Name:      "generations_total",
			Help:      "Completed generations by run and policy",
		}, []string{"run_id", "policy"}),
		MatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: evolutionSubsys,
			Name:      "matches_total",
			Help:      "Completed matches by kind",
		}, []string{"kind"}),
		RoundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: evolutionSubsys,
			Name:      "rounds_total",
			Help:      "Resolved rounds by match kind",
		}, []string{"kind"}),
		AverageScore:      gauge("average_score", "Mean per-round pool score of the last generation, lower is better", "run_id"),
		DistinctGenomes:   gauge("distinct_genomes", "Distinct genomes in the last generation", "run_id"),
		FractionExplored:  gauge("fraction_explored", "Fraction of the genome space observed so far", "run_id"),
		AverageAge:        gauge("average_age", "Mean member age in generations", "run_id"),
		FitCount:          gauge("fit_count", "Members eligible to reproduce", "run_id"),
		ControlWinPercent: gauge("control_win_percent", "Win percentage against a control opponent", "run_id", "opponent"),
		GenerationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: evolutionSubsys,
			Name:      "generation_seconds",
			Help:      "Wall time per generation",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"run_id"}),
	}
}

func (r *Recorder) ObserveGeneration(_ context.Context, s model.GenerationSnapshot) error {
	r.GenerationsTotal.WithLabelValues(s.RunID, s.Policy).Inc()
	r.AverageScore.WithLabelValues(s.RunID).Set(s.AverageScore)
	r.DistinctGenomes.WithLabelValues(s.RunID).Set(float64(s.DistinctGenomes))
	r.FractionExplored.WithLabelValues(s.RunID).Set(s.FractionExplored)
	r.AverageAge.WithLabelValues(s.RunID).Set(s.AverageAge)
	r.FitCount.WithLabelValues(s.RunID).Set(float64(s.FitCount))
	for _, c := range s.Controls {
		r.ControlWinPercent.WithLabelValues(s.RunID, c.Opponent).Set(c.WinPercent)
	}
	r.GenerationSeconds.WithLabelValues(s.RunID).Observe(float64(s.ElapsedMillis) / 1000)
	return nil
}

// ObserveMatch is safe to call from worker goroutines.
func (r *Recorder) ObserveMatch(f tournament.Fixture, result game.Result) {
	kind := MatchKindControl
	if f.Options.CountsTowardsWins {
		kind = MatchKindPool
	}
	r.MatchesTotal.WithLabelValues(kind).Inc()
	r.RoundsTotal.WithLabelValues(kind).Add(float64(len(result.Rounds)))
}
