package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipdevolve/internal/agent"
	"ipdevolve/internal/game"
	"ipdevolve/internal/model"
	"ipdevolve/internal/tournament"
)

func TestRecorderObserveGeneration(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	snapshot := model.GenerationSnapshot{
		RunID:            "run-1",
		Generation:       1,
		Policy:           "score_threshold",
		AverageScore:     1.75,
		DistinctGenomes:  12,
		FractionExplored: 1e-20,
		AverageAge:       0.5,
		FitCount:         6,
		ElapsedMillis:    40,
		Controls: []model.ControlScore{
			{Opponent: "tit_for_tat", WinPercent: 62.5},
		},
	}
	require.NoError(t, r.ObserveGeneration(context.Background(), snapshot))
	snapshot.Generation = 2
	require.NoError(t, r.ObserveGeneration(context.Background(), snapshot))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.GenerationsTotal.WithLabelValues("run-1", "score_threshold")))
	assert.Equal(t, 1.75, testutil.ToFloat64(r.AverageScore.WithLabelValues("run-1")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.DistinctGenomes.WithLabelValues("run-1")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.FitCount.WithLabelValues("run-1")))
	assert.Equal(t, 62.5, testutil.ToFloat64(r.ControlWinPercent.WithLabelValues("run-1", "tit_for_tat")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var histogram *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "ipdevolve_evolution_generation_seconds" {
			histogram = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, histogram)
	assert.Equal(t, uint64(2), histogram.GetSampleCount())
	assert.InDelta(t, 0.08, histogram.GetSampleSum(), 1e-9)
}

func TestRecorderObserveMatch(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())
	a, err := agent.ReferenceBot(agent.TitForTatName)
	require.NoError(t, err)
	b, err := agent.ReferenceBot(agent.AlwaysDefectName)
	require.NoError(t, err)

	result := game.Result{Rounds: make([]model.RoundResult, 7)}
	r.ObserveMatch(tournament.Fixture{A: a, B: b, Options: game.Options{Rounds: 7, CountsTowardsWins: true}}, result)
	r.ObserveMatch(tournament.Fixture{A: a, B: b, Options: game.Options{Rounds: 7}}, result)
	r.ObserveMatch(tournament.Fixture{A: a, B: b, Options: game.Options{Rounds: 7}}, result)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.MatchesTotal.WithLabelValues(MatchKindPool)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.MatchesTotal.WithLabelValues(MatchKindControl)))
	assert.Equal(t, 14.0, testutil.ToFloat64(r.RoundsTotal.WithLabelValues(MatchKindControl)))
}

func TestNewRecorderRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	assert.Panics(t, func() { NewRecorder(reg) })
}
