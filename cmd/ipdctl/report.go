package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"ipdevolve/internal/model"
	ipd "ipdevolve/pkg/ipdevolve"
)

func printGeneration(w io.Writer, s model.GenerationSnapshot) {
	fmt.Fprintf(w, "generation=%s avg_score=%.4f fit=%s distinct=%s explored=%.3g avg_age=%.3f mode=%s elapsed=%s\n",
		humanize.Comma(int64(s.Generation)),
		s.AverageScore,
		humanize.Comma(int64(s.FitCount)),
		humanize.Comma(int64(s.DistinctGenomes)),
		s.FractionExplored,
		s.AverageAge,
		s.Mode,
		time.Duration(s.ElapsedMillis)*time.Millisecond,
	)
	for _, c := range s.Controls {
		fmt.Fprintf(w, "  vs %-16s avg_score=%.4f win=%.1f%%\n", c.Opponent, c.AverageScore, c.WinPercent)
	}
}

func printRunSummary(w io.Writer, summary ipd.RunSummary) {
	fmt.Fprintf(w, "run_id=%s seed=%d generations=%d termination=%s matches=%s\n",
		summary.RunID,
		summary.Seed,
		len(summary.AverageScores),
		summary.TerminationReason,
		humanize.Comma(summary.CompletedMatches),
	)
	fmt.Fprintf(w, "final avg_score=%.4f eldest=%s (age %d) artifacts=%s\n",
		summary.Final.AverageScore,
		summary.Final.Eldest,
		summary.Final.EldestAge,
		summary.ArtifactsDir,
	)
	for _, g := range summary.TopGenomes {
		fmt.Fprintf(w, "  %s score=%.4f age=%d wins=%d genome=%s\n",
			humanize.Ordinal(g.Rank), g.Score, g.Age, g.Wins, g.Genome)
	}
}

func printRunHeader(w io.Writer, r model.RunRecord) {
	fmt.Fprintf(w, "run_id=%s policy=%s population=%s depth=%d rounds=%d..%d mutation=1/%s seed=%d termination=%s\n",
		r.ID, r.Policy, humanize.Comma(int64(r.PopulationSize)), r.Depth, r.MinRounds, r.MaxRounds,
		humanize.Comma(int64(r.MutationFrequency)), r.Seed, r.TerminationReason)
}

func printRuns(w io.Writer, runs []ipd.RunItem) {
	for _, r := range runs {
		created := r.CreatedAtUTC
		if t, err := time.Parse(time.RFC3339Nano, r.CreatedAtUTC); err == nil {
			created = humanize.Time(t)
		}
		fmt.Fprintf(w, "run_id=%s created=%s policy=%s population=%s generations=%d final_avg=%.4f termination=%s\n",
			r.RunID, created, r.Policy, humanize.Comma(int64(r.Population)), r.Generations, r.FinalAverageScore, r.TerminationReason)
	}
}

func printPlay(w io.Writer, out ipd.PlaySummary, verbose bool) {
	if verbose {
		for _, r := range out.Result.Rounds {
			fmt.Fprintf(w, "round=%d a=%s b=%s score=%d/%d\n", r.Round, r.ChoiceA, r.ChoiceB, r.ScoreA, r.ScoreB)
		}
	}
	fmt.Fprintf(w, "a=%s b=%s rounds=%d score_a=%d score_b=%d a_wins=%t\n",
		shorten(out.A), shorten(out.B), len(out.Result.Rounds), out.Result.ScoreA, out.Result.ScoreB, out.Result.Win)
}

func printSpace(w io.Writer, s ipd.SpaceSummary) {
	fmt.Fprintf(w, "depth=%d genome_bits=%d distinct_genomes=2^%d\n", s.Depth, s.GenomeBits, s.GenomeBits)
	fmt.Fprintf(w, "outcomes=%s\n", strings.Join(s.Outcomes, ","))
	fmt.Fprintf(w, "controls=%s\n", strings.Join(s.ControlBots, ","))
	fmt.Fprintf(w, "policies=%s\n", strings.Join(s.Policies, ","))
}

func printDecisions(w io.Writer, decisions []ipd.Decision) {
	for _, d := range decisions {
		after := "opening"
		if len(d.History) > 0 {
			after = strings.Join(d.History, "<")
		}
		fmt.Fprintf(w, "  decision=%d after=%s move=%s\n", d.ID, after, d.Move)
	}
}

// shorten keeps long bit strings readable on one line.
func shorten(name string) string {
	if len(name) <= 24 {
		return name
	}
	return name[:10] + "..." + name[len(name)-10:]
}
