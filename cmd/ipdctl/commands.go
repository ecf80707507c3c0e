package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"ipdevolve/internal/model"
	"ipdevolve/internal/storage"
	ipd "ipdevolve/pkg/ipdevolve"
)

type globalOptions struct {
	storeKind    string
	dbPath       string
	artifactsDir string
	logLevel     string
	logFormat    string

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "ipdctl",
		Short:         "Evolve Iterated Prisoner's Dilemma strategies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.storeKind, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	flags.StringVar(&opts.dbPath, "db-path", "ipdevolve.db", "sqlite database path")
	flags.StringVar(&opts.artifactsDir, "artifacts-dir", "runs", "directory for run artifacts and the run index")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.StringVar(&opts.logFormat, "log-format", logFormatAuto, "log format: auto|text|json")

	root.AddCommand(
		newRunCmd(opts),
		newPlayCmd(opts),
		newRunsCmd(opts),
		newGenerationsCmd(opts),
		newTopCmd(opts),
		newSpaceCmd(),
	)
	return root
}

func (o *globalOptions) client(reg prometheus.Registerer) (*ipd.Client, error) {
	return ipd.New(ipd.Options{
		StoreKind:    o.storeKind,
		DBPath:       o.dbPath,
		ArtifactsDir: o.artifactsDir,
		Logger:       o.logger,
		Registerer:   reg,
	})
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		configPath  string
		metricsAddr string
		metricsFile string
		quiet       bool
		req         ipd.RunRequest
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an evolution until the optimum, the generation ceiling or Ctrl-C",
		RunE: func(cmd *cobra.Command, _ []string) error {
			final := req
			if configPath != "" {
				fromFile, err := loadRunRequestFromConfig(configPath)
				if err != nil {
					return err
				}
				final = mergeRunFlags(cmd, fromFile, req)
			}
			if err := applyEnvOverrides(&final, os.LookupEnv); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !quiet {
				final.OnGeneration = func(s model.GenerationSnapshot) { printGeneration(out, s) }
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			client, err := opts.client(reg)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()

			if metricsAddr != "" {
				shutdown, err := serveMetrics(metricsAddr, reg, opts.logger)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			summary, runErr := client.Run(cmd.Context(), final)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			printRunSummary(out, summary)
			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
					return fmt.Errorf("write metrics: %w", err)
				}
			}
			return runErr
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML or JSON run config; flags set explicitly win")
	flags.StringVar(&req.RunID, "run-id", "", "run id (default: random uuid)")
	flags.IntVar(&req.Population, "population", 3000, "pool size, must be even")
	flags.IntVar(&req.MinRounds, "min-rounds", 100, "minimum rounds per match")
	flags.IntVar(&req.MaxRounds, "max-rounds", 200, "maximum rounds per match")
	flags.IntVar(&req.MutationFrequency, "mutation-frequency", 10000, "1-in-N chance that an offspring bit flips")
	flags.IntVar(&req.Depth, "depth", 3, "decision tree lookback depth")
	flags.IntVar(&req.Generations, "generations", 1000, "generation ceiling")
	flags.IntVar(&req.Workers, "workers", 0, "match workers (0: GOMAXPROCS)")
	flags.Int64Var(&req.Seed, "seed", 0, "random seed (0: from clock)")
	flags.StringVar(&req.Policy, "policy", "", "selection policy: score_threshold|resource_threshold")
	flags.BoolVar(&req.Controls, "controls", false, "play control matches against reference bots every generation")
	flags.BoolVar(&req.StopWhenStable, "stop-when-stable", false, "stop once the pool's evolution mode is stable")
	flags.IntVar(&req.TopGenomes, "top", 10, "ranked genomes kept in the run artifacts")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics in text format after the run")
	flags.BoolVar(&quiet, "quiet", false, "do not print per-generation lines")
	return cmd
}

// mergeRunFlags overlays flags the user set explicitly onto a file config.
func mergeRunFlags(cmd *cobra.Command, base, flags ipd.RunRequest) ipd.RunRequest {
	changed := cmd.Flags().Changed
	if changed("run-id") {
		base.RunID = flags.RunID
	}
	if changed("population") {
		base.Population = flags.Population
	}
	if changed("min-rounds") {
		base.MinRounds = flags.MinRounds
	}
	if changed("max-rounds") {
		base.MaxRounds = flags.MaxRounds
	}
	if changed("mutation-frequency") {
		base.MutationFrequency = flags.MutationFrequency
	}
	if changed("depth") {
		base.Depth = flags.Depth
	}
	if changed("generations") {
		base.Generations = flags.Generations
	}
	if changed("workers") {
		base.Workers = flags.Workers
	}
	if changed("seed") {
		base.Seed = flags.Seed
	}
	if changed("policy") {
		base.Policy = flags.Policy
	}
	if changed("controls") {
		base.Controls = flags.Controls
	}
	if changed("stop-when-stable") {
		base.StopWhenStable = flags.StopWhenStable
	}
	if changed("top") {
		base.TopGenomes = flags.TopGenomes
	}
	return base
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", listener.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

func newPlayCmd(opts *globalOptions) *cobra.Command {
	var (
		req     ipd.PlayRequest
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "play <a> <b>",
		Short: "Play one match between reference bots, random or bit-string genomes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(nil)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			req.A, req.B = args[0], args[1]
			out, err := client.Play(cmd.Context(), req)
			if err != nil {
				return err
			}
			printPlay(cmd.OutOrStdout(), out, verbose)
			return nil
		},
	}
	cmd.Flags().IntVar(&req.Rounds, "rounds", 0, "rounds to play (0: draw from 100..200)")
	cmd.Flags().IntVar(&req.Depth, "depth", 3, "decision tree lookback depth")
	cmd.Flags().Int64Var(&req.Seed, "seed", 0, "random seed (0: from clock)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every round")
	return cmd
}

func newRunsCmd(opts *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client(nil)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			runs, err := client.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func newGenerationsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generations <run-id>",
		Short: "Print the per-generation snapshots of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(nil)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			run, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			snapshots, err := client.Generations(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRunHeader(cmd.OutOrStdout(), run)
			for _, s := range snapshots {
				printGeneration(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func newTopCmd(opts *globalOptions) *cobra.Command {
	var (
		limit   int
		explain bool
	)
	cmd := &cobra.Command{
		Use:   "top <run-id>",
		Short: "Print the best genomes of a finished run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(nil)
			if err != nil {
				return err
			}
			defer func() {
				_ = client.Close()
			}()
			top, err := client.TopGenomes(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, g := range top {
				fmt.Fprintf(out, "rank=%d score=%.4f age=%d wins=%d fingerprint=%s genome=%s\n",
					g.Rank, g.Score, g.Age, g.Wins, g.Fingerprint, g.Genome)
				if !explain {
					continue
				}
				decisions, err := ipd.Explain(g.Genome)
				if err != nil {
					return err
				}
				printDecisions(out, decisions)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum genomes to print")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the move each genome bit encodes")
	return cmd
}

func newSpaceCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Describe the genome space for a lookback depth",
		RunE: func(cmd *cobra.Command, _ []string) error {
			space, err := ipd.Space(depth)
			if err != nil {
				return err
			}
			printSpace(cmd.OutOrStdout(), space)
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 3, "decision tree lookback depth")
	return cmd
}
