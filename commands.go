package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sgplan/backup"
	"sgplan/config"
	"sgplan/experiments"
	"sgplan/metrics"
	"sgplan/planner"
	"sgplan/policy"
	"sgplan/snapshot"
	"sgplan/tabular"
)

var (
	configPath string
	envFile    string
	operator   string
	gameName   string
	warmStart  string
	serve      bool
	games      []string
	operators  []string
	workers    int

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:           "sgplan",
		Short:         "Plan joint policies for stochastic games with game-theoretic value iteration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath, envFile)
			if err != nil {
				return err
			}
			if operator != "" {
				cfg.Planner.Operator = operator
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			setupLogging(cfg.Log)
			return nil
		},
	}

	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Plan a built-in or YAML game and print every state's value",
		Args:  cobra.NoArgs,
		RunE:  runPlan,
	}

	gamesCmd = &cobra.Command{
		Use:   "games",
		Short: "List the built-in games",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range tabular.BuiltinNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}

	experimentCmd = &cobra.Command{
		Use:   "experiment",
		Short: "Plan every game with every operator and write the records to the trace directory",
		Args:  cobra.NoArgs,
		RunE:  runExperiment,
	}

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect or delete saved Q-value snapshots",
	}
	snapshotLatestCmd = &cobra.Command{
		Use:   "latest",
		Short: "Print the most recent snapshot run and its entry count",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotLatest,
	}
	snapshotDeleteCmd = &cobra.Command{
		Use:   "delete [run]",
		Short: "Delete the entries of a snapshot run",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotDelete,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "sgplan.yaml", "YAML config file; missing files keep the defaults")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "env file loaded before SGPLAN_* variables are read")
	rootCmd.PersistentFlags().StringVarP(&operator, "operator", "o", "", "backup operator: "+strings.Join(backup.Names, ", "))

	planCmd.Flags().StringVarP(&gameName, "game", "g", "prisoners-dilemma", "built-in game name or YAML game file")
	planCmd.Flags().StringVar(&warmStart, "warm-start", "", "snapshot run to seed Q-values from (\"latest\" for the newest)")
	planCmd.Flags().BoolVar(&serve, "serve", false, "keep serving metrics after planning until interrupted")

	experimentCmd.Flags().StringSliceVar(&games, "games", tabular.BuiltinNames(), "games to plan")
	experimentCmd.Flags().StringSliceVar(&operators, "operators", backup.Names, "operators to plan each game with")
	experimentCmd.Flags().IntVarP(&workers, "workers", "w", 0, "games planned at once (0 for one per CPU)")

	snapshotCmd.AddCommand(snapshotLatestCmd, snapshotDeleteCmd)
	rootCmd.AddCommand(planCmd, gamesCmd, experimentCmd, snapshotCmd)
}

func setupLogging(c config.LogConfig) {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// newCollector returns a Prometheus-backed collector served on the configured address,
// or a plain counting collector when no address is set.
func newCollector(ctx context.Context) (metrics.Collector, func()) {
	if cfg.Metrics.Addr == "" {
		return metrics.NewCollector(), func() {}
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewPrometheusCollector(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	return collector, func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
}

func openSnapshots() (*snapshot.Store, error) {
	if cfg.Output.SnapshotDir == "" {
		return nil, errors.New("no snapshot directory configured (output.snapshot_dir or SGPLAN_SNAPSHOT_DIR)")
	}
	return snapshot.Open(snapshot.Config{Path: cfg.Output.SnapshotDir, Verbose: cfg.Log.Level == "debug"})
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, err := tabular.Resolve(gameName)
	if err != nil {
		return err
	}

	var store *snapshot.Store
	if cfg.Output.SnapshotDir != "" {
		store, err = openSnapshots()
		if err != nil {
			return err
		}
		defer store.Close()
	}

	options := []planner.Option{}
	if warmStart != "" {
		if store == nil {
			return errors.New("--warm-start needs a snapshot directory")
		}
		runID := warmStart
		if runID == "latest" {
			if runID, err = store.Latest(); err != nil {
				return err
			}
		}
		qInit, err := store.Init(runID, nil, nil)
		if err != nil {
			return fmt.Errorf("warm start: %w", err)
		}
		log.Info().Str("run", runID).Msg("Warm-starting from snapshot")
		options = append(options, planner.WithQInit(qInit))
	}

	collector, shutdown := newCollector(ctx)
	defer shutdown()

	vi, result, err := experiments.Plan(g, cfg, collector, options...)
	if err != nil {
		return err
	}
	values, err := experiments.Values(1, vi)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d sweeps over %d states, max change %g (converged: %t)\n\n",
		g.Name(), result.Iterations, len(vi.States()), result.MaxChange, result.Converged)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tAGENT\tVALUE")
	for _, v := range values {
		fmt.Fprintf(tw, "%s\t%s\t%.6g\n", v.State, v.Agent, v.Value)
	}
	tw.Flush()

	if err := printPolicies(cmd, g, vi); err != nil {
		return err
	}

	runID := uuid.NewString()
	if cfg.Output.TraceDir != "" {
		w, err := metrics.NewWriter(cfg.Output.TraceDir)
		if err != nil {
			return err
		}
		runID = w.RunID()
		record := metrics.RunRecord{ID: 1, Game: g.Name(), Converged: result.Converged, RunMetric: result.Metric}
		if err := w.WriteRuns([]metrics.RunRecord{record}); err != nil {
			return err
		}
		if err := w.WriteSweeps(metrics.Sweeps(record)); err != nil {
			return err
		}
		if err := w.WriteValues(values); err != nil {
			return err
		}
		log.Info().Str("dir", w.Dir()).Msg("Wrote trace")
	}
	if store != nil {
		if err := store.Save(runID, vi.QSources()); err != nil {
			return err
		}
	}

	if serve && cfg.Metrics.Addr != "" {
		log.Info().Msg("Planning done, serving metrics until interrupted")
		<-ctx.Done()
	}
	return nil
}

func printPolicies(cmd *cobra.Command, g *tabular.Game, vi *planner.ValueIteration) error {
	out := cmd.OutOrStdout()
	start := g.Start()
	if g.IsTerminal(start) {
		return nil
	}
	for _, a := range g.Agents() {
		pol := policy.ForOperator(vi.Operator(), a.Name, g.Agents(), vi.QSources(), cfg.Policy.Epsilon, policy.WithSeed(cfg.Policy.Seed))
		dist, err := pol.Distribution(start)
		if err != nil {
			return fmt.Errorf("policy of %q: %w", a.Name, err)
		}
		fmt.Fprintf(out, "\n%s for %s at %s:\n", pol, a.Name, start)
		for _, ap := range dist {
			fmt.Fprintf(out, "  %v\t%.4f\n", ap.Action, ap.P)
		}
	}
	return nil
}

func runExperiment(cmd *cobra.Command, args []string) error {
	dir := cfg.Output.TraceDir
	if dir == "" {
		dir = "traces"
	}
	w, err := metrics.NewWriter(dir)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := experiments.Run(ctx, experiments.Setup{
		Name:      "operators_by_game",
		Games:     games,
		Operators: operators,
		Config:    cfg,
		Workers:   workers,
	}, w)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d runs written to %s\n", len(records), w.Dir())
	return nil
}

func runSnapshotLatest(cmd *cobra.Command, args []string) error {
	store, err := openSnapshots()
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.Latest()
	if err != nil {
		return err
	}
	entries, err := store.Entries(runID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d entries\n", runID, entries)
	return nil
}

func runSnapshotDelete(cmd *cobra.Command, args []string) error {
	store, err := openSnapshots()
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Delete(args[0])
}
