// Package experiments plans batches of games with batches of backup operators and stores
// the run, sweep and value records of every combination.
package experiments

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"sgplan/config"
	"sgplan/metrics"
	"sgplan/planner"
	"sgplan/tabular"
)

// Setup describes one experiment: every game is planned with every operator.
type Setup struct {
	Name      string
	Games     []string // built-in names or YAML paths
	Operators []string
	Config    config.Config
	Workers   int // concurrent runs; NumCPU when not positive
}

// Plan runs value iteration over the states reachable from the start of g, using the
// planner settings of cfg. Extra options are applied after the configured ones.
func Plan(g *tabular.Game, cfg config.Config, collector metrics.Collector, options ...planner.Option) (*planner.ValueIteration, planner.Result, error) {
	op, err := cfg.Operator()
	if err != nil {
		return nil, planner.Result{}, err
	}

	opts, viOpts := cfg.PlannerOptions()
	opts = append(opts, options...)
	if collector != nil {
		viOpts = append(viOpts, planner.WithMetrics(collector))
	}

	p := planner.New(g.Agents(), g, g, g, op, opts...)
	vi := planner.NewValueIteration(p, viOpts...)
	result, err := vi.PlanFromState(g.Start())
	if err != nil {
		return vi, result, fmt.Errorf("plan %s: %w", g.Name(), err)
	}
	return vi, result, nil
}

// Values reads the backed-up value of every known state for every agent.
func Values(run int, vi *planner.ValueIteration) ([]metrics.ValueRecord, error) {
	records := []metrics.ValueRecord{}
	for _, s := range vi.States() {
		for _, a := range vi.Agents() {
			v, err := vi.Value(s, a.Name)
			if err != nil {
				return nil, fmt.Errorf("value of %v for %q: %w", s, a.Name, err)
			}
			records = append(records, metrics.ValueRecord{
				Run:   run,
				State: fmt.Sprint(s),
				Agent: a.Name,
				Value: v,
			})
		}
	}
	return records, nil
}

type outcome struct {
	game     string
	operator string
	result   planner.Result
	values   []metrics.ValueRecord
}

// Run plans every game of setup with every operator and, when w is not nil, writes the
// records to it. Up to setup.Workers combinations are planned at once, each with its own
// planner. Combinations that fail to plan are logged and skipped.
func Run(ctx context.Context, setup Setup, w *metrics.Writer) ([]metrics.RunRecord, error) {
	games := make([]*tabular.Game, len(setup.Games))
	for i, name := range setup.Games {
		g, err := tabular.Resolve(name)
		if err != nil {
			return nil, err
		}
		games[i] = g
	}

	workers := setup.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	log.Info().Msgf("starting %s experiment with %d workers...", setup.Name, workers)

	outcomes := make([]*outcome, len(games)*len(setup.Operators))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, g := range games {
		for j, operator := range setup.Operators {
			slot := i*len(setup.Operators) + j
			g, operator := g, operator
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}

				cfg := setup.Config
				cfg.Planner.Operator = operator
				vi, result, err := Plan(g, cfg, metrics.NewCollector())
				if err != nil {
					log.Warn().Err(err).Str("game", g.Name()).Str("operator", operator).Msg("Skipping failed run")
					return nil
				}
				values, err := Values(0, vi)
				if err != nil {
					return err
				}

				outcomes[slot] = &outcome{game: g.Name(), operator: operator, result: result, values: values}
				log.Info().Msgf("completed %s with %s after %d sweeps (converged: %t)", g.Name(), operator, result.Iterations, result.Converged)
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	count := 0
	runRecords := []metrics.RunRecord{}
	sweepRecords := []metrics.SweepRecord{}
	valueRecords := []metrics.ValueRecord{}
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		count++

		record := metrics.RunRecord{
			ID:        count,
			Game:      o.game,
			Converged: o.result.Converged,
			RunMetric: o.result.Metric,
		}
		runRecords = append(runRecords, record)
		sweepRecords = append(sweepRecords, metrics.Sweeps(record)...)
		for _, v := range o.values {
			v.Run = count
			valueRecords = append(valueRecords, v)
		}
	}

	log.Info().Msgf("completed %s experiment with %d runs", setup.Name, count)

	if w == nil {
		return runRecords, nil
	}

	// Store experiment results
	if err := w.WriteRuns(runRecords); err != nil {
		return runRecords, fmt.Errorf("write run records: %w", err)
	}
	if err := w.WriteSweeps(sweepRecords); err != nil {
		return runRecords, fmt.Errorf("write sweep records: %w", err)
	}
	if err := w.WriteValues(valueRecords); err != nil {
		return runRecords, fmt.Errorf("write value records: %w", err)
	}
	log.Info().Str("dir", w.Dir()).Msg("stored experiment records")
	return runRecords, nil
}
