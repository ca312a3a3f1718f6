package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"sgplan/game"
	"sgplan/metrics"
)

const (
	DefaultMaxDelta      = 1e-4
	DefaultMaxIterations = 1000
)

var ErrNoStates = errors.New("no states to plan over; run reachability or set the state space first")

type VIOption func(vi *ValueIteration)

// Result summarizes a value iteration run.
type Result struct {
	Iterations int
	MaxChange  float64 // Of the last sweep
	Converged  bool
	Metric     metrics.RunMetric
}

// ValueIteration sweeps BackupAllQs over a state set until the largest change in a sweep
// drops below maxDelta or maxIterations sweeps have run.
type ValueIteration struct {
	*Planner
	maxDelta      float64
	maxIterations int
	states        []game.State
	index         map[game.StateKey]struct{}
	metrics       metrics.Collector
}

func WithMaxDelta(maxDelta float64) VIOption {
	return func(vi *ValueIteration) {
		if maxDelta > 0 {
			vi.maxDelta = maxDelta
		}
	}
}

func WithMaxIterations(maxIterations int) VIOption {
	return func(vi *ValueIteration) {
		if maxIterations > 0 {
			vi.maxIterations = maxIterations
		}
	}
}

func WithMetrics(collector metrics.Collector) VIOption {
	return func(vi *ValueIteration) {
		if collector != nil {
			vi.metrics = collector
		}
	}
}

func NewValueIteration(p *Planner, options ...VIOption) *ValueIteration {
	if p == nil {
		panic("Value iteration needs a planner")
	}
	vi := &ValueIteration{ // Default values
		Planner:       p,
		maxDelta:      DefaultMaxDelta,
		maxIterations: DefaultMaxIterations,
		index:         make(map[game.StateKey]struct{}),
		metrics:       metrics.NewDummyCollector(),
	}
	for _, option := range options {
		option(vi)
	}
	return vi
}

// States returns the states swept by RunVI in sweep order.
func (vi *ValueIteration) States() []game.State {
	return append([]game.State(nil), vi.states...)
}

// Known reports whether s is already in the state set.
func (vi *ValueIteration) Known(s game.State) bool {
	_, ok := vi.index[vi.hasher.Key(s)]
	return ok
}

// SetStates replaces the state set with a fixed enumerated state space. Duplicates under
// the planner's hasher are dropped.
func (vi *ValueIteration) SetStates(states []game.State) {
	vi.states = nil
	vi.index = make(map[game.StateKey]struct{}, len(states))
	for _, s := range states {
		vi.add(s)
	}
}

func (vi *ValueIteration) add(s game.State) bool {
	k := vi.hasher.Key(s)
	if _, ok := vi.index[k]; ok {
		return false
	}
	vi.index[k] = struct{}{}
	vi.states = append(vi.states, s)
	return true
}

// Reachable adds every state reachable from seed to the state set by breadth-first search
// over the transition model and returns how many new states were found. Terminal states
// are added but not expanded.
func (vi *ValueIteration) Reachable(seed game.State) int {
	if !vi.add(seed) {
		return 0
	}
	found := 1
	queue := []game.State{seed}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if vi.terminal.IsTerminal(s) {
			continue
		}
		for _, ja := range game.AllJointActions(s, vi.agents) {
			for _, tr := range vi.model.TransitionProbs(s, ja) {
				if tr.P <= 0 {
					continue
				}
				if vi.add(tr.State) {
					found++
					queue = append(queue, tr.State)
				}
			}
		}
	}
	log.Debug().Int("found", found).Int("states", len(vi.states)).Msg("Finished state reachability")
	return found
}

// PlanFromState runs reachability from s and, if s was not already known, value
// iteration over the enlarged state set. Planning from a known state is a no-op.
func (vi *ValueIteration) PlanFromState(s game.State) (Result, error) {
	if vi.Reachable(s) == 0 {
		return Result{}, nil
	}
	return vi.RunVI()
}

// RunVI sweeps the current state set until convergence or the iteration cap.
func (vi *ValueIteration) RunVI() (Result, error) {
	if len(vi.states) == 0 {
		return Result{}, ErrNoStates
	}

	vi.metrics.Start(fmt.Sprintf("%T", vi.operator), len(vi.agents), len(vi.states))

	result := Result{}
	for result.Iterations < vi.maxIterations {
		maxChange := 0.0
		for _, s := range vi.states {
			change, err := vi.BackupAllQs(s)
			if err != nil {
				result.Metric = vi.metrics.Complete()
				return result, fmt.Errorf("sweep %d: %w", result.Iterations+1, err)
			}
			vi.metrics.AddBackup()
			maxChange = math.Max(maxChange, change)
		}
		result.Iterations++
		result.MaxChange = maxChange
		vi.metrics.AddSweep(maxChange)
		log.Debug().Int("pass", result.Iterations).Float64("maxChange", maxChange).Int("states", len(vi.states)).Msg("Finished pass")

		if maxChange < vi.maxDelta {
			result.Converged = true
			break
		}
	}

	result.Metric = vi.metrics.Complete()
	log.Info().Msgf("Performed %d passes over %d states (converged: %t)", result.Iterations, len(vi.states), result.Converged)
	return result, nil
}

// ResetModel drops every Q-value and the known state set.
func (vi *ValueIteration) ResetModel() {
	vi.Planner.ResetModel()
	vi.states = nil
	vi.index = make(map[game.StateKey]struct{})
}
