package planner

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"sgplan/backup"
	"sgplan/game"
	"sgplan/metrics"
	"sgplan/qsource"
	"sgplan/tabular"
)

// chain is a single-agent MDP over states 0..n where "go" advances with probability 0.8
// and "stay" never moves. Every step costs 1 and reaching n pays 10.
type chain struct {
	n int
}

func (c chain) TransitionProbs(s game.State, ja game.JointAction) []game.Transition {
	i := s.(int)
	action, _ := ja.Action("solo")
	if action == "go" {
		return []game.Transition{{State: i + 1, P: 0.8}, {State: i, P: 0.2}}
	}
	return []game.Transition{{State: i, P: 1}}
}

func (c chain) Reward(s game.State, ja game.JointAction, next game.State) map[string]float64 {
	if next.(int) == c.n {
		return map[string]float64{"solo": 10}
	}
	return map[string]float64{"solo": -1}
}

func (c chain) IsTerminal(s game.State) bool {
	return s.(int) == c.n
}

var chainActions = game.Actions{"stay", "go"}

// referenceValues runs textbook single-agent value iteration on c.
func referenceValues(c chain, discount float64) []float64 {
	v := make([]float64, c.n+1)
	for sweep := 0; sweep < 10000; sweep++ {
		delta := 0.0
		for i := 0; i < c.n; i++ {
			best := math.Inf(-1)
			for _, a := range chainActions {
				ja := game.AllJointActions(i, game.NewAgents("solo", game.Actions{a}, "solo"))[0]
				q := 0.0
				for _, tr := range c.TransitionProbs(i, ja) {
					q += tr.P * (c.Reward(i, ja, tr.State)["solo"] + discount*v[tr.State.(int)])
				}
				best = math.Max(best, q)
			}
			delta = math.Max(delta, math.Abs(best-v[i]))
			v[i] = best
		}
		if delta < 1e-12 {
			break
		}
	}
	return v
}

type rewardFunc func(s game.State, ja game.JointAction, next game.State) map[string]float64

func (f rewardFunc) Reward(s game.State, ja game.JointAction, next game.State) map[string]float64 {
	return f(s, ja, next)
}

var errRefused = errors.New("refused")

// refusing values successor states with MaxQ but fails for one agent.
type refusing struct {
	agent string
}

func (r refusing) Backup(s game.State, forAgent string, agents game.Agents, qs *qsource.Map) (float64, error) {
	if forAgent == r.agent {
		return 0, errRefused
	}
	return backup.MaxQ{}.Backup(s, forAgent, agents, qs)
}

func dilemma(t *testing.T) *tabular.Game {
	t.Helper()
	g, ok := tabular.Builtin("prisoners-dilemma")
	require.True(t, ok)
	return g
}

func TestMaxQMatchesSingleAgentValueIteration(t *testing.T) {
	c := chain{n: 4}
	agents := game.NewAgents("solo", chainActions, "solo")
	p := New(agents, c, c, c, backup.MaxQ{}, WithDiscount(0.9))
	vi := NewValueIteration(p, WithMaxDelta(1e-8), WithMaxIterations(10000))

	result, err := vi.PlanFromState(0)

	require.NoError(t, err)
	require.True(t, result.Converged, "MaxQ on an MDP should converge")
	require.Len(t, vi.States(), 5, "Every chain state should be reachable")
	want := referenceValues(c, 0.9)
	for i := 0; i <= c.n; i++ {
		got, err := p.Value(i, "solo")
		require.NoError(t, err)
		require.InDelta(t, want[i], got, 1e-6, "Value of state %d should match reference value iteration", i)
	}
}

func TestPrisonersDilemma(t *testing.T) {
	t.Run("single NashQ backup finds mutual defection", func(t *testing.T) {
		g := dilemma(t)
		p := New(g.Agents(), g, g, g, backup.NashQ{})

		change, err := p.BackupAllQs(g.Start())

		require.NoError(t, err)
		require.Equal(t, 3.0, change, "Largest change is the sucker's payoff moving from 0 to -3")
		for _, agent := range []string{"row", "col"} {
			v, err := p.Value(g.Start(), agent)
			require.NoError(t, err)
			require.Equal(t, -2.0, v, "%s should value the start state at mutual defection", agent)
		}
		q, err := p.QValue(g.Start(), "row", g.Pair("defect", "cooperate"))
		require.NoError(t, err)
		require.Equal(t, 0.0, q)
	})

	t.Run("value iteration converges after one informative sweep", func(t *testing.T) {
		g := dilemma(t)
		vi := NewValueIteration(New(g.Agents(), g, g, g, backup.NashQ{}))

		result, err := vi.PlanFromState(g.Start())

		require.NoError(t, err)
		require.Equal(t, 2, result.Iterations)
		require.True(t, result.Converged)
		require.Equal(t, 0.0, result.MaxChange)
	})
}

func TestTwoStageNashQ(t *testing.T) {
	g, err := tabular.Load("../tabular/testdata/two-stage.yaml")
	require.NoError(t, err)
	vi := NewValueIteration(New(g.Agents(), g, g, g, backup.NashQ{}, WithDiscount(1)))

	result, err := vi.PlanFromState(g.Start())

	require.NoError(t, err)
	require.True(t, result.Converged)
	s1, _ := g.Lookup("s1")
	for _, agent := range []string{"a", "b"} {
		v, err := vi.Value(s1, agent)
		require.NoError(t, err)
		require.Equal(t, 1.0, v, "Second stage is a dilemma worth 1 at mutual defection")

		v, err = vi.Value(g.Start(), agent)
		require.NoError(t, err)
		require.Equal(t, 1.5, v, "Coordinating left is worth 1 now plus half the second stage")
	}
}

func TestBackupAllQs(t *testing.T) {
	t.Run("terminal source states are worth nothing", func(t *testing.T) {
		g := dilemma(t)
		p := New(g.Agents(), g, g, g, backup.MaxQ{}, WithQInit(qsource.ConstantInit(5)))

		change, err := p.BackupAllQs(tabular.EndState)

		require.NoError(t, err)
		require.Equal(t, 5.0, change)
		q, err := p.QValue(tabular.EndState, "col", g.Pair("cooperate", "cooperate"))
		require.NoError(t, err)
		require.Equal(t, 0.0, q)
	})

	t.Run("no joint actions changes nothing", func(t *testing.T) {
		c := chain{n: 2}
		p := New(game.NewAgents("solo", game.Actions{}, "solo"), c, c, c, backup.MaxQ{})

		change, err := p.BackupAllQs(0)

		require.NoError(t, err)
		require.Equal(t, 0.0, change)
		require.True(t, p.Started())
	})

	t.Run("missing reward is an error", func(t *testing.T) {
		g := dilemma(t)
		partial := rewardFunc(func(s game.State, ja game.JointAction, next game.State) map[string]float64 {
			return map[string]float64{"row": 1}
		})
		p := New(g.Agents(), g, partial, g, backup.MaxQ{})

		_, err := p.BackupAllQs(g.Start())

		require.ErrorContains(t, err, `no reward for agent "col"`)
	})

	t.Run("operator errors propagate", func(t *testing.T) {
		c := chain{n: 2}
		p := New(game.NewAgents("solo", chainActions, "solo"), c, c, c, backup.MinMax{})

		_, err := p.BackupAllQs(0)

		require.ErrorIs(t, err, backup.ErrAgentCount)
	})

	t.Run("failed backup writes no agent", func(t *testing.T) {
		g, err := tabular.Load("../tabular/testdata/two-stage.yaml")
		require.NoError(t, err)
		p := New(g.Agents(), g, g, g, refusing{agent: "b"}, WithDiscount(0.5), WithQInit(qsource.ConstantInit(7)))

		_, err = p.BackupAllQs(g.Start())

		require.ErrorIs(t, err, errRefused)
		for _, ja := range []game.JointAction{g.Pair("left", "left"), g.Pair("right", "right")} {
			q, err := p.QValue(g.Start(), "a", ja)
			require.NoError(t, err)
			require.Equal(t, 7.0, q, "Agent a should keep its value when agent b's backup fails")
		}
	})

	t.Run("idempotent at the fixed point", func(t *testing.T) {
		c := chain{n: 3}
		vi := NewValueIteration(New(game.NewAgents("solo", chainActions, "solo"), c, c, c, backup.MaxQ{}), WithMaxDelta(1e-6))
		result, err := vi.PlanFromState(0)
		require.NoError(t, err)
		require.True(t, result.Converged)

		for _, s := range vi.States() {
			change, err := vi.BackupAllQs(s)
			require.NoError(t, err)
			require.Less(t, change, 1e-6, "Converged Q-values should stay put")
		}
	})
}

func TestSetAgents(t *testing.T) {
	g := dilemma(t)
	p := New(nil, g, g, g, backup.MaxQ{})

	require.NoError(t, p.SetAgents(g.Agents()), "Agents can be set before planning")
	_, err := p.QSources().Agent("row")
	require.NoError(t, err, "Setting agents should rebuild the Q-sources")

	_, err = p.BackupAllQs(g.Start())
	require.NoError(t, err)
	require.ErrorIs(t, p.SetAgents(g.Agents()), ErrPlanningStarted)

	p.ResetModel()
	require.False(t, p.Started())
	require.NoError(t, p.SetAgents(g.Agents()), "Agents can change again after a reset")
	require.Equal(t, 0, p.QSources().Len())
}

func TestValueIteration(t *testing.T) {
	t.Run("run without states", func(t *testing.T) {
		c := chain{n: 2}
		vi := NewValueIteration(New(game.NewAgents("solo", chainActions, "solo"), c, c, c, backup.MaxQ{}))

		_, err := vi.RunVI()

		require.ErrorIs(t, err, ErrNoStates)
	})

	t.Run("planning from a known state is a no-op", func(t *testing.T) {
		g := dilemma(t)
		vi := NewValueIteration(New(g.Agents(), g, g, g, backup.NashQ{}))
		_, err := vi.PlanFromState(g.Start())
		require.NoError(t, err)

		result, err := vi.PlanFromState(tabular.EndState)

		require.NoError(t, err)
		require.Equal(t, Result{}, result, "End state was already reached from the start")
	})

	t.Run("fixed state space", func(t *testing.T) {
		c := chain{n: 3}
		vi := NewValueIteration(New(game.NewAgents("solo", chainActions, "solo"), c, c, c, backup.MaxQ{}))

		vi.SetStates([]game.State{2, 1, 2, 0})

		require.Equal(t, []game.State{2, 1, 0}, vi.States(), "Duplicates should be dropped in order")
		require.True(t, vi.Known(1))
		require.False(t, vi.Known(3))
		result, err := vi.RunVI()
		require.NoError(t, err)
		require.True(t, result.Converged)
	})

	t.Run("iteration cap", func(t *testing.T) {
		c := chain{n: 6}
		vi := NewValueIteration(New(game.NewAgents("solo", chainActions, "solo"), c, c, c, backup.MaxQ{}, WithDiscount(1)),
			WithMaxIterations(2), WithMaxDelta(1e-12))

		result, err := vi.PlanFromState(0)

		require.NoError(t, err)
		require.Equal(t, 2, result.Iterations)
		require.False(t, result.Converged)
		require.Greater(t, result.MaxChange, 1e-12)
	})

	t.Run("metrics", func(t *testing.T) {
		g := dilemma(t)
		vi := NewValueIteration(New(g.Agents(), g, g, g, backup.CoCoQ{}), WithMetrics(metrics.NewCollector()))

		result, err := vi.PlanFromState(g.Start())

		require.NoError(t, err)
		require.Len(t, result.Metric.Sweeps, result.Iterations)
		require.Equal(t, result.Iterations*len(vi.States()), result.Metric.Backups)
		require.Equal(t, "backup.CoCoQ", result.Metric.Operator)
	})

	t.Run("reset forgets states", func(t *testing.T) {
		g := dilemma(t)
		vi := NewValueIteration(New(g.Agents(), g, g, g, backup.MaxQ{}))
		_, err := vi.PlanFromState(g.Start())
		require.NoError(t, err)

		vi.ResetModel()

		require.Empty(t, vi.States())
		require.False(t, vi.Started())
		require.Equal(t, 2, vi.Reachable(g.Start()))
	})
}
