// Package policy derives epsilon-soft joint policies from planned Q-values.
//
// Every policy mixes a solution-concept distribution over joint actions with the uniform
// distribution: p(ja) = epsilon/|JA| + (1-epsilon)·q(ja). Sampling uses the policy's own
// seeded random source.
package policy

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"sgplan/backup"
	"sgplan/game"
	"sgplan/matrix"
	"sgplan/qsource"
	"sgplan/solver"
)

type ActionProb struct {
	Action game.JointAction
	P      float64
}

type JointPolicy interface {
	Distribution(s game.State) ([]ActionProb, error)
	Action(s game.State) (game.JointAction, error)
}

var _ JointPolicy = (*Policy)(nil)

type Option func(p *Policy)

// WithSeed seeds the policy's random source.
func WithSeed(seed uint64) Option {
	return func(p *Policy) {
		p.rng = rand.New(rand.NewSource(seed))
	}
}

func WithRand(rng *rand.Rand) Option {
	return func(p *Policy) {
		if rng != nil {
			p.rng = rng
		}
	}
}

// solveFunc returns joint actions and their unmixed probabilities in s.
type solveFunc func(s game.State) ([]game.JointAction, []float64, error)

type Policy struct {
	name    string
	epsilon float64
	rng     *rand.Rand
	solve   solveFunc
}

func newPolicy(name string, epsilon float64, solve solveFunc, options []Option) *Policy {
	if epsilon < 0 || epsilon > 1 || math.IsNaN(epsilon) {
		panic(fmt.Sprintf("Epsilon must lie in [0, 1], got %v", epsilon))
	}
	p := &Policy{ // Default values
		name:    name,
		epsilon: epsilon,
		rng:     rand.New(rand.NewSource(1)),
		solve:   solve,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *Policy) String() string {
	return fmt.Sprintf("%s(epsilon=%g)", p.name, p.epsilon)
}

// Distribution returns every joint action in s with its probability.
func (p *Policy) Distribution(s game.State) ([]ActionProb, error) {
	jas, probs, err := p.solve(s)
	if err != nil {
		return nil, err
	}
	if len(jas) == 0 {
		return nil, nil
	}
	uniform := p.epsilon / float64(len(jas))
	dist := make([]ActionProb, len(jas))
	for i, ja := range jas {
		dist[i] = ActionProb{Action: ja, P: uniform + (1-p.epsilon)*probs[i]}
	}
	return dist, nil
}

// Action samples a joint action from the distribution in s.
func (p *Policy) Action(s game.State) (game.JointAction, error) {
	dist, err := p.Distribution(s)
	if err != nil {
		return game.JointAction{}, err
	}
	if len(dist) == 0 {
		return game.JointAction{}, fmt.Errorf("no joint actions in state %v", s)
	}
	r := p.rng.Float64()
	sum := 0.0
	for _, ap := range dist {
		sum += ap.P
		if r < sum {
			return ap.Action, nil
		}
	}
	return dist[len(dist)-1].Action, nil
}

// EGreedyMaxWelfare spreads its greedy mass evenly over the joint actions with the
// largest summed Q-value across agents.
func EGreedyMaxWelfare(agents game.Agents, qs *qsource.Map, epsilon float64, options ...Option) *Policy {
	return newPolicy("EGreedyMaxWelfare", epsilon, func(s game.State) ([]game.JointAction, []float64, error) {
		jas := game.AllJointActions(s, agents)
		welfare := make([]float64, len(jas))
		best := math.Inf(-1)
		for i, ja := range jas {
			for _, a := range agents {
				q, err := qs.Agent(a.Name)
				if err != nil {
					return nil, nil, err
				}
				welfare[i] += q.Value(s, ja)
			}
			best = math.Max(best, welfare[i])
		}

		ties := 0
		for _, w := range welfare {
			if w == best {
				ties++
			}
		}
		probs := make([]float64, len(jas))
		for i, w := range welfare {
			if w == best {
				probs[i] = 1 / float64(ties)
			}
		}
		return jas, probs, nil
	}, options)
}

// EMinMax follows the minimax strategies of the advantage game seen by forAgent.
func EMinMax(forAgent string, agents game.Agents, qs *qsource.Map, epsilon float64, options ...Option) *Policy {
	return newPolicy("EMinMax", epsilon, bimatrixSolve(forAgent, agents, qs, func(b *backup.Bimatrix) ([][]float64, error) {
		row, col, _, err := solver.Minimax(b.Advantage())
		if err != nil {
			return nil, err
		}
		return matrix.JointDistribution(row, col), nil
	}), options)
}

// ENashQ follows the first Nash equilibrium found for the two agents' Q-values, with
// forAgent as the row player.
func ENashQ(forAgent string, nash solver.NashSolver, agents game.Agents, qs *qsource.Map, epsilon float64, options ...Option) *Policy {
	return newPolicy("ENashQ", epsilon, bimatrixSolve(forAgent, agents, qs, func(b *backup.Bimatrix) ([][]float64, error) {
		row, col, err := nash.Solve(b.RowQ, b.ColQ)
		if err != nil {
			return nil, err
		}
		return matrix.JointDistribution(row, col), nil
	}), options)
}

// ECorrelatedQ follows the correlated equilibrium optimizing objective, with the first
// agent as the row player.
func ECorrelatedQ(objective solver.Objective, agents game.Agents, qs *qsource.Map, epsilon float64, options ...Option) *Policy {
	forAgent := ""
	if len(agents) > 0 {
		forAgent = agents[0].Name
	}
	return newPolicy("ECorrelatedQ", epsilon, bimatrixSolve(forAgent, agents, qs, func(b *backup.Bimatrix) ([][]float64, error) {
		return solver.Correlated(objective, b.RowQ, b.ColQ)
	}), options)
}

// ForOperator picks the policy matching a backup operator's solution concept. MaxQ and
// CoCoQ act greedily on joint welfare.
func ForOperator(op backup.Operator, forAgent string, agents game.Agents, qs *qsource.Map, epsilon float64, options ...Option) *Policy {
	switch op := op.(type) {
	case backup.MinMax:
		return EMinMax(forAgent, agents, qs, epsilon, options...)
	case backup.NashQ:
		return ENashQ(forAgent, op.Solver, agents, qs, epsilon, options...)
	case backup.CorrelatedQ:
		return ECorrelatedQ(op.Objective, agents, qs, epsilon, options...)
	default:
		return EGreedyMaxWelfare(agents, qs, epsilon, options...)
	}
}

func bimatrixSolve(forAgent string, agents game.Agents, qs *qsource.Map, joint func(b *backup.Bimatrix) ([][]float64, error)) solveFunc {
	return func(s game.State) ([]game.JointAction, []float64, error) {
		b, err := backup.NewBimatrix(s, forAgent, agents, qs)
		if err != nil || b.Empty() {
			return nil, nil, err
		}
		dist, err := joint(b)
		if err != nil {
			return nil, nil, err
		}
		var jas []game.JointAction
		var probs []float64
		for i := range b.RowActions {
			for j := range b.ColActions {
				jas = append(jas, b.JointAction(i, j))
				probs = append(probs, dist[i][j])
			}
		}
		return jas, probs, nil
	}
}
