package tabular

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sgplan/game"
)

func TestLoad(t *testing.T) {
	g, err := Load("testdata/two-stage.yaml")
	require.NoError(t, err)

	require.Equal(t, "two-stage", g.Name())
	require.Equal(t, []string{"a", "b"}, g.Agents().Names())
	require.Equal(t, State("s0"), g.Start())
	require.Equal(t, []game.State{State("done"), State("s0"), State("s1")}, g.States())
	require.True(t, g.IsTerminal(State("done")))
	require.False(t, g.IsTerminal(State("s1")))

	ja, err := game.NewJointAction(g.Agents(), map[string]game.Action{"a": "left", "b": "left"})
	require.NoError(t, err)
	transitions := g.TransitionProbs(State("s0"), ja)
	require.Equal(t, []game.Transition{{State: State("s1"), P: 0.5}, {State: State("done"), P: 0.5}}, transitions)
	require.Equal(t, map[string]float64{"a": 1, "b": 1}, g.Reward(State("s0"), ja, State("done")))

	s, ok := g.Lookup("s1")
	require.True(t, ok)
	require.Equal(t, State("s1"), s)
	_, ok = g.Lookup("s7")
	require.False(t, ok)
}

func TestParseRejectsInvalidGames(t *testing.T) {
	tests := map[string]string{
		"missing name": `
agents: [{name: a, actions: [x]}]
start: s
terminal: [s]`,
		"no agents": `
name: g
start: s`,
		"duplicate agent": `
name: g
agents: [{name: a, actions: [x]}, {name: a, actions: [y]}]
start: s
terminal: [s]`,
		"unknown action": `
name: g
agents: [{name: a, actions: [x]}]
start: s
terminal: [t]
transitions:
  - {state: s, joint: {a: y}, outcomes: [{next: t, p: 1, rewards: {a: 0}}]}`,
		"partial joint action": `
name: g
agents: [{name: a, actions: [x]}, {name: b, actions: [x]}]
start: s
terminal: [t]
transitions:
  - {state: s, joint: {a: x}, outcomes: [{next: t, p: 1, rewards: {a: 0, b: 0}}]}`,
		"probabilities do not sum to one": `
name: g
agents: [{name: a, actions: [x]}]
start: s
terminal: [t]
transitions:
  - {state: s, joint: {a: x}, outcomes: [{next: t, p: 0.5, rewards: {a: 0}}]}`,
		"missing reward": `
name: g
agents: [{name: a, actions: [x]}, {name: b, actions: [x]}]
start: s
terminal: [t]
transitions:
  - {state: s, joint: {a: x, b: x}, outcomes: [{next: t, p: 1, rewards: {a: 0}}]}`,
		"missing joint action": `
name: g
agents: [{name: a, actions: [x, y]}]
start: s
terminal: [t]
transitions:
  - {state: s, joint: {a: x}, outcomes: [{next: t, p: 1, rewards: {a: 0}}]}`,
		"dangling next state": `
name: g
agents: [{name: a, actions: [x]}]
start: s
terminal: [t]
transitions:
  - {state: s, joint: {a: x}, outcomes: [{next: u, p: 1, rewards: {a: 0}}]}`,
		"transition out of a terminal state": `
name: g
agents: [{name: a, actions: [x]}]
start: s
terminal: [s]
transitions:
  - {state: s, joint: {a: x}, outcomes: [{next: s, p: 1, rewards: {a: 0}}]}`,
		"malformed yaml": `name: [`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))

			require.ErrorIs(t, err, ErrInvalidGame)
		})
	}
}

func TestBuiltins(t *testing.T) {
	require.Equal(t, []string{
		"battle-of-the-sexes",
		"chicken",
		"hawk-dove",
		"matching-pennies",
		"prisoners-dilemma",
		"rock-paper-scissors",
		"stag-hunt",
	}, BuiltinNames())

	for _, name := range BuiltinNames() {
		g, ok := Builtin(name)
		require.True(t, ok, name)
		require.Equal(t, []game.State{EndState, StartState}, g.States(), "%s should be one-shot", name)
		require.Equal(t, []string{"row", "col"}, g.Agents().Names())
	}

	g, ok := Builtin("prisoners-dilemma")
	require.True(t, ok)
	require.Equal(t, map[string]float64{"row": -3, "col": 0}, g.Reward(StartState, g.Pair("cooperate", "defect"), EndState))

	_, ok = Builtin("tic-tac-toe")
	require.False(t, ok)
}

func TestNormalFormShape(t *testing.T) {
	_, err := NormalForm("bad", "r", "c", []string{"x", "y"}, []string{"x"}, [][]float64{{1}}, [][]float64{{1}})

	require.ErrorIs(t, err, ErrInvalidGame)
}

func TestResolve(t *testing.T) {
	g, err := Resolve("chicken")
	require.NoError(t, err)
	require.Equal(t, "chicken", g.Name())

	g, err = Resolve("testdata/two-stage.yaml")
	require.NoError(t, err)
	require.Len(t, g.Agents(), 2)

	_, err = Resolve("no-such-game")
	require.Error(t, err)
}
