package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type point struct{ x, y int }

type named string

func (n named) String() string { return "named:" + string(n) }

type keyed int

func (k keyed) Key() StateKey { return "k" }

func TestAllJointActions(t *testing.T) {
	agents := Agents{
		{Name: "a", Type: AgentType{Name: "t", Actions: Actions{"x", "y"}}},
		{Name: "b", Type: AgentType{Name: "t", Actions: Actions{"1", "2", "3"}}},
	}

	jas := AllJointActions("s", agents)

	require.Len(t, jas, 6)
	first, _ := jas[0].Action("a")
	second, _ := jas[1].Action("b")
	require.Equal(t, Action("x"), first)
	require.Equal(t, Action("2"), second, "Last agent should vary fastest")
	last, _ := jas[5].Action("a")
	require.Equal(t, Action("y"), last)

	require.Empty(t, AllJointActions("s", nil))
	agents[1].Type.Actions = Actions{}
	require.Empty(t, AllJointActions("s", agents), "An agent without actions leaves no joint action")
}

func TestJointActionEquality(t *testing.T) {
	agents := NewAgents("t", Actions{"x", "y"}, "a", "b")
	reversed := Agents{agents[1], agents[0]}

	ja1, err := NewJointAction(agents, map[string]Action{"a": "x", "b": "y"})
	require.NoError(t, err)
	ja2, err := NewJointAction(reversed, map[string]Action{"a": "x", "b": "y"})
	require.NoError(t, err)
	ja3 := Pair(agents[0], agents[1], "y", "y")

	require.True(t, ja1.Equal(ja2), "Agent order should not matter")
	require.Equal(t, ja1.Key(), ja2.Key())
	require.False(t, ja1.Equal(ja3))
	require.Equal(t, 2, ja1.Len())
	require.Equal(t, "(a:x, b:y)", ja1.String())

	_, ok := ja1.Action("c")
	require.False(t, ok)
}

func TestNewJointActionRejectsPartial(t *testing.T) {
	agents := NewAgents("t", Actions{"x"}, "a", "b")

	_, err := NewJointAction(agents, map[string]Action{"a": "x"})
	require.ErrorIs(t, err, ErrPartialJointAction)

	_, err = NewJointAction(agents, map[string]Action{"a": "x", "c": "x"})
	require.ErrorIs(t, err, ErrPartialJointAction)
}

func TestAgents(t *testing.T) {
	agents := NewAgents("t", Actions{"x"}, "a", "b", "c")

	require.Equal(t, []string{"a", "b", "c"}, agents.Names())
	b, ok := agents.Find("b")
	require.True(t, ok)
	require.Equal(t, "t", b.Type.Name)
	_, ok = agents.Find("z")
	require.False(t, ok)
	require.Equal(t, []string{"a", "c"}, agents.Others("b").Names())
}

func TestHashers(t *testing.T) {
	h := DefaultHasher{}

	require.Equal(t, StateKey("k"), h.Key(keyed(1)))
	require.Equal(t, StateKey("named:n"), h.Key(named("n")))
	require.Equal(t, h.Key(point{1, 2}), h.Key(point{1, 2}))
	require.NotEqual(t, h.Key(point{1, 2}), h.Key(point{2, 1}))

	mirrored := CanonicalHasher{Canonicalize: func(s State) State {
		p := s.(point)
		if p.x > p.y {
			return point{p.y, p.x}
		}
		return p
	}}
	require.Equal(t, mirrored.Key(point{1, 2}), mirrored.Key(point{2, 1}), "Canonical forms should share a key")

	custom := HasherFunc(func(State) StateKey { return "same" })
	require.Equal(t, StateKey("same"), custom.Key(point{}))
}

func TestReward(t *testing.T) {
	r, err := Reward(map[string]float64{"a": 1.5}, "a")
	require.NoError(t, err)
	require.Equal(t, 1.5, r)

	_, err = Reward(map[string]float64{"a": 1.5}, "b")
	require.Error(t, err)
}
