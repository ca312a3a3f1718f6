package game

import (
	"fmt"
	"sort"
	"strings"
)

// JointKey is the canonical, comparable form of a JointAction.
type JointKey string

// JointAction assigns one action to every agent. It is immutable once built; two joint
// actions are equal iff every per-agent action matches, regardless of agent order.
type JointAction struct {
	agents  []string
	actions []Action
	key     JointKey
}

// NewJointAction builds a joint action over agents from a per-agent assignment. Every
// agent must receive exactly one action and no unknown agents may appear.
func NewJointAction(agents Agents, assignment map[string]Action) (JointAction, error) {
	if len(assignment) != len(agents) {
		return JointAction{}, fmt.Errorf("%w: got %d actions for %d agents", ErrPartialJointAction, len(assignment), len(agents))
	}
	names := make([]string, len(agents))
	actions := make([]Action, len(agents))
	for i, a := range agents {
		action, ok := assignment[a.Name]
		if !ok {
			return JointAction{}, fmt.Errorf("%w: missing agent %q", ErrPartialJointAction, a.Name)
		}
		names[i] = a.Name
		actions[i] = action
	}
	return newJointAction(names, actions), nil
}

func newJointAction(names []string, actions []Action) JointAction {
	ja := JointAction{agents: names, actions: actions}
	ja.key = jointKey(names, actions)
	return ja
}

func jointKey(names []string, actions []Action) JointKey {
	idx := make([]int, len(names))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return names[idx[a]] < names[idx[b]] })

	var sb strings.Builder
	for _, i := range idx {
		sb.WriteString(names[i])
		sb.WriteByte('\x1f')
		sb.WriteString(string(actions[i]))
		sb.WriteByte('\x1e')
	}
	return JointKey(sb.String())
}

// Action returns the action assigned to agent.
func (ja JointAction) Action(agent string) (Action, bool) {
	for i, n := range ja.agents {
		if n == agent {
			return ja.actions[i], true
		}
	}
	return "", false
}

func (ja JointAction) Key() JointKey {
	return ja.key
}

func (ja JointAction) Equal(other JointAction) bool {
	return ja.key == other.key
}

func (ja JointAction) Len() int {
	return len(ja.agents)
}

func (ja JointAction) String() string {
	parts := make([]string, len(ja.agents))
	for i, n := range ja.agents {
		parts[i] = fmt.Sprintf("%s:%s", n, ja.actions[i])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// AllJointActions enumerates the cross product of every agent's legal actions in s, in
// agent order with the last agent varying fastest. If any agent has no legal action the
// result is empty.
func AllJointActions(s State, agents Agents) []JointAction {
	if len(agents) == 0 {
		return nil
	}
	legal := make([][]Action, len(agents))
	total := 1
	for i, a := range agents {
		legal[i] = a.Type.Actions.Legal(s)
		total *= len(legal[i])
	}
	if total == 0 {
		return nil
	}

	names := agents.Names()
	jas := make([]JointAction, 0, total)
	counter := make([]int, len(agents))
	for {
		actions := make([]Action, len(agents))
		for i, c := range counter {
			actions[i] = legal[i][c]
		}
		jas = append(jas, newJointAction(names, actions))

		// Odometer increment, last agent fastest
		i := len(counter) - 1
		for ; i >= 0; i-- {
			counter[i]++
			if counter[i] < len(legal[i]) {
				break
			}
			counter[i] = 0
		}
		if i < 0 {
			return jas
		}
	}
}

// Pair builds the joint action for a two-agent game from the row and column choices.
func Pair(row, col Agent, rowAction, colAction Action) JointAction {
	return newJointAction([]string{row.Name, col.Name}, []Action{rowAction, colAction})
}
