package game

// ActionSet enumerates the actions an agent may legally take in a state.
type ActionSet interface {
	Legal(s State) []Action
}

// Actions is an ActionSet whose actions are legal in every state.
type Actions []Action

func (a Actions) Legal(State) []Action {
	return a
}

// AgentType groups agents sharing the same action set.
type AgentType struct {
	Name    string
	Actions ActionSet
}

// Agent is one player in a stochastic game.
type Agent struct {
	Name string
	Type AgentType
}

// Agents is the ordered collection of agent definitions for a planning run. The order
// fixes the row/column roles in pairwise solution concepts and the enumeration order of
// joint actions.
type Agents []Agent

func (as Agents) Names() []string {
	names := make([]string, len(as))
	for i, a := range as {
		names[i] = a.Name
	}
	return names
}

func (as Agents) Find(name string) (Agent, bool) {
	for _, a := range as {
		if a.Name == name {
			return a, true
		}
	}
	return Agent{}, false
}

// Others returns every agent except the named one, preserving order.
func (as Agents) Others(name string) Agents {
	others := make(Agents, 0, len(as))
	for _, a := range as {
		if a.Name != name {
			others = append(others, a)
		}
	}
	return others
}

// NewAgents builds agent definitions that share one static action set, which is the
// common case for matrix and grid games.
func NewAgents(typeName string, actions Actions, names ...string) Agents {
	t := AgentType{Name: typeName, Actions: actions}
	as := make(Agents, len(names))
	for i, n := range names {
		as[i] = Agent{Name: n, Type: t}
	}
	return as
}
