// Package qsource stores per-agent Q-values indexed by (state, joint action).
//
// Entries are created lazily on first access using the source's Init function and are
// never removed until an explicit Reset. Lookups return an Entry handle; values written
// through a handle are visible to every later lookup of the same key.
package qsource

import (
	"errors"
	"fmt"
	"sort"

	"sgplan/game"
)

var ErrUnknownAgent = errors.New("unknown agent")

// Init produces the initial Q-value of an entry the first time it is looked up.
type Init func(agent string, s game.State, ja game.JointAction) float64

// ConstantInit initializes every entry to v.
func ConstantInit(v float64) Init {
	return func(string, game.State, game.JointAction) float64 {
		return v
	}
}

type key struct {
	state game.StateKey
	joint game.JointKey
}

type cell struct {
	q     float64
	state game.State
	ja    game.JointAction
}

// Entry is an update-capable handle on one stored Q-value.
type Entry struct {
	c *cell
}

func (e Entry) Value() float64 {
	return e.c.q
}

func (e Entry) Set(q float64) {
	e.c.q = q
}

// State returns the state the entry was first created for.
func (e Entry) State() game.State {
	return e.c.state
}

func (e Entry) JointAction() game.JointAction {
	return e.c.ja
}

// QSource owns every Q entry of a single agent.
type QSource struct {
	agent  string
	hasher game.Hasher
	init   Init
	table  map[key]*cell
}

func New(agent string, hasher game.Hasher, init Init) *QSource {
	if hasher == nil {
		hasher = game.DefaultHasher{}
	}
	if init == nil {
		init = ConstantInit(0)
	}
	return &QSource{
		agent:  agent,
		hasher: hasher,
		init:   init,
		table:  make(map[key]*cell),
	}
}

func (q *QSource) Agent() string {
	return q.agent
}

// Entry returns the handle for (s, ja), creating and initializing it if absent.
func (q *QSource) Entry(s game.State, ja game.JointAction) Entry {
	k := key{state: q.hasher.Key(s), joint: ja.Key()}
	c, ok := q.table[k]
	if !ok {
		c = &cell{q: q.init(q.agent, s, ja), state: s, ja: ja}
		q.table[k] = c
	}
	return Entry{c: c}
}

// Value is shorthand for Entry(s, ja).Value().
func (q *QSource) Value(s game.State, ja game.JointAction) float64 {
	return q.Entry(s, ja).Value()
}

// Len returns the number of entries created so far.
func (q *QSource) Len() int {
	return len(q.table)
}

// Range calls fn for every stored entry in key order until fn returns false.
func (q *QSource) Range(fn func(sk game.StateKey, jk game.JointKey, e Entry) bool) {
	keys := make([]key, 0, len(q.table))
	for k := range q.table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].state != keys[j].state {
			return keys[i].state < keys[j].state
		}
		return keys[i].joint < keys[j].joint
	})
	for _, k := range keys {
		if !fn(k.state, k.joint, Entry{c: q.table[k]}) {
			return
		}
	}
}

func (q *QSource) reset() {
	q.table = make(map[key]*cell)
}

// Map holds one QSource per agent. The agent set is fixed at construction.
type Map struct {
	names   []string
	sources map[string]*QSource
}

// NewMap builds an empty QSource for every agent, all sharing hasher and init.
func NewMap(agents game.Agents, hasher game.Hasher, init Init) *Map {
	m := &Map{
		names:   agents.Names(),
		sources: make(map[string]*QSource, len(agents)),
	}
	for _, a := range agents {
		m.sources[a.Name] = New(a.Name, hasher, init)
	}
	return m
}

// Agent returns the named agent's QSource.
func (m *Map) Agent(name string) (*QSource, error) {
	q, ok := m.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return q, nil
}

// Names returns the agent names in definition order.
func (m *Map) Names() []string {
	return append([]string(nil), m.names...)
}

// Len returns the number of entries across all agents.
func (m *Map) Len() int {
	n := 0
	for _, q := range m.sources {
		n += q.Len()
	}
	return n
}

// Reset drops every stored entry, keeping the agent set.
func (m *Map) Reset() {
	for _, q := range m.sources {
		q.reset()
	}
}
