package game

import "fmt"

// Keyed is implemented by states that know their own canonical key.
type Keyed interface {
	Key() StateKey
}

// Hasher produces canonical keys for states.
type Hasher interface {
	Key(s State) StateKey
}

// HasherFunc adapts a function to the Hasher interface.
type HasherFunc func(State) StateKey

func (f HasherFunc) Key(s State) StateKey {
	return f(s)
}

// DefaultHasher keys states by their own Key method, falling back to their String form
// and finally to the Go-syntax representation of the value.
type DefaultHasher struct{}

func (DefaultHasher) Key(s State) StateKey {
	switch s := s.(type) {
	case Keyed:
		return s.Key()
	case fmt.Stringer:
		return StateKey(s.String())
	default:
		return StateKey(fmt.Sprintf("%#v", s))
	}
}

// CanonicalHasher rewrites a state into a canonical representative before hashing it.
// It is the hook for state representations where structurally equivalent states are not
// equal as values (e.g. renamed objects).
type CanonicalHasher struct {
	Canonicalize func(State) State
	Base         Hasher
}

func (h CanonicalHasher) Key(s State) StateKey {
	base := h.Base
	if base == nil {
		base = DefaultHasher{}
	}
	if h.Canonicalize != nil {
		s = h.Canonicalize(s)
	}
	return base.Key(s)
}
