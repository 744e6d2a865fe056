package batch

import (
	"maps"
	"slices"
)

// IDSet is a set of identifiers.
type IDSet map[string]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	s.Add(ids...)
	return s
}

func (s IDSet) Add(ids ...string) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int {
	return len(s)
}

// Union adds every identifier of other to s.
func (s IDSet) Union(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Slice returns the identifiers in sorted order.
func (s IDSet) Slice() []string {
	return slices.Sorted(maps.Keys(s))
}

func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	c.Union(s)
	return c
}
