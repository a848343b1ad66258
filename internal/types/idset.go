// Package types provides type definitions for structured data used throughout the harvester.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "encoding/json"

// IDSet is an insertion-ordered set of string identifiers.
// It marshals as a JSON array so persisted documents stay stable across runs.
type IDSet struct {
	order []string
	index map[string]struct{}
}

// NewIDSet returns a set holding ids in the given order, duplicates dropped.
func NewIDSet(ids ...string) *IDSet {
	s := &IDSet{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was new. Empty ids are ignored.
func (s *IDSet) Add(id string) bool {
	if id == "" {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Has reports whether id is in the set. A nil set is empty.
func (s *IDSet) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[id]
	return ok
}

// Len returns the number of ids.
func (s *IDSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Slice returns a copy of the ids in insertion order.
func (s *IDSet) Slice() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Clone returns an independent copy.
func (s *IDSet) Clone() *IDSet {
	return NewIDSet(s.Slice()...)
}

// MarshalJSON encodes the set as an array.
func (s *IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array, dropping duplicates.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = IDSet{}
	for _, id := range ids {
		s.Add(id)
	}
	return nil
}

// MarshalYAML encodes the set as a sequence.
func (s *IDSet) MarshalYAML() (any, error) {
	return s.Slice(), nil
}
