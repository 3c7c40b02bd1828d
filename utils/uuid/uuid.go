// Package uuid provides ID generation and test utilities.
package uuid

import "github.com/google/uuid"

// IDers generate identifiers.
type IDer interface {
	ID() string
}

// UUID generates random (v4) UUID identifiers.
type UUID struct{}

func NewUUID() *UUID {
	return &UUID{}
}

// ID generates a new UUID.
func (u *UUID) ID() string {
	return uuid.NewString()
}

// StaticIDs is an ID generator that cycles through a fixed set of IDs.
// Intended for deterministic tests.
type StaticIDs struct {
	ids []string
	i   int
}

func NewStaticIDs(ids ...string) *StaticIDs {
	return &StaticIDs{ids: ids}
}

// ID returns the next ID, wrapping around at the end of the set.
func (s *StaticIDs) ID() string {
	id := s.ids[s.i%len(s.ids)]
	s.i++
	return id
}
