package draft

import (
	"regexp"
	"slices"
)

// AllowSet is an insertion-ordered set of permitted literal values.
type AllowSet struct {
	values []string
}

// NewAllowSet returns a set holding values in order, duplicates dropped.
func NewAllowSet(values ...string) *AllowSet {
	s := &AllowSet{}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v unless it is already present. Re-adding keeps the original position.
func (s *AllowSet) Add(v string) {
	if !s.Contains(v) {
		s.values = append(s.values, v)
	}
}

// Remove deletes v if present.
func (s *AllowSet) Remove(v string) {
	if i := slices.Index(s.values, v); i >= 0 {
		s.values = slices.Delete(s.values, i, i+1)
	}
}

// Contains reports whether v is a member.
func (s *AllowSet) Contains(v string) bool {
	return slices.Contains(s.values, v)
}

// Last returns the most recently inserted value.
func (s *AllowSet) Last() (string, bool) {
	if len(s.values) == 0 {
		return "", false
	}
	return s.values[len(s.values)-1], true
}

// Len returns the number of members.
func (s *AllowSet) Len() int {
	return len(s.values)
}

// Values returns a copy of the members in insertion order.
func (s *AllowSet) Values() []string {
	return slices.Clone(s.values)
}

// Clone returns an independent copy of the set.
func (s *AllowSet) Clone() *AllowSet {
	return &AllowSet{values: slices.Clone(s.values)}
}

var (
	// chipBoundary matches a completed token: word characters followed by
	// a separator such as a space or comma.
	chipBoundary = regexp.MustCompile(`\w+\W`)
	nonWord      = regexp.MustCompile(`\W`)
)

// splitChip inspects a raw input buffer. When the buffer holds a completed
// token it returns the token with every non-word character stripped and
// true; the caller commits the token and resets the buffer.
func splitChip(raw string) (string, bool) {
	if raw == "" || !chipBoundary.MatchString(raw) {
		return "", false
	}
	return nonWord.ReplaceAllString(raw, ""), true
}
