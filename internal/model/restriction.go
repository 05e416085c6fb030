package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Wildcard is the legacy serialized token meaning "all indices".
const Wildcard = "*"

// RestrictionSet limits which row or column indices a grant covers. A nil
// *RestrictionSet means unrestricted. A non-nil set admits exactly the
// indices it lists, or everything when All is set.
type RestrictionSet struct {
	All     bool
	Indices map[int]struct{}
}

// NewAllowList builds a restriction set admitting only the given indices.
func NewAllowList(indices ...int) *RestrictionSet {
	s := &RestrictionSet{Indices: make(map[int]struct{}, len(indices))}
	for _, i := range indices {
		s.Indices[i] = struct{}{}
	}
	return s
}

// NewAllSet builds a restriction set that admits every index. It is
// distinct from nil: the grant carries a restriction payload, the payload
// just contains the wildcard.
func NewAllSet() *RestrictionSet {
	return &RestrictionSet{All: true}
}

// Admits reports whether the set admits the given index. A nil set admits
// everything.
func (s *RestrictionSet) Admits(idx int) bool {
	if s == nil || s.All {
		return true
	}
	_, ok := s.Indices[idx]
	return ok
}

// Clone returns a deep copy. Clone of nil is nil.
func (s *RestrictionSet) Clone() *RestrictionSet {
	if s == nil {
		return nil
	}
	c := &RestrictionSet{All: s.All}
	if s.Indices != nil {
		c.Indices = make(map[int]struct{}, len(s.Indices))
		for i := range s.Indices {
			c.Indices[i] = struct{}{}
		}
	}
	return c
}

// sortedIndices returns the listed indices in ascending order.
func (s *RestrictionSet) sortedIndices() []int {
	out := make([]int, 0, len(s.Indices))
	for i := range s.Indices {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// MarshalJSON encodes the set in the persisted form: a JSON array of
// integer indices, with the wildcard token when All is set.
func (s *RestrictionSet) MarshalJSON() ([]byte, error) {
	items := make([]any, 0, len(s.Indices)+1)
	if s.All {
		items = append(items, Wildcard)
	}
	for _, i := range s.sortedIndices() {
		items = append(items, i)
	}
	return json.Marshal(items)
}

// UnmarshalJSON decodes the persisted form. Entries must be integers or the
// wildcard token; anything else is rejected.
func (s *RestrictionSet) UnmarshalJSON(data []byte) error {
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("restriction set: %w", err)
	}

	out := RestrictionSet{Indices: make(map[int]struct{}, len(items))}
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if v != Wildcard {
				return fmt.Errorf("restriction set: unexpected token %q", v)
			}
			out.All = true
		case float64:
			if v != float64(int(v)) {
				return fmt.Errorf("restriction set: non-integer index %v", v)
			}
			out.Indices[int(v)] = struct{}{}
		default:
			return fmt.Errorf("restriction set: unexpected entry %T", item)
		}
	}

	*s = out
	return nil
}

// ParseRestriction decodes a stored restriction payload. The empty string
// means unrestricted and yields nil.
func ParseRestriction(encoded string) (*RestrictionSet, error) {
	if encoded == "" {
		return nil, nil
	}
	var s RestrictionSet
	if err := s.UnmarshalJSON([]byte(encoded)); err != nil {
		return nil, err
	}
	return &s, nil
}

// EncodeRestriction produces the stored payload for a restriction set. A nil
// set encodes to the empty string (unrestricted).
func EncodeRestriction(s *RestrictionSet) (string, error) {
	if s == nil {
		return "", nil
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
