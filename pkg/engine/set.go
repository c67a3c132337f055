package engine

// orderedSet is an insertion-ordered set of plugin ids.
type orderedSet struct {
	items []string
	index map[string]struct{}
}

func newOrderedSet(ids ...string) *orderedSet {
	s := &orderedSet{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was new.
func (s *orderedSet) Add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.items = append(s.items, id)
	return true
}

func (s *orderedSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *orderedSet) Len() int { return len(s.items) }

// Items returns a copy of the members in insertion order.
func (s *orderedSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
