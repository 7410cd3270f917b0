package parameter

// Set is the ordered collection of parameters owned by one pattern instance.
// Script contexts look parameters up by id through the set, never by pointer.
type Set struct {
	params []*Parameter
	index  map[string]int
}

func NewSet(params ...*Parameter) (*Set, error) {
	s := &Set{index: make(map[string]int, len(params))}
	for _, p := range params {
		if _, dup := s.index[p.id]; dup {
			return nil, &Error{ID: p.id, Err: ErrDuplicateID}
		}
		s.index[p.id] = len(s.params)
		s.params = append(s.params, p)
	}
	return s, nil
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.params)
}

func (s *Set) All() []*Parameter {
	if s == nil {
		return nil
	}
	return s.params
}

func (s *Set) Get(id string) (*Parameter, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.params[i], true
}

func (s *Set) SetValue(id string, v float64) error {
	p, ok := s.Get(id)
	if !ok {
		return &Error{ID: id, Err: ErrUnknownParameter}
	}
	return p.SetValue(v)
}

// Clone deep-copies all parameters, so the copy's values evolve independently.
func (s *Set) Clone() *Set {
	if s == nil {
		return nil
	}
	c := &Set{params: make([]*Parameter, len(s.params)), index: make(map[string]int, len(s.params))}
	for i, p := range s.params {
		c.params[i] = p.Clone()
		c.index[p.id] = i
	}
	return c
}
