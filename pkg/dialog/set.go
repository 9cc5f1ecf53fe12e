package dialog

import (
	"fmt"
	"hash/fnv"
	"strconv"
)

// Set is a registry of dialogs addressable by id. Ids are made unique on
// registration and then fixed on dialogs that accept it.
type Set struct {
	dialogs map[string]Dialog
	order   []string
}

// NewSet creates a set and registers ds in order.
func NewSet(ds ...Dialog) *Set {
	s := &Set{dialogs: make(map[string]Dialog)}
	for _, d := range ds {
		s.Add(d)
	}
	return s
}

// Add registers d and, recursively, its dependencies. A dialog already in
// the set is not registered twice. A different dialog with a taken id is
// registered under the id suffixed with 2, 3, and so on.
func (s *Set) Add(d Dialog) *Set {
	if d == nil {
		return s
	}
	id := d.ID()
	if existing, ok := s.dialogs[id]; ok && existing == d {
		return s
	}
	if _, taken := s.dialogs[id]; taken {
		base := id
		for n := 2; ; n++ {
			id = base + strconv.Itoa(n)
			if _, taken := s.dialogs[id]; !taken {
				break
			}
		}
	}
	if setter, ok := d.(IDSetter); ok {
		setter.SetID(id)
	}
	s.dialogs[id] = d
	s.order = append(s.order, id)

	if dp, ok := d.(DependencyProvider); ok {
		for _, dep := range dp.Dependencies() {
			s.Add(dep)
		}
	}
	return s
}

// Find returns the dialog registered under id, or nil.
func (s *Set) Find(id string) Dialog {
	if s == nil {
		return nil
	}
	return s.dialogs[id]
}

// IDs returns registered ids in registration order.
func (s *Set) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of registered dialogs.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Version hashes the versions of every registered dialog.
func (s *Set) Version() string {
	h := fnv.New64a()
	for _, id := range s.IDs() {
		_, _ = h.Write([]byte(id))
		if v, ok := s.dialogs[id].(Versioned); ok {
			_, _ = h.Write([]byte(v.Version()))
		}
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// VersionOf returns d's version, or its id when it does not report one.
func VersionOf(d Dialog) string {
	if v, ok := d.(Versioned); ok {
		return v.Version()
	}
	return d.ID()
}
