package persona

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrNotFound is returned when no persona carries the requested id.
	ErrNotFound = errors.New("persona not found")
	// ErrInvalid wraps validation failures of a persona definition.
	ErrInvalid = errors.New("invalid persona")
)

// Store exposes persona retrieval for the prompt assembler and HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore is an immutable set of personas indexed by id. List keeps the
// order the personas were loaded in.
type MemoryStore struct {
	order []string
	byID  map[string]Persona
}

// NewMemoryStore validates items and indexes them. Ids are trimmed and must be
// unique.
func NewMemoryStore(items []Persona) (*MemoryStore, error) {
	s := &MemoryStore{
		order: make([]string, 0, len(items)),
		byID:  make(map[string]Persona, len(items)),
	}
	for i, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("persona %d: %w", i, err)
		}
		if _, dup := s.byID[item.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalid, item.ID)
		}
		s.order = append(s.order, item.ID)
		s.byID[item.ID] = item.clone()
	}
	return s, nil
}

// List returns copies of all personas.
func (s *MemoryStore) List() []Persona {
	out := make([]Persona, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].clone())
	}
	return out
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	p, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Persona{}, false
	}
	return p.clone(), true
}

// Resolve returns the persona for id; a blank id selects DefaultID.
func Resolve(store Store, id string) (Persona, error) {
	if strings.TrimSpace(id) == "" {
		id = DefaultID
	}
	p, ok := store.FindByID(id)
	if !ok {
		return Persona{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

func (p Persona) clone() Persona {
	p.Traits = slices.Clone(p.Traits)
	p.Abilities = slices.Clone(p.Abilities)
	p.Constraints = slices.Clone(p.Constraints)
	return p
}
