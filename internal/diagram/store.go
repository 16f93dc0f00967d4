package diagram

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// SampleID is the diagram the store seeds on first load.
const SampleID = "diag_sample"

// Store keeps diagrams in memory. Load and Save copy, so callers never share
// a Diagram with the store.
type Store struct {
	mu       sync.RWMutex
	diagrams map[string]*Diagram
}

func NewStore() *Store {
	return &Store{diagrams: make(map[string]*Diagram)}
}

// Load returns a copy of the stored diagram. The sample diagram is created
// the first time it is requested.
func (s *Store) Load(id string) (*Diagram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.diagrams[id]
	if !ok {
		if id != SampleID {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		d = NewSampleDiagram(id)
		s.diagrams[id] = d
	}
	return d.Clone()
}

// Create stores a new empty diagram and returns its copy.
func (s *Store) Create(id, name string) (*Diagram, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	d := NewEmptyDiagram(id, name)
	d.CreatedAt = now
	d.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.diagrams[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	s.diagrams[id] = d
	return d.Clone()
}

// Save replaces the stored copy of d.
func (s *Store) Save(d *Diagram) error {
	if err := d.Validate(); err != nil {
		return err
	}
	c, err := d.Clone()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagrams[d.ID] = c
	return nil
}

// IDs returns the stored diagram ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.diagrams))
	for id := range s.diagrams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
