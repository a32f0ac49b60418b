package student

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store is the persistence interface for student records. Get and
// Delete return (nil, nil) for an unknown ID; errors are reserved for
// storage failures.
type Store interface {
	List() ([]Student, error)
	Get(id string) (*Student, error)
	Add(s Student) (*Student, error)
	Delete(id string) (*Student, error)
	Close() error
}

// MemoryStore keeps records in a map. It is the default store when no
// database path is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	students map[string]Student
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{students: make(map[string]Student)}
}

// List returns all records sorted by name.
func (m *MemoryStore) List() ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get looks up one record by ID.
func (m *MemoryStore) Get(id string) (*Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// Add stores a new record and assigns it an ID.
func (m *MemoryStore) Add(s Student) (*Student, error) {
	s.ID = uuid.New().String()

	m.mu.Lock()
	m.students[s.ID] = s
	m.mu.Unlock()

	return &s, nil
}

// Delete removes a record, returning it if it existed.
func (m *MemoryStore) Delete(id string) (*Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.students[id]
	if !ok {
		return nil, nil
	}
	delete(m.students, id)
	return &s, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
