package model

import (
	"sort"
	"sync"

	apperrors "cosmo-migrator/internal/shared/errors"
)

// IdentityMap records (kind, old id) -> new id for one migration run.
// Entries are only ever added; it is safe for concurrent use.
type IdentityMap struct {
	mu      sync.RWMutex
	entries map[Kind]map[string]string
	count   int
}

// NewIdentityMap returns an empty map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{entries: make(map[Kind]map[string]string)}
}

// Register stores a mapping. Registering the same value twice is a no-op;
// registering a different value fails with a DuplicateMapping error.
func (m *IdentityMap) Register(kind Kind, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKind, ok := m.entries[kind]
	if !ok {
		byKind = make(map[string]string)
		m.entries[kind] = byKind
	}
	if existing, ok := byKind[oldID]; ok {
		if existing == newID {
			return nil
		}
		return apperrors.NewDuplicateMapping(string(kind), oldID, existing, newID)
	}
	byKind[oldID] = newID
	m.count++
	return nil
}

// Resolve returns the new id for (kind, oldID) or an UnknownReference error.
func (m *IdentityMap) Resolve(kind Kind, oldID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if newID, ok := m.entries[kind][oldID]; ok {
		return newID, nil
	}
	return "", apperrors.NewUnknownReference(string(kind), oldID)
}

// Has reports whether (kind, oldID) is mapped.
func (m *IdentityMap) Has(kind Kind, oldID string) bool {
	_, err := m.Resolve(kind, oldID)
	return err == nil
}

// Len returns the number of entries across all kinds.
func (m *IdentityMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Entries returns a snapshot ordered by migration rank, then old id.
func (m *IdentityMap) Entries() []Mapping {
	m.mu.RLock()
	out := make([]Mapping, 0, m.count)
	for kind, byKind := range m.entries {
		for oldID, newID := range byKind {
			out = append(out, Mapping{Kind: kind, OldID: oldID, NewID: newID})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if ri, rj := out[i].Kind.Rank(), out[j].Kind.Rank(); ri != rj {
			return ri < rj
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].OldID < out[j].OldID
	})
	return out
}
