package repository

import (
	"context"
	"sync"

	"github.com/example/schooltrack/internal/tracking/domain"
)

// MemoryStore provides an in-memory location store suitable for tests and
// local demos.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]domain.VehicleLocation
}

// NewMemoryStore constructs an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]domain.VehicleLocation)}
}

// Upsert overwrites the single row for the vehicle.
func (m *MemoryStore) Upsert(_ context.Context, loc domain.VehicleLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[loc.VehicleID] = loc
	return nil
}

// Latest returns the current record or domain.ErrNotFound.
func (m *MemoryStore) Latest(_ context.Context, vehicleID string) (domain.VehicleLocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.rows[vehicleID]
	if !ok {
		return domain.VehicleLocation{}, domain.ErrNotFound
	}
	return loc, nil
}

// Len reports the number of tracked vehicles (for tests).
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}
