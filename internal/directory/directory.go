// Package directory resolves driver-to-vehicle assignments maintained by the
// wider school backend. The tracking core only reads it for authorization
// context and the by-driver lookup endpoint.
package directory

import (
	"context"
	"sync"

	"github.com/example/schooltrack/internal/tracking/domain"
)

// Memory is an in-memory directory for tests and demos.
type Memory struct {
	mu       sync.RWMutex
	vehicles map[string]string // driver id -> vehicle id
}

// NewMemory constructs an empty directory.
func NewMemory() *Memory {
	return &Memory{vehicles: make(map[string]string)}
}

// Assign records a driver/vehicle pairing.
func (m *Memory) Assign(driverID, vehicleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[driverID] = vehicleID
}

// VehicleByDriver returns the assigned vehicle or domain.ErrVehicleNotFound.
func (m *Memory) VehicleByDriver(_ context.Context, driverID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vehicleID, ok := m.vehicles[driverID]
	if !ok {
		return "", domain.ErrVehicleNotFound
	}
	return vehicleID, nil
}
