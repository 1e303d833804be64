package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/schooltrack/internal/tracking/domain"
)

// Postgres reads driver assignments from the vehicles table owned by the
// school backend.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a directory over an open pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// VehicleByDriver returns the assigned vehicle or domain.ErrVehicleNotFound.
func (p *Postgres) VehicleByDriver(ctx context.Context, driverID string) (string, error) {
	const q = `SELECT vehicle_id FROM vehicles WHERE driver_id = $1`
	var vehicleID string
	err := p.db.QueryRowContext(ctx, q, driverID).Scan(&vehicleID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrVehicleNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query vehicle by driver: %w", err)
	}
	return vehicleID, nil
}
