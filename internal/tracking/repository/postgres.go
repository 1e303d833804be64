package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/schooltrack/internal/tracking/domain"
)

// PostgresStore persists last known positions in the live_locations table.
// The pool passed in bounds concurrent writes via SetMaxOpenConns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a store over an open pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Upsert writes the latest position, overwriting any prior row for the
// vehicle.
func (s *PostgresStore) Upsert(ctx context.Context, loc domain.VehicleLocation) error {
	const q = `
        INSERT INTO live_locations (vehicle_id, latitude, longitude, timestamp)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (vehicle_id) DO UPDATE SET
            latitude  = EXCLUDED.latitude,
            longitude = EXCLUDED.longitude,
            timestamp = EXCLUDED.timestamp`
	if _, err := s.db.ExecContext(ctx, q, loc.VehicleID, loc.Latitude, loc.Longitude, loc.Timestamp); err != nil {
		return fmt.Errorf("upsert live location: %w", err)
	}
	return nil
}

// Latest returns the current record or domain.ErrNotFound.
func (s *PostgresStore) Latest(ctx context.Context, vehicleID string) (domain.VehicleLocation, error) {
	const q = `
        SELECT vehicle_id, latitude, longitude, timestamp
        FROM live_locations
        WHERE vehicle_id = $1`
	var loc domain.VehicleLocation
	err := s.db.QueryRowContext(ctx, q, vehicleID).
		Scan(&loc.VehicleID, &loc.Latitude, &loc.Longitude, &loc.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VehicleLocation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.VehicleLocation{}, fmt.Errorf("query live location: %w", err)
	}
	return loc, nil
}
