package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RoomPrefix is prepended to a vehicle id to form its broadcast room name.
// The same name must be used on the join and broadcast sides.
const RoomPrefix = "vehicle_"

// RoomName returns the broadcast room for a vehicle.
func RoomName(vehicleID string) string {
	return RoomPrefix + vehicleID
}

// Wire event names shared by the realtime gateway and the coordinator.
const (
	EventRoomJoined     = "room_joined"
	EventLocationUpdate = "location_update"
	EventVehicleOffline = "vehicle_offline"
)

// VehicleLocation is the last known position of one vehicle. The store keeps
// at most one record per vehicle; every valid update overwrites it.
type VehicleLocation struct {
	VehicleID string    `json:"vehicle_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// RawUpdate is an unvalidated location payload as received from a driver
// client. Latitude and longitude are typed loosely because clients have been
// observed sending them both as numbers and as strings.
type RawUpdate struct {
	VehicleID string `json:"vehicle_id"`
	Latitude  any    `json:"latitude"`
	Longitude any    `json:"longitude"`
}

// ErrNotFound indicates no location has ever been recorded for a vehicle.
var ErrNotFound = errors.New("no location recorded for vehicle")

// ErrVehicleNotFound indicates the directory has no vehicle for a driver.
var ErrVehicleNotFound = errors.New("no vehicle assigned to driver")

// ValidationKind classifies why an update payload was rejected.
type ValidationKind string

const (
	KindMissingField ValidationKind = "missing_field"
	KindNotNumeric   ValidationKind = "not_numeric"
)

// ValidationError reports a malformed update payload. It is recoverable: the
// update is dropped and the process continues.
type ValidationError struct {
	Kind  ValidationKind
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid location update: field %q %s", e.Field, e.Kind)
}

// PersistenceError wraps a store failure. An update that fails to persist is
// never broadcast.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("location store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LocationStore persists the latest position per vehicle.
type LocationStore interface {
	// Upsert overwrites the record for loc.VehicleID.
	Upsert(ctx context.Context, loc VehicleLocation) error
	// Latest returns the current record or ErrNotFound.
	Latest(ctx context.Context, vehicleID string) (VehicleLocation, error)
}

// Broadcaster fans an event out to every current member of a room.
// Implementations must be synchronous and in-memory so that membership
// mutations stay linearizable with respect to broadcasts.
type Broadcaster interface {
	Broadcast(room, event string, payload any)
}

// LocationEvent is published to interested external consumers after a
// successful update or an explicit stop-sharing.
type LocationEvent struct {
	Type      string           `json:"type"`
	Origin    string           `json:"origin"`
	VehicleID string           `json:"vehicle_id"`
	Location  *VehicleLocation `json:"location,omitempty"`
}

// EventPublisher emits location events. Implementations must tolerate a nil
// receiver so publication stays optional.
type EventPublisher interface {
	Publish(ctx context.Context, event LocationEvent) error
}

// VehicleDirectory resolves the vehicle assigned to a driver, used for
// authorization context. Backed by the school backend's vehicles table.
type VehicleDirectory interface {
	VehicleByDriver(ctx context.Context, driverID string) (string, error)
}

// Clock abstracts time for testability; stored timestamps are always
// server-assigned.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
