package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/schooltrack/internal/tracking/domain"
)

// Service is the update coordinator: the single entry point used by every
// ingest path (HTTP, websocket, gRPC stream). It validates, persists, then
// broadcasts. Persistence success is a precondition for broadcast, so
// subscribers never see a position that is not durably known.
type Service struct {
	store  domain.LocationStore
	rooms  domain.Broadcaster
	events domain.EventPublisher
	clock  domain.Clock
	origin string
	logger *zap.Logger
}

// New constructs a Service. events may be nil when no external publication
// is configured; origin identifies this instance in published events.
func New(store domain.LocationStore, rooms domain.Broadcaster, events domain.EventPublisher, clock domain.Clock, origin string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, rooms: rooms, events: events, clock: clock, origin: origin, logger: logger}
}

// HandleUpdate processes one driver location payload. Any client-supplied
// timestamp is ignored; the stored timestamp is assigned here at write time.
func (s *Service) HandleUpdate(ctx context.Context, raw domain.RawUpdate) (domain.VehicleLocation, error) {
	loc, err := ParseUpdate(raw)
	if err != nil {
		updatesRejected.Inc()
		s.logger.Warn("rejected location update",
			zap.String("vehicle_id", raw.VehicleID),
			zap.Any("latitude", raw.Latitude),
			zap.Any("longitude", raw.Longitude),
			zap.Error(err))
		return domain.VehicleLocation{}, err
	}

	loc.Timestamp = s.clock.Now()

	if err := s.store.Upsert(ctx, loc); err != nil {
		updatesFailed.Inc()
		perr := &domain.PersistenceError{Op: "upsert", Err: err}
		s.logger.Error("location persist failed", zap.String("vehicle_id", loc.VehicleID), zap.Error(err))
		return domain.VehicleLocation{}, perr
	}

	s.rooms.Broadcast(domain.RoomName(loc.VehicleID), domain.EventLocationUpdate, loc)
	updatesProcessed.Inc()

	s.publish(ctx, domain.LocationEvent{
		Type:      domain.EventLocationUpdate,
		Origin:    s.origin,
		VehicleID: loc.VehicleID,
		Location:  &loc,
	})

	return loc, nil
}

// Latest returns the last known position or domain.ErrNotFound.
func (s *Service) Latest(ctx context.Context, vehicleID string) (domain.VehicleLocation, error) {
	loc, err := s.store.Latest(ctx, vehicleID)
	if err != nil {
		return domain.VehicleLocation{}, err
	}
	return loc, nil
}

// StopSharing announces that a driver stopped publishing for the vehicle.
// The last known position stays queryable; only the room is notified.
func (s *Service) StopSharing(ctx context.Context, vehicleID string) {
	s.rooms.Broadcast(domain.RoomName(vehicleID), domain.EventVehicleOffline, map[string]string{
		"vehicle_id": vehicleID,
	})
	s.publish(ctx, domain.LocationEvent{
		Type:      domain.EventVehicleOffline,
		Origin:    s.origin,
		VehicleID: vehicleID,
	})
}

func (s *Service) publish(ctx context.Context, event domain.LocationEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("location event publish failed", zap.String("vehicle_id", event.VehicleID), zap.Error(err))
	}
}
