package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/schooltrack/internal/tracking/domain"
	"github.com/example/schooltrack/internal/tracking/repository"
	"github.com/example/schooltrack/internal/tracking/service"
)

type broadcastCall struct {
	room    string
	event   string
	payload any
}

type recordingRooms struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (r *recordingRooms) Broadcast(room, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcastCall{room: room, event: event, payload: payload})
}

func (r *recordingRooms) Calls() []broadcastCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]broadcastCall(nil), r.calls...)
}

type failingStore struct {
	err error
}

func (f *failingStore) Upsert(context.Context, domain.VehicleLocation) error {
	return f.err
}

func (f *failingStore) Latest(context.Context, string) (domain.VehicleLocation, error) {
	return domain.VehicleLocation{}, f.err
}

type stubClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubPublisher struct {
	mu     sync.Mutex
	events []domain.LocationEvent
}

func (p *stubPublisher) Publish(_ context.Context, event domain.LocationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *stubPublisher) Events() []domain.LocationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.LocationEvent(nil), p.events...)
}

func newService(store domain.LocationStore, rooms domain.Broadcaster, events domain.EventPublisher, clock domain.Clock) *service.Service {
	return service.New(store, rooms, events, clock, "test-origin", nil)
}

func TestHandleUpdateStoresAndBroadcasts(t *testing.T) {
	store := repository.NewMemoryStore()
	rooms := &recordingRooms{}
	publisher := &stubPublisher{}
	clock := &stubClock{t: time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)}
	svc := newService(store, rooms, publisher, clock)

	loc, err := svc.HandleUpdate(context.Background(), domain.RawUpdate{
		VehicleID: "V1",
		Latitude:  12.9716,
		Longitude: 77.5946,
	})
	require.NoError(t, err)
	require.Equal(t, "V1", loc.VehicleID)
	require.Equal(t, 12.9716, loc.Latitude)
	require.Equal(t, 77.5946, loc.Longitude)
	require.Equal(t, clock.Now(), loc.Timestamp)

	stored, err := svc.Latest(context.Background(), "V1")
	require.NoError(t, err)
	require.Equal(t, loc, stored)

	calls := rooms.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "vehicle_V1", calls[0].room)
	require.Equal(t, domain.EventLocationUpdate, calls[0].event)
	require.Equal(t, loc, calls[0].payload)

	events := publisher.Events()
	require.Len(t, events, 1)
	require.Equal(t, domain.EventLocationUpdate, events[0].Type)
	require.Equal(t, "test-origin", events[0].Origin)
	require.Equal(t, &loc, events[0].Location)
}

func TestHandleUpdateAcceptsStringCoordinates(t *testing.T) {
	store := repository.NewMemoryStore()
	rooms := &recordingRooms{}
	clock := &stubClock{t: time.Unix(1700000000, 0).UTC()}
	svc := newService(store, rooms, nil, clock)

	loc, err := svc.HandleUpdate(context.Background(), domain.RawUpdate{
		VehicleID: "V2",
		Latitude:  "12.5",
		Longitude: "-77.25",
	})
	require.NoError(t, err)
	require.Equal(t, 12.5, loc.Latitude)
	require.Equal(t, -77.25, loc.Longitude)
}

func TestHandleUpdateRejectsMalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  domain.RawUpdate
		kind domain.ValidationKind
	}{
		{
			name: "missing vehicle id",
			raw:  domain.RawUpdate{Latitude: 1.0, Longitude: 2.0},
			kind: domain.KindMissingField,
		},
		{
			name: "missing latitude",
			raw:  domain.RawUpdate{VehicleID: "V1", Longitude: 2.0},
			kind: domain.KindMissingField,
		},
		{
			name: "latitude not a number",
			raw:  domain.RawUpdate{VehicleID: "V1", Latitude: "not-a-number", Longitude: 2.0},
			kind: domain.KindNotNumeric,
		},
		{
			name: "longitude infinite",
			raw:  domain.RawUpdate{VehicleID: "V1", Latitude: 1.0, Longitude: "Inf"},
			kind: domain.KindNotNumeric,
		},
		{
			name: "longitude wrong type",
			raw:  domain.RawUpdate{VehicleID: "V1", Latitude: 1.0, Longitude: []any{"x"}},
			kind: domain.KindNotNumeric,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			rooms := &recordingRooms{}
			svc := newService(store, rooms, nil, domain.SystemClock{})

			_, err := svc.HandleUpdate(context.Background(), tc.raw)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.kind, verr.Kind)

			// rejected updates must neither persist nor broadcast
			require.Zero(t, store.Len())
			require.Empty(t, rooms.Calls())
		})
	}
}

func TestHandleUpdateIsIdempotentPerVehicle(t *testing.T) {
	store := repository.NewMemoryStore()
	rooms := &recordingRooms{}
	clock := &stubClock{t: time.Unix(1700000000, 0).UTC()}
	svc := newService(store, rooms, nil, clock)

	raw := domain.RawUpdate{VehicleID: "V1", Latitude: 10.0, Longitude: 20.0}

	first, err := svc.HandleUpdate(context.Background(), raw)
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	second, err := svc.HandleUpdate(context.Background(), raw)
	require.NoError(t, err)

	require.Equal(t, 1, store.Len())
	require.Equal(t, first.Latitude, second.Latitude)
	require.Equal(t, first.Longitude, second.Longitude)
	require.True(t, second.Timestamp.After(first.Timestamp))

	stored, err := svc.Latest(context.Background(), "V1")
	require.NoError(t, err)
	require.Equal(t, second, stored)
}

func TestHandleUpdatePersistFailureSkipsBroadcast(t *testing.T) {
	rooms := &recordingRooms{}
	publisher := &stubPublisher{}
	svc := newService(&failingStore{err: errors.New("connection refused")}, rooms, publisher, domain.SystemClock{})

	_, err := svc.HandleUpdate(context.Background(), domain.RawUpdate{
		VehicleID: "V1",
		Latitude:  1.0,
		Longitude: 2.0,
	})
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Empty(t, rooms.Calls())
	require.Empty(t, publisher.Events())
}

func TestLatestUnknownVehicle(t *testing.T) {
	svc := newService(repository.NewMemoryStore(), &recordingRooms{}, nil, domain.SystemClock{})
	_, err := svc.Latest(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStopSharingKeepsLastKnownPosition(t *testing.T) {
	store := repository.NewMemoryStore()
	rooms := &recordingRooms{}
	clock := &stubClock{t: time.Unix(1700000000, 0).UTC()}
	svc := newService(store, rooms, nil, clock)

	loc, err := svc.HandleUpdate(context.Background(), domain.RawUpdate{VehicleID: "V1", Latitude: 1.0, Longitude: 2.0})
	require.NoError(t, err)

	svc.StopSharing(context.Background(), "V1")

	calls := rooms.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, domain.EventVehicleOffline, calls[1].event)
	require.Equal(t, "vehicle_V1", calls[1].room)
	require.Equal(t, map[string]string{"vehicle_id": "V1"}, calls[1].payload)

	stored, err := svc.Latest(context.Background(), "V1")
	require.NoError(t, err)
	require.Equal(t, loc, stored)
}
