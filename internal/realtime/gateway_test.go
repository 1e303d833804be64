package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/example/schooltrack/internal/realtime"
	"github.com/example/schooltrack/internal/tracking/domain"
	"github.com/example/schooltrack/internal/tracking/repository"
	"github.com/example/schooltrack/internal/tracking/service"
)

func newTestServer(t *testing.T) (*httptest.Server, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	registry := realtime.NewRegistry(nil)
	svc := service.New(store, registry, nil, domain.SystemClock{}, "test", nil)
	gateway := realtime.NewGateway(registry, svc, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gateway.Handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	evt, err := realtime.NewEvent(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(evt))
}

func readEvent(t *testing.T, conn *websocket.Conn) realtime.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var evt realtime.Event
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func TestJoinRoomAcknowledged(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	send(t, conn, "join_room", "vehicle_V1")

	evt := readEvent(t, conn)
	require.Equal(t, "room_joined", evt.Event)

	var ack struct {
		Room    string `json:"room"`
		Success bool   `json:"success"`
	}
	require.NoError(t, json.Unmarshal(evt.Data, &ack))
	require.Equal(t, "vehicle_V1", ack.Room)
	require.True(t, ack.Success)
}

func TestDriverUpdateReachesSubscriber(t *testing.T) {
	srv, store := newTestServer(t)

	subscriber := dial(t, srv)
	send(t, subscriber, "join_room", "vehicle_V1")
	require.Equal(t, "room_joined", readEvent(t, subscriber).Event)

	driver := dial(t, srv)
	send(t, driver, "driver_location_update", map[string]any{
		"vehicle_id": "V1",
		"latitude":   12.9716,
		"longitude":  77.5946,
	})

	evt := readEvent(t, subscriber)
	require.Equal(t, "location_update", evt.Event)

	var loc domain.VehicleLocation
	require.NoError(t, json.Unmarshal(evt.Data, &loc))
	require.Equal(t, "V1", loc.VehicleID)
	require.Equal(t, 12.9716, loc.Latitude)
	require.Equal(t, 77.5946, loc.Longitude)
	require.False(t, loc.Timestamp.IsZero())

	stored, err := store.Latest(context.Background(), "V1")
	require.NoError(t, err)
	require.Equal(t, loc.Timestamp.UTC(), stored.Timestamp.UTC())
}

func TestUpdateForOtherVehicleNotDelivered(t *testing.T) {
	srv, _ := newTestServer(t)

	subscriber := dial(t, srv)
	send(t, subscriber, "join_room", "vehicle_V2")
	require.Equal(t, "room_joined", readEvent(t, subscriber).Event)

	driver := dial(t, srv)
	send(t, driver, "driver_location_update", map[string]any{
		"vehicle_id": "V1",
		"latitude":   1.0,
		"longitude":  2.0,
	})

	require.NoError(t, subscriber.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var evt realtime.Event
	err := subscriber.ReadJSON(&evt)
	require.Error(t, err) // nothing should arrive for vehicle_V2
}

func TestInvalidDriverUpdateDroppedSilently(t *testing.T) {
	srv, store := newTestServer(t)

	subscriber := dial(t, srv)
	send(t, subscriber, "join_room", "vehicle_V1")
	require.Equal(t, "room_joined", readEvent(t, subscriber).Event)

	driver := dial(t, srv)
	send(t, driver, "driver_location_update", map[string]any{
		"vehicle_id": "V1",
		"latitude":   "not-a-number",
		"longitude":  2.0,
	})

	require.NoError(t, subscriber.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var evt realtime.Event
	require.Error(t, subscriber.ReadJSON(&evt))
	require.Zero(t, store.Len())
}

func TestStopSharingBroadcastsOffline(t *testing.T) {
	srv, _ := newTestServer(t)

	subscriber := dial(t, srv)
	send(t, subscriber, "join_room", "vehicle_V1")
	require.Equal(t, "room_joined", readEvent(t, subscriber).Event)

	driver := dial(t, srv)
	send(t, driver, "driver_stop_sharing", map[string]string{"vehicle_id": "V1"})

	evt := readEvent(t, subscriber)
	require.Equal(t, "vehicle_offline", evt.Event)

	var payload struct {
		VehicleID string `json:"vehicle_id"`
	}
	require.NoError(t, json.Unmarshal(evt.Data, &payload))
	require.Equal(t, "V1", payload.VehicleID)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	srv, _ := newTestServer(t)

	subscriber := dial(t, srv)
	send(t, subscriber, "join_room", "vehicle_V1")
	require.Equal(t, "room_joined", readEvent(t, subscriber).Event)
	send(t, subscriber, "leave_room", "vehicle_V1")

	driver := dial(t, srv)
	// give the leave a moment to be dispatched before broadcasting
	time.Sleep(100 * time.Millisecond)
	send(t, driver, "driver_location_update", map[string]any{
		"vehicle_id": "V1",
		"latitude":   1.0,
		"longitude":  2.0,
	})

	require.NoError(t, subscriber.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var evt realtime.Event
	require.Error(t, subscriber.ReadJSON(&evt))
}
