package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/schooltrack/internal/tracking/domain"
)

// Inbound event names: part of the wire contract.
const (
	eventJoinRoom       = "join_room"
	eventLeaveRoom      = "leave_room"
	eventLocationUpdate = "driver_location_update"
	eventStopSharing    = "driver_stop_sharing"
)

// Coordinator is the slice of the update coordinator the gateway needs.
type Coordinator interface {
	HandleUpdate(ctx context.Context, raw domain.RawUpdate) (domain.VehicleLocation, error)
	StopSharing(ctx context.Context, vehicleID string)
}

// Gateway owns websocket connection lifecycle: upgrade, per-connection
// pumps, event dispatch, and membership cleanup on disconnect.
type Gateway struct {
	registry *Registry
	coord    Coordinator
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewGateway constructs a Gateway over the shared registry and coordinator.
func NewGateway(registry *Registry, coord Coordinator, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		registry: registry,
		coord:    coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Handler upgrades the request and services the connection until it closes.
// A reconnecting client must re-issue join_room; there is no resume.
func (g *Gateway) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(conn, g.logger)
	connectionsActive.Inc()
	g.logger.Info("client connected", zap.String("session_id", client.ID()))

	defer func() {
		g.registry.RemoveSession(client)
		_ = conn.Close()
		connectionsActive.Dec()
		g.logger.Info("client disconnected", zap.String("session_id", client.ID()))
	}()

	go client.writePump()
	client.readPump(func(evt Event) {
		g.dispatch(r.Context(), client, evt)
	})
}

// dispatch is the single entry point for inbound events. Update events are
// fire-and-forget on this path: failures are logged, never answered.
func (g *Gateway) dispatch(ctx context.Context, c *Client, evt Event) {
	switch evt.Event {
	case eventJoinRoom:
		var room string
		if err := json.Unmarshal(evt.Data, &room); err != nil || room == "" {
			g.logger.Warn("bad join_room payload", zap.String("session_id", c.ID()), zap.ByteString("data", evt.Data))
			return
		}
		g.registry.Join(c, room)

	case eventLeaveRoom:
		var room string
		if err := json.Unmarshal(evt.Data, &room); err != nil || room == "" {
			g.logger.Warn("bad leave_room payload", zap.String("session_id", c.ID()), zap.ByteString("data", evt.Data))
			return
		}
		g.registry.Leave(c, room)

	case eventLocationUpdate:
		var raw domain.RawUpdate
		if err := json.Unmarshal(evt.Data, &raw); err != nil {
			g.logger.Warn("bad driver_location_update payload", zap.String("session_id", c.ID()), zap.ByteString("data", evt.Data))
			return
		}
		// Rejections and persist failures are already logged by the
		// coordinator; no response channel exists here.
		_, _ = g.coord.HandleUpdate(ctx, raw)

	case eventStopSharing:
		var payload struct {
			VehicleID string `json:"vehicle_id"`
		}
		if err := json.Unmarshal(evt.Data, &payload); err != nil || payload.VehicleID == "" {
			g.logger.Warn("bad driver_stop_sharing payload", zap.String("session_id", c.ID()), zap.ByteString("data", evt.Data))
			return
		}
		g.coord.StopSharing(ctx, payload.VehicleID)

	default:
		g.logger.Debug("unknown event", zap.String("session_id", c.ID()), zap.String("event", evt.Event))
	}
}
