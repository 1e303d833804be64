package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/example/schooltrack/internal/tracking/domain"
)

var (
	bridgeReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_bridge_received_total",
		Help: "Location events received from NATS.",
	})
	bridgeRebroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_bridge_rebroadcast_total",
		Help: "Remote-origin events re-broadcast into local rooms.",
	})
)

// Bridge subscribes to the location event subject and re-broadcasts events
// that originated on other instances into the local room registry. Events
// this instance published itself are skipped, so local subscribers never see
// an update twice.
type Bridge struct {
	conn    *nats.Conn
	subject string
	origin  string
	rooms   domain.Broadcaster
	logger  *zap.Logger
}

// NewBridge constructs a Bridge. origin must match the Publisher origin used
// by this instance.
func NewBridge(conn *nats.Conn, subject, origin string, rooms domain.Broadcaster, logger *zap.Logger) *Bridge {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{conn: conn, subject: subject, origin: origin, rooms: rooms, logger: logger}
}

// Run subscribes and blocks until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if b.conn == nil {
		return errors.New("events bridge requires a NATS connection")
	}

	sub, err := b.conn.Subscribe(b.subject, b.handle)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	b.logger.Info("events bridge subscribed", zap.String("subject", b.subject))
	<-ctx.Done()
	return ctx.Err()
}

func (b *Bridge) handle(msg *nats.Msg) {
	bridgeReceived.Inc()
	if msg.Header.Get(headerOrigin) == b.origin {
		return
	}

	var event domain.LocationEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		b.logger.Warn("malformed location event from NATS", zap.Error(err))
		return
	}

	switch event.Type {
	case domain.EventLocationUpdate:
		if event.Location == nil {
			b.logger.Warn("location_update event without location", zap.String("vehicle_id", event.VehicleID))
			return
		}
		b.rooms.Broadcast(domain.RoomName(event.VehicleID), domain.EventLocationUpdate, event.Location)
	case domain.EventVehicleOffline:
		b.rooms.Broadcast(domain.RoomName(event.VehicleID), domain.EventVehicleOffline, map[string]string{
			"vehicle_id": event.VehicleID,
		})
	default:
		b.logger.Debug("ignoring event type", zap.String("type", event.Type))
		return
	}
	bridgeRebroadcast.Inc()
}
