// Package stream ingests driver position reports over a gRPC bidirectional
// stream, for fleet hardware that keeps a single long-lived connection
// instead of the websocket channel. Updates flow through the same coordinator
// as every other path.
package stream

import (
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/example/schooltrack/internal/realtime"
	"github.com/example/schooltrack/internal/tracking/domain"
)

// Server implements VehicleTrackingServer on top of the update coordinator.
type Server struct {
	coord  realtime.Coordinator
	logger *zap.Logger
}

// NewServer constructs a Server.
func NewServer(coord realtime.Coordinator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{coord: coord, logger: logger}
}

// PublishLocation drains driver updates until the client closes the stream.
// Like the websocket path this is fire-and-forget per update: rejected or
// unpersisted updates are logged by the coordinator and skipped.
func (s *Server) PublishLocation(stream VehicleTracking_PublishLocationServer) error {
	var accepted int64
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return stream.SendAndClose(&Ack{Accepted: accepted})
		}
		if err != nil {
			return err
		}

		raw := domain.RawUpdate{
			VehicleID: msg.VehicleId,
			Latitude:  msg.Latitude,
			Longitude: msg.Longitude,
		}
		if _, err := s.coord.HandleUpdate(stream.Context(), raw); err == nil {
			accepted++
		}
	}
}
