package stream

import "google.golang.org/grpc"

// VehicleUpdate is one position report on the driver stream.
type VehicleUpdate struct {
	VehicleId string
	Latitude  float64
	Longitude float64
}

// Ack closes the stream, reporting how many updates were accepted.
type Ack struct {
	Accepted int64
}

// VehicleTrackingServer defines the gRPC contract.
type VehicleTrackingServer interface {
	PublishLocation(VehicleTracking_PublishLocationServer) error
}

// RegisterVehicleTrackingServer registers the service implementation.
func RegisterVehicleTrackingServer(s *grpc.Server, srv VehicleTrackingServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "tracking.VehicleTracking",
		HandlerType: (*VehicleTrackingServer)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "PublishLocation",
			Handler:       _VehicleTracking_PublishLocation_Handler,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, srv)
}

// VehicleTracking_PublishLocationServer defines the bidi stream interface.
type VehicleTracking_PublishLocationServer interface {
	grpc.ServerStream
	SendAndClose(*Ack) error
	Recv() (*VehicleUpdate, error)
}

func _VehicleTracking_PublishLocation_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(VehicleTrackingServer).PublishLocation(&publishLocationServer{ServerStream: stream})
}

type publishLocationServer struct {
	grpc.ServerStream
}

func (s *publishLocationServer) SendAndClose(ack *Ack) error {
	return s.ServerStream.SendMsg(ack)
}

func (s *publishLocationServer) Recv() (*VehicleUpdate, error) {
	msg := new(VehicleUpdate)
	if err := s.ServerStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}
