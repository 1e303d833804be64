package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/example/schooltrack/internal/tracking/domain"
)

// Event is the wire envelope for the persistent channel.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEvent marshals payload into an envelope.
func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: name, Data: data}, nil
}

// Session is a live connection the registry can deliver events to. Deliver
// must not block; slow consumers drop rather than stall a broadcast.
type Session interface {
	ID() string
	Deliver(evt Event)
}

type joinAck struct {
	Room    string `json:"room"`
	Success bool   `json:"success"`
}

// Registry owns room membership exclusively: one room per vehicle, sessions
// hold no references to each other. A single mutex covers every membership
// mutation and the member snapshot taken for a broadcast, which keeps
// broadcasts linearizable with respect to joins and leaves.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]map[Session]struct{}
	members map[Session]map[string]struct{}
	logger  *zap.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:   make(map[string]map[Session]struct{}),
		members: make(map[Session]map[string]struct{}),
		logger:  logger,
	}
}

// Join adds the session to a room. Joining twice is a membership no-op, but
// every join is acknowledged so the client can confirm its subscription
// before expecting events.
func (r *Registry) Join(s Session, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rooms[room] == nil {
		r.rooms[room] = make(map[Session]struct{})
	}
	r.rooms[room][s] = struct{}{}

	if r.members[s] == nil {
		r.members[s] = make(map[string]struct{})
	}
	r.members[s][room] = struct{}{}

	// Ack under the lock so it is queued ahead of any later broadcast.
	if ack, err := NewEvent(domain.EventRoomJoined, joinAck{Room: room, Success: true}); err == nil {
		s.Deliver(ack)
	}
	r.logger.Debug("session joined room", zap.String("session_id", s.ID()), zap.String("room", room))
}

// Leave removes the session from the room; absent membership is a no-op.
func (r *Registry) Leave(s Session, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detach(s, room)
}

// Broadcast delivers the event to every current member of the room. An empty
// room is a valid no-op. The payload is marshalled once; membership is
// snapshotted under the lock, then sends happen outside it.
func (r *Registry) Broadcast(room, event string, payload any) {
	evt, err := NewEvent(event, payload)
	if err != nil {
		r.logger.Error("broadcast payload marshal failed", zap.String("room", room), zap.Error(err))
		return
	}

	r.mu.Lock()
	members := make([]Session, 0, len(r.rooms[room]))
	for s := range r.rooms[room] {
		members = append(members, s)
	}
	r.mu.Unlock()

	for _, s := range members {
		s.Deliver(evt)
	}
	broadcastsSent.Add(float64(len(members)))
}

// RemoveSession drops the session from every room it joined. Runs in
// O(rooms joined), not O(total rooms), via the per-session membership set.
func (r *Registry) RemoveSession(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.members[s] {
		r.detach(s, room)
	}
	delete(r.members, s)
}

// RoomSize reports current membership (for tests and diagnostics).
func (r *Registry) RoomSize(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

// detach assumes the lock is held.
func (r *Registry) detach(s Session, room string) {
	if set, ok := r.rooms[room]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(r.rooms, room)
		}
	}
	if set, ok := r.members[s]; ok {
		delete(set, room)
	}
}
