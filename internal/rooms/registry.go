package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/RanFeng/ilog"
	"github.com/google/uuid"

	"cinesync/internal/protocol"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrInvalidRequest = errors.New("room id and content reference are required")
)

// Registry is the source of truth for active rooms. One instance lives
// for the whole process and is handed to the transports by reference;
// nothing else may touch a room's member set.
//
// Room identifiers are supplied by the creating client and stored
// verbatim, which is what the deployed clients expect. Generating ids
// here (see GenerateRoomID) would close the collision window but breaks
// the wire contract, so it stays opt-in for new callers only.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// CreateRoom registers a room with the creator as its only member.
// Creating over a live identifier replaces the old room outright, so a
// stale id can be reused the way the original clients do. Members of a
// replaced room stay attached to the orphan: broadcasts addressed to
// the id no longer reach them, and anything they emit under it lands in
// the new room.
func (g *Registry) CreateRoom(roomID string, contentRef json.RawMessage, creator *Member) error {
	if roomID == "" || len(contentRef) == 0 {
		return ErrInvalidRequest
	}

	room := newRoom(roomID, contentRef, time.Now().UTC())
	room.attach(creator)

	g.mu.Lock()
	g.rooms[roomID] = room
	g.mu.Unlock()

	ilog.EventInfo(context.Background(), "room_created", "room_id", roomID, "member_id", creator.ID())
	return nil
}

// JoinRoom adds the member and returns the room's current content
// reference so the joiner can initialize its player without a race.
// The registry lock is held across the attach: a Leave that would
// empty and delete the room cannot interleave, so a successful join
// always lands in a room the registry still holds.
func (g *Registry) JoinRoom(roomID string, m *Member) (json.RawMessage, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	room.attach(m)
	ilog.EventInfo(context.Background(), "room_joined", "room_id", roomID, "member_id", m.ID())
	return room.content(), nil
}

// Leave removes the member from whichever room holds it and deletes the
// room the moment it empties. It is idempotent: a member that is in no
// room is a no-op, not an error.
func (g *Registry) Leave(memberID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, room := range g.rooms {
		if !room.detach(memberID) {
			continue
		}
		if room.size() == 0 {
			delete(g.rooms, id)
			ilog.EventInfo(context.Background(), "room_deleted", "room_id", id)
		}
	}
}

// SetContent replaces the room's content reference. Nothing else ever
// touches it implicitly; episode and season broadcasts go around it.
// The lock is held across the update so it cannot land on a room a
// concurrent Leave has already deleted.
func (g *Registry) SetContent(roomID string, contentRef json.RawMessage) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	room.setContent(contentRef)
	return nil
}

// Broadcast fans env out to every member of the room except senderID and
// returns how many send queues accepted it. An empty senderID addresses
// the whole room. Delivery is at-most-once with no acknowledgement; a
// member with a full queue misses the frame.
func (g *Registry) Broadcast(roomID, senderID string, env protocol.Envelope) (int, error) {
	g.mu.RLock()
	room, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok {
		return 0, ErrRoomNotFound
	}

	data, err := json.Marshal(env)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, m := range room.recipients(senderID) {
		if m.enqueue(data) {
			delivered++
		}
	}
	return delivered, nil
}

func (g *Registry) HasRoom(roomID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.rooms[roomID]
	return ok
}

func (g *Registry) Snapshot(roomID string) (RoomStatus, error) {
	g.mu.RLock()
	room, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok {
		return RoomStatus{}, ErrRoomNotFound
	}
	return room.status(), nil
}

// GenerateRoomID returns a fresh collision-safe identifier for callers
// that do not bring their own.
func GenerateRoomID() string {
	return "room_" + uuid.NewString()
}

func (g *Registry) List() []RoomStatus {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.RUnlock()

	out := make([]RoomStatus, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.status())
	}
	return out
}
