package rooms

import (
	"encoding/json"
	"sync"
	"time"
)

// Conn is the subset of a websocket connection the room layer writes to.
// Both gorilla/websocket and hertz-contrib/websocket connections satisfy it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// websocket text frame, same value in both transports
const textMessage = 1

// Member is one live connection. The registry is the only component that
// moves members in and out of rooms; the member itself only knows how to
// push frames to its peer.
type Member struct {
	id          string
	conn        Conn
	connectedAt time.Time

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewMember(id string, conn Conn) *Member {
	return &Member{
		id:          id,
		conn:        conn,
		connectedAt: time.Now().UTC(),
		send:        make(chan []byte, 8),
	}
}

func (m *Member) ID() string {
	return m.id
}

// SendLoop drains the member's send queue onto the wire. Run it in its
// own goroutine; it returns when the queue is closed or a write fails.
func (m *Member) SendLoop() {
	defer m.Close()
	for msg := range m.send {
		if err := m.conn.WriteMessage(textMessage, msg); err != nil {
			break
		}
	}
}

func (m *Member) Send(env interface{}) bool {
	data, err := json.Marshal(env)
	if err != nil {
		return false
	}
	return m.enqueue(data)
}

// enqueue is fire-and-forget: a member whose queue is full or already
// closed simply misses the frame, delivery to everyone else is unaffected.
func (m *Member) enqueue(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.send <- data:
		return true
	default:
		return false
	}
}

// Close is idempotent; it may race with in-flight broadcasts.
func (m *Member) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.send)
	}
	m.mu.Unlock()
	_ = m.conn.Close()
}

// Room is a set of members plus the opaque content reference they share.
// It exists only while at least one member remains; the registry enforces
// that and owns all membership changes.
type Room struct {
	id        string
	createdAt time.Time

	mu         sync.RWMutex
	contentRef json.RawMessage
	members    map[string]*Member
}

// RoomStatus is the inspection snapshot exposed over HTTP.
type RoomStatus struct {
	RoomID     string          `json:"roomId"`
	ContentRef json.RawMessage `json:"contentRef"`
	Members    []string        `json:"members"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func newRoom(id string, contentRef json.RawMessage, now time.Time) *Room {
	return &Room{
		id:         id,
		createdAt:  now,
		contentRef: contentRef,
		members:    make(map[string]*Member),
	}
}

func (r *Room) attach(m *Member) {
	r.mu.Lock()
	r.members[m.id] = m
	r.mu.Unlock()
}

// detach reports whether the member was present.
func (r *Room) detach(memberID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[memberID]; !ok {
		return false
	}
	delete(r.members, memberID)
	return true
}

func (r *Room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *Room) setContent(contentRef json.RawMessage) {
	r.mu.Lock()
	r.contentRef = contentRef
	r.mu.Unlock()
}

func (r *Room) content() json.RawMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contentRef
}

// recipients resolves the fan-out set under the read lock only; the
// actual writes happen on each member's send loop, never under a lock.
// An empty exceptID selects every member.
func (r *Room) recipients(exceptID string) []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Member, 0, len(r.members))
	for id, m := range r.members {
		if exceptID != "" && id == exceptID {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *Room) status() RoomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return RoomStatus{
		RoomID:     r.id,
		ContentRef: r.contentRef,
		Members:    ids,
		CreatedAt:  r.createdAt,
	}
}
