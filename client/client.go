// Package client implements the viewer side of the synchronization
// channel: a websocket connection plus the playback reconciler that
// keeps the local player in step with the room without echoing remote
// events back.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"cinesync/internal/protocol"
)

// ServerError is an error event the server addressed to this connection.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// Client owns one connection and one reconciler. The reconciler itself
// is single-threaded; Client serializes the listen goroutine and local
// player actions behind one mutex, so use Player() for local control
// rather than reaching the wrapped player directly.
type Client struct {
	conn *websocket.Conn
	rec  *Reconciler

	// OnError, when set before CreateRoom/JoinRoom, receives error
	// events that arrive outside a request/reply exchange.
	OnError func(ServerError)

	mu      sync.Mutex
	content json.RawMessage
	done    chan struct{}

	// writeTimeout bounds each emitted frame. Local player calls hold
	// the client mutex while emitting, so a stalled server write must
	// not be allowed to block them forever.
	writeTimeout time.Duration
}

const defaultWriteTimeout = 5 * time.Second

// Dial connects to the engine at baseURL (http/https scheme) without
// joining anything: the client starts Idle.
func Dial(ctx context.Context, baseURL string, player Player) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	scheme := "ws"
	if parsed.Scheme == "https" {
		scheme = "wss"
	}
	target := url.URL{Scheme: scheme, Host: parsed.Host, Path: "/ws"}

	conn, _, err := websocket.Dial(ctx, target.String(), nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:         conn,
		done:         make(chan struct{}),
		writeTimeout: defaultWriteTimeout,
	}
	c.rec = NewReconciler(player, EmitterFunc(c.emit))
	return c, nil
}

// CreateRoom registers a room under roomID with the given content
// reference and waits for the server's reply.
func (c *Client) CreateRoom(ctx context.Context, roomID string, contentRef json.RawMessage) error {
	if err := wsjson.Write(ctx, c.conn, protocol.Envelope{
		Event: protocol.EventCreateRoom,
		Data:  protocol.CreateRoomPayload{RoomID: roomID, ContentRef: contentRef},
	}); err != nil {
		return err
	}
	_, err := c.awaitContent(ctx, roomID)
	return err
}

// JoinRoom joins an existing room and returns its content reference so
// the player can be initialized before any control event arrives.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (json.RawMessage, error) {
	if err := wsjson.Write(ctx, c.conn, protocol.Envelope{
		Event: protocol.EventJoinRoom,
		Data:  protocol.JoinRoomPayload{RoomID: roomID},
	}); err != nil {
		return nil, err
	}
	return c.awaitContent(ctx, roomID)
}

// awaitContent reads the single contentRef-or-error reply to a create or
// join, then hands the connection to the listen loop.
func (c *Client) awaitContent(ctx context.Context, roomID string) (json.RawMessage, error) {
	var inbound protocol.InboundEnvelope
	if err := wsjson.Read(ctx, c.conn, &inbound); err != nil {
		return nil, err
	}

	switch inbound.Event {
	case protocol.EventContentRef:
		var payload protocol.ContentPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.content = payload.ContentRef
		c.rec.Joined(roomID)
		c.mu.Unlock()
		go c.listen()
		return payload.ContentRef, nil

	case protocol.EventError:
		var payload protocol.ErrorPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil {
			return nil, err
		}
		return nil, &ServerError{Code: payload.Code, Message: payload.Message}

	default:
		return nil, errors.New("unexpected reply: " + inbound.Event)
	}
}

func (c *Client) listen() {
	defer close(c.done)
	for {
		var inbound protocol.InboundEnvelope
		if err := wsjson.Read(context.Background(), c.conn, &inbound); err != nil {
			c.mu.Lock()
			c.rec.Left()
			c.mu.Unlock()
			return
		}

		switch inbound.Event {
		case protocol.EventContentRef:
			var payload protocol.ContentPayload
			if err := json.Unmarshal(inbound.Data, &payload); err != nil {
				continue
			}
			c.mu.Lock()
			c.content = payload.ContentRef
			c.mu.Unlock()

		case protocol.EventError:
			var payload protocol.ErrorPayload
			if err := json.Unmarshal(inbound.Data, &payload); err != nil {
				continue
			}
			if c.OnError != nil {
				c.OnError(ServerError{Code: payload.Code, Message: payload.Message})
			}

		default:
			c.mu.Lock()
			// Malformed remote events are a log-level concern at most;
			// the player is left untouched either way.
			_ = c.rec.ApplyRemote(inbound.Event, inbound.Data)
			c.mu.Unlock()
		}
	}
}

func (c *Client) emit(event string, payload interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, protocol.Envelope{Event: event, Data: payload})
}

// SetContent replaces the room's content reference for every member,
// this client included; the server broadcasts the update back.
func (c *Client) SetContent(ctx context.Context, contentRef json.RawMessage) error {
	c.mu.Lock()
	roomID := c.rec.RoomID()
	c.mu.Unlock()
	if roomID == "" {
		return errors.New("not in a room")
	}
	return wsjson.Write(ctx, c.conn, protocol.Envelope{
		Event: protocol.EventContentRef,
		Data:  protocol.ContentPayload{RoomID: roomID, ContentRef: contentRef},
	})
}

// Player returns the local control surface. Calls are serialized with
// the listen loop before being forwarded to the wrapped player.
func (c *Client) Player() Player {
	return &lockedPlayer{c: c}
}

// Reconciler exposes the state machine so the player implementation can
// report its change notifications. Call Notify only from within a player
// method, which runs with the client's serialization already in place.
func (c *Client) Reconciler() *Reconciler {
	return c.rec
}

// ContentRef returns the room's last received content reference.
func (c *Client) ContentRef() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.Snapshot()
}

func (c *Client) InRoom() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.InRoom()
}

// Done is closed when the connection is gone. Rejoining needs a fresh
// Dial; room membership is keyed by connection identifier, which this
// client no longer holds.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close leaves the room by dropping the connection; the server evicts
// this member immediately.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "leaving")
}

type lockedPlayer struct {
	c *Client
}

func (p *lockedPlayer) Play() {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.rec.player.Play()
}

func (p *lockedPlayer) Pause() {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.rec.player.Pause()
}

func (p *lockedPlayer) SeekTo(seconds float64) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.rec.player.SeekTo(seconds)
}

func (p *lockedPlayer) SetEpisode(season, episode int) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.rec.player.SetEpisode(season, episode)
}

func (p *lockedPlayer) SetSeason(season int) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.rec.player.SetSeason(season)
}
