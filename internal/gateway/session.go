// Package gateway holds the per-connection dispatch shared by the hertz
// and net/http websocket transports.
package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cinesync/internal/protocol"
	"cinesync/internal/rooms"
)

// Session owns one connection for its lifetime: it assigns the
// connection id, feeds inbound frames through the registry and reports
// errors only to the connection that caused them.
type Session struct {
	registry *rooms.Registry
	member   *rooms.Member
	log      *logrus.Entry
}

func NewSession(registry *rooms.Registry, conn rooms.Conn, remote string) *Session {
	id := uuid.NewString()
	return &Session{
		registry: registry,
		member:   rooms.NewMember(id, conn),
		log: logrus.WithFields(logrus.Fields{
			"member_id":     id,
			"member_remote": remote,
		}),
	}
}

func (s *Session) ID() string {
	return s.member.ID()
}

// Start launches the member's write pump.
func (s *Session) Start() {
	go s.member.SendLoop()
	s.log.Debug("connected")
}

// Close evicts the connection from its room immediately: no grace
// period, no reconnection window. Emptied rooms disappear with it.
func (s *Session) Close() {
	s.registry.Leave(s.member.ID())
	s.member.Close()
	s.log.Debug("disconnected")
}

// HandleMessage dispatches a single inbound frame.
func (s *Session) HandleMessage(data []byte) {
	var inbound protocol.InboundEnvelope
	if err := json.Unmarshal(data, &inbound); err != nil {
		s.log.WithField("verb", "envelope").WithError(err).Warn("undecodable frame")
		return
	}

	switch inbound.Event {
	case protocol.EventCreateRoom:
		s.handleCreateRoom(inbound.Data)
	case protocol.EventJoinRoom:
		s.handleJoinRoom(inbound.Data)
	case protocol.EventPlay:
		s.handlePlayback(protocol.EventPlay, inbound.Data)
	case protocol.EventPause:
		s.handlePlayback(protocol.EventPause, inbound.Data)
	case protocol.EventSeek:
		s.handleSeek(inbound.Data)
	case protocol.EventChangeEpisode:
		s.handleChangeEpisode(inbound.Data)
	case protocol.EventChangeSeason:
		s.handleChangeSeason(inbound.Data)
	case protocol.EventContentRef:
		s.handleSetContent(inbound.Data)
	default:
		s.sendError(protocol.CodeInvalidRequest, "unsupported event")
	}
}

func (s *Session) handleCreateRoom(data json.RawMessage) {
	verb := s.log.WithField("verb", protocol.EventCreateRoom)

	var payload protocol.CreateRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		verb.WithError(err).Warn("bad payload")
		s.sendError(protocol.CodeInvalidRequest, "invalid createRoom payload")
		return
	}
	if err := s.registry.CreateRoom(payload.RoomID, payload.ContentRef, s.member); err != nil {
		verb.WithError(err).Warn("rejected")
		s.sendError(protocol.CodeInvalidRequest, err.Error())
		return
	}

	// The creator gets the content reference back the same way every
	// later member does.
	s.broadcastContent(payload.RoomID, payload.ContentRef, verb)
	verb.WithField("room_id", payload.RoomID).Info("room created")
}

func (s *Session) handleJoinRoom(data json.RawMessage) {
	verb := s.log.WithField("verb", protocol.EventJoinRoom)

	var payload protocol.JoinRoomPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" {
		verb.Warn("room id is required")
		s.sendError(protocol.CodeInvalidRequest, "roomId is required")
		return
	}

	contentRef, err := s.registry.JoinRoom(payload.RoomID, s.member)
	if err != nil {
		verb.WithField("invalid_room_id", payload.RoomID).Warn("unknown room")
		s.sendError(protocol.CodeRoomNotFound, "room not found: "+payload.RoomID)
		return
	}

	s.member.Send(protocol.Envelope{
		Event: protocol.EventContentRef,
		Data:  protocol.ContentPayload{ContentRef: contentRef},
	})
	verb.WithField("room_id", payload.RoomID).Info("joined")
}

func (s *Session) handlePlayback(event string, data json.RawMessage) {
	verb := s.log.WithField("verb", event)

	var payload protocol.PlaybackPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		verb.WithError(err).Warn("bad payload")
		return
	}
	if payload.RoomID == "" {
		s.sendError(protocol.CodeInvalidRequest, "roomId is required")
		return
	}

	s.relay(payload.RoomID, protocol.Envelope{
		Event: event,
		Data:  protocol.PlaybackPayload{CurrentTime: payload.CurrentTime},
	}, verb)
}

// handleSeek is handlePlayback plus position validation: a non-numeric
// or non-finite currentTime is dropped here so it can never reach a
// member's player. Log-level concern only, no error event.
func (s *Session) handleSeek(data json.RawMessage) {
	verb := s.log.WithField("verb", protocol.EventSeek)

	var payload protocol.PlaybackPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		verb.WithError(err).Warn("malformed seek dropped")
		return
	}
	if payload.RoomID == "" {
		s.sendError(protocol.CodeInvalidRequest, "roomId is required")
		return
	}
	if !protocol.ValidTime(payload.CurrentTime) {
		verb.WithField("current_time", payload.CurrentTime).Warn("malformed seek dropped")
		return
	}

	s.relay(payload.RoomID, protocol.Envelope{
		Event: protocol.EventSeek,
		Data:  protocol.PlaybackPayload{CurrentTime: payload.CurrentTime},
	}, verb)
}

func (s *Session) handleChangeEpisode(data json.RawMessage) {
	verb := s.log.WithField("verb", protocol.EventChangeEpisode)

	var payload protocol.EpisodePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" || payload.Season <= 0 || payload.Episode <= 0 {
		verb.Warn("room id, season and episode are required")
		s.sendError(protocol.CodeInvalidRequest, "roomId, season and episode are required")
		return
	}

	s.relay(payload.RoomID, protocol.Envelope{
		Event: protocol.EventChangeEpisode,
		Data:  protocol.EpisodePayload{Season: payload.Season, Episode: payload.Episode},
	}, verb)
}

// A bare season change is broadcast-only and leaves the room's content
// reference alone; a mid-session joiner sees the stored reference, not
// the season switch. Content updates go through handleSetContent.
func (s *Session) handleChangeSeason(data json.RawMessage) {
	verb := s.log.WithField("verb", protocol.EventChangeSeason)

	var payload protocol.SeasonPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" || payload.Season <= 0 {
		verb.Warn("room id and season are required")
		s.sendError(protocol.CodeInvalidRequest, "roomId and season are required")
		return
	}

	s.relay(payload.RoomID, protocol.Envelope{
		Event: protocol.EventChangeSeason,
		Data:  protocol.SeasonPayload{Season: payload.Season},
	}, verb)
}

func (s *Session) handleSetContent(data json.RawMessage) {
	verb := s.log.WithField("verb", protocol.EventContentRef)

	var payload protocol.ContentPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == "" || len(payload.ContentRef) == 0 {
		verb.Warn("room id and content reference are required")
		s.sendError(protocol.CodeInvalidRequest, "roomId and contentRef are required")
		return
	}
	if err := s.registry.SetContent(payload.RoomID, payload.ContentRef); err != nil {
		verb.WithField("invalid_room_id", payload.RoomID).Warn("unknown room")
		s.sendError(protocol.CodeRoomNotFound, "room not found: "+payload.RoomID)
		return
	}

	s.broadcastContent(payload.RoomID, payload.ContentRef, verb)
	verb.WithField("room_id", payload.RoomID).Info("content updated")
}

// relay fans the event out to every other member of the room. An unknown
// room is reported to the sender only and is never fatal.
func (s *Session) relay(roomID string, env protocol.Envelope, verb *logrus.Entry) {
	delivered, err := s.registry.Broadcast(roomID, s.member.ID(), env)
	if err != nil {
		verb.WithField("invalid_room_id", roomID).Warn("unknown room")
		s.sendError(protocol.CodeRoomNotFound, "room not found: "+roomID)
		return
	}
	verb.WithFields(logrus.Fields{"room_id": roomID, "delivered": delivered}).Debug("relayed")
}

// broadcastContent addresses the whole room, sender included: content
// updates replace player state everywhere at once.
func (s *Session) broadcastContent(roomID string, contentRef json.RawMessage, verb *logrus.Entry) {
	delivered, err := s.registry.Broadcast(roomID, "", protocol.Envelope{
		Event: protocol.EventContentRef,
		Data:  protocol.ContentPayload{ContentRef: contentRef},
	})
	if err != nil {
		verb.WithField("invalid_room_id", roomID).Warn("unknown room")
		s.sendError(protocol.CodeRoomNotFound, "room not found: "+roomID)
		return
	}
	verb.WithFields(logrus.Fields{"room_id": roomID, "delivered": delivered}).Debug("content sent")
}

func (s *Session) sendError(code, message string) {
	s.member.Send(protocol.Envelope{
		Event: protocol.EventError,
		Data:  protocol.ErrorPayload{Code: code, Message: message},
	})
}
