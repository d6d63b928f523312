package protocol

import (
	"encoding/json"
	"math"
)

// Event names carried in the envelope of every frame on the
// synchronization channel.
const (
	EventCreateRoom    = "createRoom"
	EventJoinRoom      = "joinRoom"
	EventPlay          = "play"
	EventPause         = "pause"
	EventSeek          = "seek"
	EventChangeEpisode = "changeEpisode"
	EventChangeSeason  = "changeSeason"
	EventContentRef    = "contentRef"
	EventError         = "error"
)

// Error codes carried by ErrorPayload.
const (
	CodeInvalidRequest   = "invalid_request"
	CodeRoomNotFound     = "room_not_found"
	CodeMalformedPayload = "malformed_payload"
)

type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type InboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type CreateRoomPayload struct {
	RoomID     string          `json:"roomId"`
	ContentRef json.RawMessage `json:"contentRef"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// PlaybackPayload serves play, pause and seek. RoomID is set on the
// client->server leg and stripped before the event is fanned out.
type PlaybackPayload struct {
	RoomID      string  `json:"roomId,omitempty"`
	CurrentTime float64 `json:"currentTime"`
}

type EpisodePayload struct {
	RoomID  string `json:"roomId,omitempty"`
	Season  int    `json:"season"`
	Episode int    `json:"episode"`
}

type SeasonPayload struct {
	RoomID string `json:"roomId,omitempty"`
	Season int    `json:"season"`
}

// ContentPayload carries the opaque content reference, both as the join
// reply and as an explicit mid-session content update.
type ContentPayload struct {
	RoomID     string          `json:"roomId,omitempty"`
	ContentRef json.RawMessage `json:"contentRef"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidTime reports whether a playback position may be applied to a
// player. Positions must be finite and non-negative.
func ValidTime(t float64) bool {
	return !math.IsNaN(t) && !math.IsInf(t, 0) && t >= 0
}
