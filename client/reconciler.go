package client

import (
	"encoding/json"
	"errors"

	"cinesync/internal/protocol"
)

// Origin tags a player state change with what caused it. The reconciler
// arms the tag with RemoteOrigin immediately before applying a remote
// event and consumes it exactly once when the player's change
// notification fires, so an applied remote event is never re-broadcast
// and a genuine local action always is.
type Origin int

const (
	LocalOrigin Origin = iota
	RemoteOrigin
)

// ErrMalformedEvent marks a remote event the reconciler refused to apply.
var ErrMalformedEvent = errors.New("malformed playback event")

// Player is the local playback surface the reconciler drives. Every
// method must report the resulting state change back through
// Reconciler.Notify before it returns, the way a media element fires its
// change events; that notification is where the origin tag is consumed.
type Player interface {
	Play()
	Pause()
	SeekTo(seconds float64)
	SetEpisode(season, episode int)
	SetSeason(season int)
}

type ChangeKind int

const (
	ChangePlay ChangeKind = iota
	ChangePause
	ChangeSeek
	ChangeEpisode
	ChangeSeason
)

// Change describes one player state change, whatever caused it.
type Change struct {
	Kind    ChangeKind
	Time    float64
	Season  int
	Episode int
}

// State mirrors the last known local playback state. It is per client
// and never shared.
type State struct {
	IsPlaying       bool
	CurrentTime     float64
	SelectedSeason  int
	SelectedEpisode int
}

// Emitter receives the events the reconciler decides must reach the room.
type Emitter interface {
	Emit(event string, payload interface{}) error
}

type EmitterFunc func(event string, payload interface{}) error

func (f EmitterFunc) Emit(event string, payload interface{}) error {
	return f(event, payload)
}

// Reconciler is the per-client state machine between the room and the
// local player. It is single-threaded: the caller must deliver remote
// events and player notifications on one goroutine (Client serializes
// this for you), so the origin tag is the only synchronization needed.
type Reconciler struct {
	player  Player
	emitter Emitter
	roomID  string
	origin  Origin
	state   State
}

func NewReconciler(player Player, emitter Emitter) *Reconciler {
	return &Reconciler{
		player:  player,
		emitter: emitter,
		state:   State{SelectedSeason: 1, SelectedEpisode: 1},
	}
}

// Joined moves the reconciler from Idle to Member.
func (r *Reconciler) Joined(roomID string) {
	r.roomID = roomID
}

// Left returns to Idle. A reconnecting client gets a fresh connection
// id, so it must join again explicitly; nothing is resubscribed here.
func (r *Reconciler) Left() {
	r.roomID = ""
	r.origin = LocalOrigin
}

func (r *Reconciler) InRoom() bool {
	return r.roomID != ""
}

func (r *Reconciler) RoomID() string {
	return r.roomID
}

func (r *Reconciler) Snapshot() State {
	return r.state
}

// ApplyRemote applies one event received from the room to the local
// player. Malformed payloads are discarded without touching the player.
func (r *Reconciler) ApplyRemote(event string, data json.RawMessage) error {
	switch event {
	case protocol.EventPlay:
		r.applyRemote(func() { r.player.Play() })

	case protocol.EventPause:
		r.applyRemote(func() { r.player.Pause() })

	case protocol.EventSeek:
		var p protocol.PlaybackPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return ErrMalformedEvent
		}
		if !protocol.ValidTime(p.CurrentTime) {
			return ErrMalformedEvent
		}
		r.applyRemote(func() { r.player.SeekTo(p.CurrentTime) })

	case protocol.EventChangeEpisode:
		var p protocol.EpisodePayload
		if err := json.Unmarshal(data, &p); err != nil || p.Season <= 0 || p.Episode <= 0 {
			return ErrMalformedEvent
		}
		r.applyRemote(func() { r.player.SetEpisode(p.Season, p.Episode) })

	case protocol.EventChangeSeason:
		var p protocol.SeasonPayload
		if err := json.Unmarshal(data, &p); err != nil || p.Season <= 0 {
			return ErrMalformedEvent
		}
		r.applyRemote(func() { r.player.SetSeason(p.Season) })

	default:
		return ErrMalformedEvent
	}
	return nil
}

// applyRemote arms the origin tag, then lets the player act. The tag is
// cleared only inside Notify, after the player's own change notification
// has fired; clearing it any earlier would reopen the feedback loop.
func (r *Reconciler) applyRemote(apply func()) {
	r.origin = RemoteOrigin
	apply()
}

// Notify is the player's change notification. The origin tag is read
// and reset in one step so each tag value is consumed by exactly one
// transition: remote-caused changes update local state and stop here,
// local actions are emitted to the room.
func (r *Reconciler) Notify(change Change) {
	origin := r.origin
	r.origin = LocalOrigin

	r.track(change)

	if origin == RemoteOrigin {
		return
	}
	if r.roomID == "" {
		return
	}
	r.emit(change)
}

func (r *Reconciler) track(change Change) {
	switch change.Kind {
	case ChangePlay:
		r.state.IsPlaying = true
		r.state.CurrentTime = change.Time
	case ChangePause:
		r.state.IsPlaying = false
		r.state.CurrentTime = change.Time
	case ChangeSeek:
		r.state.CurrentTime = change.Time
	case ChangeEpisode:
		r.state.SelectedSeason = change.Season
		r.state.SelectedEpisode = change.Episode
	case ChangeSeason:
		r.state.SelectedSeason = change.Season
	}
}

func (r *Reconciler) emit(change Change) {
	switch change.Kind {
	case ChangePlay:
		_ = r.emitter.Emit(protocol.EventPlay, protocol.PlaybackPayload{RoomID: r.roomID, CurrentTime: change.Time})
	case ChangePause:
		_ = r.emitter.Emit(protocol.EventPause, protocol.PlaybackPayload{RoomID: r.roomID, CurrentTime: change.Time})
	case ChangeSeek:
		if !protocol.ValidTime(change.Time) {
			return
		}
		_ = r.emitter.Emit(protocol.EventSeek, protocol.PlaybackPayload{RoomID: r.roomID, CurrentTime: change.Time})
	case ChangeEpisode:
		_ = r.emitter.Emit(protocol.EventChangeEpisode, protocol.EpisodePayload{RoomID: r.roomID, Season: change.Season, Episode: change.Episode})
	case ChangeSeason:
		_ = r.emitter.Emit(protocol.EventChangeSeason, protocol.SeasonPayload{RoomID: r.roomID, Season: change.Season})
	}
}
