package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"cinesync/internal/protocol"
	"cinesync/internal/rooms"
	"cinesync/internal/ws"
)

func newEngine(t *testing.T) (*rooms.Registry, *httptest.Server) {
	t.Helper()
	registry := rooms.NewRegistry()
	srv := httptest.NewServer(ws.NewHandler(registry))
	t.Cleanup(srv.Close)
	return registry, srv
}

func dialClient(t *testing.T, url string) (*Client, *fakePlayer) {
	t.Helper()
	player := &fakePlayer{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, player)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	player.rec = c.Reconciler()
	t.Cleanup(func() { c.Close() })
	return c, player
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestCreateJoinAndSync(t *testing.T) {
	_, srv := newEngine(t)
	ctx := context.Background()

	a, playerA := dialClient(t, srv.URL)
	if err := a.CreateRoom(ctx, "room-1", json.RawMessage(`{"title":"Movie"}`)); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	b, _ := dialClient(t, srv.URL)
	contentRef, err := b.JoinRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if string(contentRef) != `{"title":"Movie"}` {
		t.Errorf("joiner got wrong content: %s", contentRef)
	}

	// A presses play; B's player follows.
	a.Player().Play()
	eventually(t, func() bool { return b.State().IsPlaying }, "remote play never reached the joiner")

	// Loop suppression, end to end: if B had re-broadcast the play it
	// received, it would bounce back to A as a second play call.
	time.Sleep(200 * time.Millisecond)
	if got := playerA.count("play"); got != 1 {
		t.Errorf("expected exactly the local play on A's player, got %d", got)
	}
}

func TestRemoteEpisodeChange(t *testing.T) {
	_, srv := newEngine(t)
	ctx := context.Background()

	a, _ := dialClient(t, srv.URL)
	if err := a.CreateRoom(ctx, "room-1", json.RawMessage(`{"title":"Show"}`)); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	b, playerB := dialClient(t, srv.URL)
	if _, err := b.JoinRoom(ctx, "room-1"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	a.Player().SetEpisode(2, 5)
	eventually(t, func() bool {
		s := b.State()
		return s.SelectedSeason == 2 && s.SelectedEpisode == 5
	}, "episode change never reached the joiner")

	if got := playerB.count("episode 2/5"); got != 1 {
		t.Errorf("expected one episode switch on B's player, got %d", got)
	}
}

func TestJoinUnknownRoomFails(t *testing.T) {
	_, srv := newEngine(t)

	c, _ := dialClient(t, srv.URL)
	_, err := c.JoinRoom(context.Background(), "ghost-room")

	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if serverErr.Code != "room_not_found" {
		t.Errorf("expected room_not_found, got %s", serverErr.Code)
	}
	if c.InRoom() {
		t.Error("client must stay idle after a failed join")
	}
}

func TestDisconnectLeavesRoom(t *testing.T) {
	registry, srv := newEngine(t)
	ctx := context.Background()

	a, _ := dialClient(t, srv.URL)
	if err := a.CreateRoom(ctx, "room-1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	b, _ := dialClient(t, srv.URL)
	if _, err := b.JoinRoom(ctx, "room-1"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	b.Close()
	eventually(t, func() bool {
		status, err := registry.Snapshot("room-1")
		return err == nil && len(status.Members) == 1
	}, "departed member was not pruned")

	a.Close()
	eventually(t, func() bool { return !registry.HasRoom("room-1") }, "emptied room was not deleted")
	<-a.Done()
	if a.InRoom() {
		t.Error("client must be idle after its connection dropped")
	}
}

func TestContentUpdatePropagates(t *testing.T) {
	_, srv := newEngine(t)
	ctx := context.Background()

	a, _ := dialClient(t, srv.URL)
	if err := a.CreateRoom(ctx, "room-1", json.RawMessage(`{"episode":1}`)); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	b, _ := dialClient(t, srv.URL)
	if _, err := b.JoinRoom(ctx, "room-1"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}

	if err := a.SetContent(ctx, json.RawMessage(`{"episode":2}`)); err != nil {
		t.Fatalf("SetContent failed: %v", err)
	}

	eventually(t, func() bool {
		return string(b.ContentRef()) == `{"episode":2}`
	}, "content update never reached the joiner")
}

// Local player calls hold the client mutex while emitting, so an
// emitted frame is bounded by the write timeout instead of waiting on
// the server forever.
func TestEmitHonorsWriteTimeout(t *testing.T) {
	_, srv := newEngine(t)
	ctx := context.Background()

	a, _ := dialClient(t, srv.URL)
	if err := a.CreateRoom(ctx, "room-1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}

	a.writeTimeout = time.Nanosecond

	done := make(chan error, 1)
	go func() {
		done <- a.emit(protocol.EventPlay, protocol.PlaybackPayload{RoomID: "room-1", CurrentTime: 1})
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expired write deadline should surface an error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("emit never returned under an expired deadline")
	}
}
