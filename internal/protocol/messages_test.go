package protocol

import (
	"encoding/json"
	"math"
	"testing"
)

func TestValidTime(t *testing.T) {
	cases := []struct {
		name string
		time float64
		want bool
	}{
		{"zero", 0, true},
		{"position", 42.5, true},
		{"nan", math.NaN(), false},
		{"positive infinity", math.Inf(1), false},
		{"negative infinity", math.Inf(-1), false},
		{"negative", -1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidTime(tc.time); got != tc.want {
				t.Errorf("ValidTime(%v) = %v, want %v", tc.time, got, tc.want)
			}
		})
	}
}

func TestPlaybackPayloadRejectsNonNumericTime(t *testing.T) {
	var payload PlaybackPayload
	err := json.Unmarshal([]byte(`{"roomId":"room-1","currentTime":"not-a-number"}`), &payload)
	if err == nil {
		t.Fatal("non-numeric currentTime must not decode")
	}
}

func TestInboundEnvelopeKeepsPayloadOpaque(t *testing.T) {
	raw := []byte(`{"event":"createRoom","data":{"roomId":"room-1","contentRef":{"title":"Movie","seasons":[1,2]}}}`)
	var env InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if env.Event != EventCreateRoom {
		t.Errorf("event mismatch: %s", env.Event)
	}

	var payload CreateRoomPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	// The content reference passes through uninterpreted.
	if string(payload.ContentRef) != `{"title":"Movie","seasons":[1,2]}` {
		t.Errorf("contentRef mangled: %s", payload.ContentRef)
	}
}
