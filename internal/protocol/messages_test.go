package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tastebuds/match-app/internal/domain"
)

// ---------------------------------------------------------------------------
// Client messages
// ---------------------------------------------------------------------------

func TestParseClientMessage_Swipe(t *testing.T) {
	input := []byte(`{"type":"swipe","restaurantId":"r-sakura","liked":true}`)

	msgType, msg, err := ParseClientMessage(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeSwipe {
		t.Fatalf("expected type %q, got %q", TypeSwipe, msgType)
	}

	sm, ok := msg.(SwipeMsg)
	if !ok {
		t.Fatalf("expected SwipeMsg, got %T", msg)
	}
	if sm.RestaurantID != "r-sakura" || !sm.Liked {
		t.Errorf("unexpected swipe: %+v", sm)
	}
}

func TestParseClientMessage_SwipeWithoutRestaurant(t *testing.T) {
	_, _, err := ParseClientMessage([]byte(`{"type":"swipe","liked":false}`))
	if err == nil {
		t.Fatal("expected error for swipe without restaurantId")
	}
}

func TestParseClientMessage_Ping(t *testing.T) {
	msgType, msg, err := ParseClientMessage([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypePing {
		t.Fatalf("expected type %q, got %q", TypePing, msgType)
	}
	if _, ok := msg.(PingMsg); !ok {
		t.Fatalf("expected PingMsg, got %T", msg)
	}
}

func TestParseClientMessage_Invalid(t *testing.T) {
	cases := map[string]string{
		"not json":     `{"type":`,
		"missing type": `{"restaurantId":"r-1"}`,
		"empty type":   `{"type":""}`,
		"unknown type": `{"type":"teleport"}`,
		"server type":  `{"type":"match_found"}`,
		"bad payload":  `{"type":"swipe","restaurantId":7}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := ParseClientMessage([]byte(input)); err == nil {
				t.Fatalf("expected error for %s", input)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Server messages
// ---------------------------------------------------------------------------

func TestNewServerMessage_MatchFound(t *testing.T) {
	m := &domain.Match{
		ID:           "m-1",
		SessionID:    "s-1",
		RestaurantID: "r-sakura",
		User1ID:      "a",
		User2ID:      "b",
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := NewServerMessage(TypeMatchFound, MatchFoundMsg{Match: m})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if raw["type"] != TypeMatchFound {
		t.Errorf("expected type %q, got %v", TypeMatchFound, raw["type"])
	}

	msgType, msg, err := ParseServerMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeMatchFound {
		t.Fatalf("expected type %q, got %q", TypeMatchFound, msgType)
	}
	got := msg.(MatchFoundMsg)
	if got.Match == nil || got.Match.ID != "m-1" || got.Match.RestaurantID != "r-sakura" {
		t.Errorf("unexpected match: %+v", got.Match)
	}
}

func TestNewServerMessage_SessionJoined(t *testing.T) {
	sess := &domain.Session{ID: "s-1", Code: "ABC123", ParticipantIDs: []string{"a", "b"}, Status: domain.StatusActive}

	data, err := NewServerMessage(TypeSessionJoined, SessionJoinedMsg{Session: sess, JoinedBy: "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, msg, err := ParseServerMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := msg.(SessionJoinedMsg)
	if got.JoinedBy != "b" || got.Session.Code != "ABC123" || len(got.Session.ParticipantIDs) != 2 {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestNewErrorMessage(t *testing.T) {
	data := NewErrorMessage("forbidden", "not a participant")

	msgType, msg, err := ParseServerMessage(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != TypeError {
		t.Fatalf("expected type %q, got %q", TypeError, msgType)
	}
	em := msg.(ErrorMsg)
	if em.Code != "forbidden" || em.Message != "not a participant" {
		t.Errorf("unexpected error message: %+v", em)
	}
}

func TestParseServerMessage_Unknown(t *testing.T) {
	if _, _, err := ParseServerMessage([]byte(`{"type":"swipe"}`)); err == nil {
		t.Fatal("expected error for client-only type")
	}
}
