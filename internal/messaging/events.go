package messaging

import (
	"time"

	"github.com/tastebuds/match-app/internal/domain"
)

// SessionUpdateEvent is published on session.update.<session_id> whenever
// the participant list or status changes.
type SessionUpdateEvent struct {
	Session  *domain.Session `json:"session"`
	JoinedBy string          `json:"joinedBy,omitempty"`
}

// MatchFoundEvent is published on match.found.<session_id> when the
// detector creates a match.
type MatchFoundEvent struct {
	Match *domain.Match `json:"match"`
}

// SwipeRecordedEvent is published on swipe.recorded after every swipe. The
// matcher consumes it to re-run detection.
type SwipeRecordedEvent struct {
	SwipeID      string    `json:"swipeId"`
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	RestaurantID string    `json:"restaurantId"`
	Liked        bool      `json:"liked"`
	RecordedAt   time.Time `json:"recordedAt"`
}
