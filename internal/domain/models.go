package domain

import (
	"slices"
	"time"
)

// MaxParticipants is the number of users a matching session admits.
const MaxParticipants = 2

// SessionStatus is the lifecycle state of a matching session.
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

// Filters narrows the catalog a session draws its candidates from. Empty
// fields do not filter.
type Filters struct {
	Category   string `json:"category,omitempty"`
	PriceRange string `json:"priceRange,omitempty"`
}

// Session is a two-participant matching round over a fixed candidate list.
type Session struct {
	ID             string        `json:"id"`
	Code           string        `json:"sessionCode"`
	Filters        Filters       `json:"filters"`
	CandidateIDs   []string      `json:"candidateIds"`
	ParticipantIDs []string      `json:"participantIds"`
	Status         SessionStatus `json:"status"`
	CreatedBy      string        `json:"createdBy"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// IsParticipant reports whether userID has joined the session.
func (s *Session) IsParticipant(userID string) bool {
	return slices.Contains(s.ParticipantIDs, userID)
}

// IsFull reports whether no further participant can join.
func (s *Session) IsFull() bool {
	return len(s.ParticipantIDs) >= MaxParticipants
}

// HasCandidate reports whether restaurantID belongs to the candidate list.
func (s *Session) HasCandidate(restaurantID string) bool {
	return slices.Contains(s.CandidateIDs, restaurantID)
}

// Partner returns the other participant, or "" if there is none yet.
func (s *Session) Partner(userID string) string {
	for _, p := range s.ParticipantIDs {
		if p != userID {
			return p
		}
	}
	return ""
}

// Swipe is one participant's decision on one candidate.
type Swipe struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	RestaurantID string    `json:"restaurantId"`
	Liked        bool      `json:"liked"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Match records that both participants liked the same candidate.
// User1ID sorts before User2ID.
type Match struct {
	ID           string    `json:"id" db:"id"`
	SessionID    string    `json:"sessionId" db:"session_id"`
	RestaurantID string    `json:"restaurantId" db:"restaurant_id"`
	User1ID      string    `json:"user1Id" db:"user1_id"`
	User2ID      string    `json:"user2Id" db:"user2_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// Restaurant is a catalog record as exposed by the catalog service.
type Restaurant struct {
	ID          string  `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Category    string  `json:"category" db:"category"`
	PriceRange  string  `json:"priceRange" db:"price_range"`
	ImageURL    string  `json:"imageUrl" db:"image_url"`
	Rating      float64 `json:"rating" db:"rating"`
	Description string  `json:"description" db:"description"`
}
