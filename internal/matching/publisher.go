package matching

import (
	"encoding/json"
	"fmt"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/messaging"
)

// Notifier delivers match.found events to a session's push subscribers.
type Notifier interface {
	PublishMatchFound(sessionID string, data []byte) error
}

// PublishMatchFound publishes the match to both participants via the
// session's match.found subject.
func PublishMatchFound(n Notifier, m *domain.Match) error {
	data, err := json.Marshal(messaging.MatchFoundEvent{Match: m})
	if err != nil {
		return fmt.Errorf("matching: marshal match.found: %w", err)
	}
	if err := n.PublishMatchFound(m.SessionID, data); err != nil {
		return fmt.Errorf("matching: publish match.found for %s: %w", m.SessionID, err)
	}
	return nil
}
