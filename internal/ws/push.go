package ws

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tastebuds/match-app/internal/messaging"
	"github.com/tastebuds/match-app/internal/protocol"
)

// pushFromEvent maps a NATS session event to the push message sent to
// clients.
func pushFromEvent(subject string, data []byte) ([]byte, error) {
	switch {
	case strings.HasPrefix(subject, messaging.SubjectSessionUpdate+"."):
		var ev messaging.SessionUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("ws: decode session update: %w", err)
		}
		if ev.JoinedBy != "" {
			return protocol.NewServerMessage(protocol.TypeSessionJoined, protocol.SessionJoinedMsg{
				Session:  ev.Session,
				JoinedBy: ev.JoinedBy,
			})
		}
		return protocol.NewServerMessage(protocol.TypeSessionUpdated, protocol.SessionUpdatedMsg{Session: ev.Session})

	case strings.HasPrefix(subject, messaging.SubjectMatchFound+"."):
		var ev messaging.MatchFoundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("ws: decode match found: %w", err)
		}
		return protocol.NewServerMessage(protocol.TypeMatchFound, protocol.MatchFoundMsg{Match: ev.Match})

	default:
		return nil, fmt.Errorf("ws: unexpected subject %q", subject)
	}
}
