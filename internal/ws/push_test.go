package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/messaging"
	"github.com/tastebuds/match-app/internal/protocol"
)

func TestPushFromEvent(t *testing.T) {
	sess := &domain.Session{ID: "s1", Code: "ABC234", ParticipantIDs: []string{"a", "b"}, Status: domain.StatusActive}

	joined, _ := json.Marshal(messaging.SessionUpdateEvent{Session: sess, JoinedBy: "b"})
	completed, _ := json.Marshal(messaging.SessionUpdateEvent{Session: sess})
	match, _ := json.Marshal(messaging.MatchFoundEvent{Match: &domain.Match{ID: "m1", SessionID: "s1", RestaurantID: "r1"}})

	tests := []struct {
		name     string
		subject  string
		data     []byte
		wantType string
	}{
		{"join", messaging.SubjectSessionUpdate + ".s1", joined, protocol.TypeSessionJoined},
		{"other update", messaging.SubjectSessionUpdate + ".s1", completed, protocol.TypeSessionUpdated},
		{"match", messaging.SubjectMatchFound + ".s1", match, protocol.TypeMatchFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := pushFromEvent(tt.subject, tt.data)
			require.NoError(t, err)

			msgType, _, err := protocol.ParseServerMessage(out)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msgType)
		})
	}

	_, err := pushFromEvent("swipe.recorded", match)
	assert.Error(t, err)

	_, err = pushFromEvent(messaging.SubjectMatchFound+".s1", []byte("{"))
	assert.Error(t, err)
}
