package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/messaging"
	"github.com/tastebuds/match-app/internal/protocol"
)

type tokenAuth map[string]string

func (a tokenAuth) Verify(token string) (string, error) {
	if user, ok := a[token]; ok {
		return user, nil
	}
	return "", domain.ErrUnauthenticated
}

type staticSessions map[string]*domain.Session

func (s staticSessions) GetSession(_ context.Context, id string) (*domain.Session, error) {
	if sess, ok := s[id]; ok {
		return sess, nil
	}
	return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
}

type fakeSubscriber struct {
	mu           sync.Mutex
	handlers     map[string]func(subject string, data []byte)
	unsubscribed []string
	fail         bool
}

func (f *fakeSubscriber) SubscribeSession(_ string, sessionID string, handler func(subject string, data []byte)) error {
	if f.fail {
		return errors.New("nats down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[sessionID] = handler
	return nil
}

func (f *fakeSubscriber) UnsubscribeSession(_ string, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, sessionID)
	f.unsubscribed = append(f.unsubscribed, sessionID)
}

func (f *fakeSubscriber) handler(sessionID string) func(string, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[sessionID]
}

func newTestServer(t *testing.T, sub *fakeSubscriber) (*Server, *httptest.Server) {
	t.Helper()
	sessions := staticSessions{
		"s1": {ID: "s1", ParticipantIDs: []string{"userA", "userB"}, Status: domain.StatusActive},
	}
	cfg := DefaultServerConfig()
	cfg.WorkerPoolSize = 4
	cfg.ReadTimeout = time.Second

	srv := NewServer(cfg, Deps{
		Auth:       tokenAuth{"tok-a": "userA", "tok-c": "userC"},
		Sessions:   sessions,
		Subscriber: sub,
	}, nil)
	srv.SetOnMessage(NewMessageDispatcher(nil, nil).Dispatch)
	require.NoError(t, srv.Start())

	ts := httptest.NewServer(http.HandlerFunc(srv.HandleUpgrade))
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return srv, ts
}

func TestServer_UpgradeRejections(t *testing.T) {
	sub := &fakeSubscriber{handlers: map[string]func(string, []byte){}}
	srv, _ := newTestServer(t, sub)

	tests := []struct {
		name   string
		query  string
		header string
		want   int
	}{
		{"no token", "session_id=s1", "", http.StatusUnauthorized},
		{"bad token", "session_id=s1&token=nope", "", http.StatusUnauthorized},
		{"no session", "token=tok-a", "", http.StatusBadRequest},
		{"unknown session", "session_id=zz&token=tok-a", "", http.StatusNotFound},
		{"not a participant", "session_id=s1&token=tok-c", "", http.StatusForbidden},
		{"header token, not a participant", "session_id=s1", "Bearer tok-c", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws?"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.HandleUpgrade(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Zero(t, srv.Connections().Count())
}

func TestServer_PushLifecycle(t *testing.T) {
	sub := &fakeSubscriber{handlers: map[string]func(string, []byte){}}
	srv, ts := newTestServer(t, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session_id=s1&token=tok-a"
	conn, _, _, err := ws.Dial(ctx, url)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.Eventually(t, func() bool { return sub.handler("s1") != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, srv.Connections().Count())

	// Client ping is answered through the worker pool.
	require.NoError(t, wsutil.WriteClientText(conn, []byte(`{"type":"ping"}`)))
	data, err := wsutil.ReadServerText(conn)
	require.NoError(t, err)
	msgType, _, err := protocol.ParseServerMessage(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypePong, msgType)

	// A session event fans out to the connection.
	event, _ := json.Marshal(messaging.MatchFoundEvent{Match: &domain.Match{ID: "m1", SessionID: "s1", RestaurantID: "r1"}})
	sub.handler("s1")(messaging.SubjectMatchFound+".s1", event)
	data, err = wsutil.ReadServerText(conn)
	require.NoError(t, err)
	msgType, msg, err := protocol.ParseServerMessage(data)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeMatchFound, msgType)
	assert.Equal(t, "m1", msg.(protocol.MatchFoundMsg).Match.ID)

	// Closing the last connection drops the session subscription.
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return srv.Connections().Count() == 0 }, 3*time.Second, 10*time.Millisecond)
	sub.mu.Lock()
	assert.Equal(t, []string{"s1"}, sub.unsubscribed)
	sub.mu.Unlock()
}

func TestServer_ControlFramePayloadIsConsumed(t *testing.T) {
	sub := &fakeSubscriber{handlers: map[string]func(string, []byte){}}
	_, ts := newTestServer(t, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session_id=s1&token=tok-a"
	conn, _, _, err := ws.Dial(ctx, url)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	ping := ws.MaskFrameInPlace(ws.NewPingFrame([]byte("are-you-there")))
	require.NoError(t, ws.WriteFrame(conn, ping))

	frame, err := ws.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, ws.OpPong, frame.Header.OpCode)
	assert.Equal(t, "are-you-there", string(frame.Payload))

	// The next data frame is parsed from its own header.
	require.NoError(t, wsutil.WriteClientText(conn, []byte(`{"type":"ping"}`)))
	data, err := wsutil.ReadServerText(conn)
	require.NoError(t, err)
	msgType, _, err := protocol.ParseServerMessage(data)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypePong, msgType)
}

func TestServer_SubscribeFailureClosesConnection(t *testing.T) {
	sub := &fakeSubscriber{handlers: map[string]func(string, []byte){}, fail: true}
	srv, ts := newTestServer(t, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?session_id=s1&token=tok-a")
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = wsutil.ReadServerText(conn)
	assert.Error(t, err, "server closed the socket")
	assert.Zero(t, srv.Connections().Count())
}

func TestCheckConnections_EvictsIdle(t *testing.T) {
	srv := NewServer(DefaultServerConfig(), Deps{}, nil)
	idle := pipeConn(t, "idle", "s1", "userA")
	idle.lastActive.Store(time.Now().Add(-time.Hour).UnixNano())
	srv.conns.Add(idle)

	checkConnections(srv, DefaultHeartbeatConfig(), time.Now())
	assert.Zero(t, srv.Connections().Count())
}
