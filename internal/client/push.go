package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/protocol"
)

// PushStream receives server pushes for one session.
type PushStream struct {
	url    string
	logger *zap.Logger
}

// NewPushStream targets the /ws endpoint of the API at baseURL.
func NewPushStream(baseURL, token, sessionID string, logger *zap.Logger) (*PushStream, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return nil, fmt.Errorf("client: push url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("token", token)
	u.RawQuery = q.Encode()

	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushStream{url: u.String(), logger: logger.Named("push")}, nil
}

// Run connects and calls onEvent with the type of every push until ctx
// ends or the connection drops. Protocol pings are answered while reading.
func (p *PushStream) Run(ctx context.Context, onEvent func(msgType string, msg interface{})) error {
	conn, _, _, err := ws.Dial(ctx, p.url)
	if err != nil {
		return fmt.Errorf("client: dial push: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("client: read push: %w", err)
		}
		msgType, msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			p.logger.Debug("ignoring push", zap.Error(err))
			continue
		}
		onEvent(msgType, msg)
	}
}

// WakeOn returns an onEvent callback that wakes loop on events that can
// change what the loop shows.
func WakeOn(loop *Loop) func(string, interface{}) {
	return func(msgType string, _ interface{}) {
		switch msgType {
		case protocol.TypeSessionJoined, protocol.TypeMatchFound, protocol.TypeSessionUpdated:
			loop.Wake()
		}
	}
}
