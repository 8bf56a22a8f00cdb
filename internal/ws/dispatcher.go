package ws

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/domain"
	"github.com/tastebuds/match-app/internal/protocol"
	"github.com/tastebuds/match-app/internal/swipe"
)

// SwipeRecorder records swipes sent over the socket.
type SwipeRecorder interface {
	RecordSwipe(ctx context.Context, sessionID, userID, restaurantID string, liked bool) (*swipe.Result, error)
}

// MessageHandler handles one parsed client message.
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes client frames by type. Ping is answered
// internally; parse failures and unknown types get an error message.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	logger   *zap.Logger
	timeout  time.Duration
}

// NewMessageDispatcher creates a dispatcher with the swipe handler
// registered. swipes may be nil to accept only pings.
func NewMessageDispatcher(swipes SwipeRecorder, logger *zap.Logger) *MessageDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		logger:   logger.Named("ws"),
		timeout:  5 * time.Second,
	}
	if swipes != nil {
		d.Register(protocol.TypeSwipe, d.swipeHandler(swipes))
	}
	return d
}

// Register associates a handler with a message type, replacing any
// previous one.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the server's onMessage callback.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		d.logger.Debug("dispatch parse error", zap.String("conn_id", conn.ID), zap.Error(err))
		d.send(conn, protocol.NewErrorMessage("parse_error", "invalid message format"))
		return
	}

	if msgType == protocol.TypePing {
		conn.touch()
		pong, _ := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
		d.send(conn, pong)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		d.send(conn, protocol.NewErrorMessage("unsupported_type", "unsupported message type"))
		return
	}
	handler(conn, msg)
}

// swipeHandler records the swipe for the connection's user and session and
// acknowledges it with swipe_recorded. The partner learns about the swipe
// only through a resulting match_found.
func (d *MessageDispatcher) swipeHandler(swipes SwipeRecorder) MessageHandler {
	return func(conn *Connection, msg interface{}) {
		m := msg.(protocol.SwipeMsg)

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		res, err := swipes.RecordSwipe(ctx, conn.SessionID, conn.UserID, m.RestaurantID, m.Liked)
		if err != nil {
			d.logger.Debug("swipe rejected",
				zap.String("conn_id", conn.ID),
				zap.String("restaurant_id", m.RestaurantID),
				zap.Error(err))
			d.send(conn, protocol.NewErrorMessage(domain.Code(err), err.Error()))
			return
		}

		ack, err := protocol.NewServerMessage(protocol.TypeSwipeRecorded, protocol.SwipeRecordedMsg{
			Swipe: res.Swipe,
			Match: res.Match,
		})
		if err != nil {
			d.logger.Error("build swipe ack", zap.Error(err))
			return
		}
		d.send(conn, ack)
	}
}

func (d *MessageDispatcher) send(conn *Connection, data []byte) {
	if err := conn.WriteMessage(data); err != nil {
		d.logger.Debug("write to connection", zap.String("conn_id", conn.ID), zap.Error(err))
	}
}
