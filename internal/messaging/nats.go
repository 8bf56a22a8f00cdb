// Package messaging provides a NATS client wrapper for pub/sub messaging
// across the matching services. It handles connection lifecycle, subject-based
// subscriptions, and convenience methods for the per-session push channels.
package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS subject patterns.
const (
	SubjectSessionUpdate = "session.update" // + .<session_id>
	SubjectMatchFound    = "match.found"    // + .<session_id>
	SubjectSwipeRecorded = "swipe.recorded"

	// QueueMatcher load-balances swipe.recorded across matcher instances.
	QueueMatcher = "matcher"
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn   *nats.Conn
	logger *zap.Logger
	mu     sync.Mutex
	subs   map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "tastebuds",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, logger *zap.Logger) (*NATSClient, error) {
	logger = logger.Named("nats")
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logger.Info("connected", zap.String("url", nc.ConnectedUrl()))

	return &NATSClient{
		conn:   nc,
		logger: logger,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for subject under the given key and stores
// the subscription for later cleanup. Keys let several local consumers share
// one subject without overwriting each other.
func (c *NATSClient) Subscribe(key, subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	c.track(key, sub)
	return nil
}

// QueueSubscribe is Subscribe with a queue group.
func (c *NATSClient) QueueSubscribe(key, subject, queue string, handler func(data []byte)) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats queue subscribe %s: %w", subject, err)
	}
	c.track(key, sub)
	return nil
}

// Unsubscribe removes the subscription stored under key.
func (c *NATSClient) Unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for key %s", key)
	}
	delete(c.subs, key)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}

// PublishSessionUpdate publishes to session.update.<sessionID>.
func (c *NATSClient) PublishSessionUpdate(sessionID string, data []byte) error {
	return c.Publish(SubjectSessionUpdate+"."+sessionID, data)
}

// PublishMatchFound publishes to match.found.<sessionID>.
func (c *NATSClient) PublishMatchFound(sessionID string, data []byte) error {
	return c.Publish(SubjectMatchFound+"."+sessionID, data)
}

// PublishSwipeRecorded publishes to swipe.recorded.
func (c *NATSClient) PublishSwipeRecorded(data []byte) error {
	return c.Publish(SubjectSwipeRecorded, data)
}

// SubscribeSession subscribes one local consumer (identified by key) to both
// push subjects of a session.
func (c *NATSClient) SubscribeSession(key, sessionID string, handler func(subject string, data []byte)) error {
	for _, subject := range []string{
		SubjectSessionUpdate + "." + sessionID,
		SubjectMatchFound + "." + sessionID,
	} {
		subject := subject
		if err := c.Subscribe(key+"|"+subject, subject, func(data []byte) {
			handler(subject, data)
		}); err != nil {
			c.UnsubscribeSession(key, sessionID)
			return err
		}
	}
	return nil
}

// UnsubscribeSession removes the subscriptions created by SubscribeSession.
func (c *NATSClient) UnsubscribeSession(key, sessionID string) {
	for _, subject := range []string{
		SubjectSessionUpdate + "." + sessionID,
		SubjectMatchFound + "." + sessionID,
	} {
		_ = c.Unsubscribe(key + "|" + subject)
	}
}

// SubscribeSwipeRecorded joins the matcher queue group on swipe.recorded.
func (c *NATSClient) SubscribeSwipeRecorded(handler func(data []byte)) error {
	return c.QueueSubscribe(SubjectSwipeRecorded, SubjectSwipeRecorded, QueueMatcher, handler)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("drain subscription", zap.String("key", key), zap.Error(err))
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("connection drain", zap.Error(err))
	}

	c.logger.Info("client closed")
}

func (c *NATSClient) track(key string, sub *nats.Subscription) {
	c.mu.Lock()
	if old, ok := c.subs[key]; ok {
		_ = old.Unsubscribe()
	}
	c.subs[key] = sub
	c.mu.Unlock()
}
