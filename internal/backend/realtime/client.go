// Package realtime implements the push-channel capability over a websocket
// carrying JSON envelopes. Each channel has at most one consumer, and the
// single read loop invokes handlers synchronously, so events arrive in wire
// order per channel.
//
// There is no reconnect: a dropped socket stops delivering until the next
// session start opens a fresh client, matching the session-scoped lifecycle
// of the subscriptions it carries.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"moutamayiz/pkg/moutamayiz"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
)

// commandType values are the client-to-server message types.
const (
	commandSubscribe   = "subscribe"
	commandUnsubscribe = "unsubscribe"
)

// command is one client-to-server control message.
type command struct {
	Type    string                   `json:"type"`
	Channel string                   `json:"channel"`
	Matches []moutamayiz.ChangeMatch `json:"matches,omitempty"`
	Ref     string                   `json:"ref"`
}

// envelope is the server-to-client wire format.
type envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Table   string          `json:"table"`
	Row     json.RawMessage `json:"row,omitempty"`
}

// Option mutates client configuration.
type Option func(*Client)

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is the websocket implementation of moutamayiz.Realtime.
type Client struct {
	logger *slog.Logger

	conn *websocket.Conn

	mu       sync.Mutex
	closed   bool
	handlers map[string]func(moutamayiz.ChangeEvent)

	readDone chan struct{}
}

// Dial connects to the realtime endpoint and starts the read loop. The
// apiKey authenticates the socket the same way it authenticates row queries.
func Dial(ctx context.Context, endpoint, apiKey string, options ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("dial realtime: empty endpoint")
	}

	header := http.Header{}
	if apiKey != "" {
		header.Set("apikey", apiKey)
		header.Set("Authorization", "Bearer "+apiKey)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial realtime %s: %w", endpoint, err)
	}

	client := &Client{
		logger:   slog.Default(),
		conn:     conn,
		handlers: make(map[string]func(moutamayiz.ChangeEvent)),
		readDone: make(chan struct{}),
	}
	for _, option := range options {
		option(client)
	}

	go client.readLoop()

	return client, nil
}

// Subscribe registers the single consumer for a channel and announces the
// interest set to the server.
func (c *Client) Subscribe(
	ctx context.Context,
	channel string,
	matches []moutamayiz.ChangeMatch,
	onEvent func(moutamayiz.ChangeEvent),
) (moutamayiz.Subscription, error) {
	if channel == "" {
		return nil, fmt.Errorf("subscribe realtime: empty channel")
	}
	if onEvent == nil {
		return nil, fmt.Errorf("subscribe realtime %s: nil handler", channel)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe realtime %s: %w", channel, moutamayiz.ErrSubscriptionClosed)
	}
	if _, taken := c.handlers[channel]; taken {
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe realtime %s: %w", channel, moutamayiz.ErrAlreadySubscribed)
	}
	c.handlers[channel] = onEvent
	c.mu.Unlock()

	if err := c.send(ctx, command{
		Type:    commandSubscribe,
		Channel: channel,
		Matches: matches,
		Ref:     uuid.NewString(),
	}); err != nil {
		c.dropHandler(channel)
		return nil, fmt.Errorf("subscribe realtime %s: %w", channel, err)
	}

	return &subscription{client: c, channel: channel}, nil
}

// Close tears the socket down and waits for the read loop to exit.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = make(map[string]func(moutamayiz.ChangeEvent))
	c.mu.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "session ended")

	select {
	case <-c.readDone:
	case <-ctx.Done():
		return fmt.Errorf("close realtime: %w", ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("close realtime: %w", err)
	}

	return nil
}

func (c *Client) readLoop() {
	defer close(c.readDone)

	for {
		_, payload, err := c.conn.Read(context.Background())
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				// A dropped channel stops delivering until the next
				// session-start resubscription.
				c.logger.Warn("realtime socket closed", "error", err)
			}
			return
		}

		var received envelope
		if err := json.Unmarshal(payload, &received); err != nil {
			c.logger.Warn("dropping undecodable realtime frame", "error", err)
			continue
		}
		c.deliver(received)
	}
}

func (c *Client) deliver(received envelope) {
	c.mu.Lock()
	handler := c.handlers[received.Channel]
	c.mu.Unlock()
	if handler == nil {
		return
	}

	var row moutamayiz.Record
	if len(received.Row) > 0 {
		if err := json.Unmarshal(received.Row, &row); err != nil {
			c.logger.Warn("dropping realtime event with undecodable row",
				"channel", received.Channel,
				"table", received.Table,
				"error", err,
			)
			return
		}
	}

	handler(moutamayiz.ChangeEvent{
		Channel: received.Channel,
		Event:   moutamayiz.ChangeKind(received.Event),
		Table:   received.Table,
		Row:     row,
	})
}

func (c *Client) send(ctx context.Context, message command) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode %s command: %w", message.Type, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("send %s command: %w", message.Type, err)
	}

	return nil
}

func (c *Client) dropHandler(channel string) {
	c.mu.Lock()
	delete(c.handlers, channel)
	c.mu.Unlock()
}

type subscription struct {
	client  *Client
	channel string

	mu       sync.Mutex
	released bool
}

// Unsubscribe stops delivery for the channel and tells the server to drop
// the interest set. Releasing twice is safe.
func (s *subscription) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	s.client.dropHandler(s.channel)

	s.client.mu.Lock()
	closed := s.client.closed
	s.client.mu.Unlock()
	if closed {
		return nil
	}

	if err := s.client.send(ctx, command{
		Type:    commandUnsubscribe,
		Channel: s.channel,
		Ref:     uuid.NewString(),
	}); err != nil {
		return fmt.Errorf("unsubscribe realtime %s: %w", s.channel, err)
	}

	return nil
}

var _ moutamayiz.Realtime = (*Client)(nil)
