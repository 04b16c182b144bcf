package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/learnhub/internal/changefeed"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/internal/realtime"
)

const (
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

type wireMessage struct {
	Stream string          `json:"stream"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// Run keeps a realtime connection open until ctx ends, reconnecting with
// exponential backoff. Notification events are republished to subscribers.
func (c *Client) Run(ctx context.Context) error {
	delay := minReconnectDelay
	for {
		connected, err := c.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = minReconnectDelay
		}
		c.log.Warn("realtime connection lost", zap.Error(err), zap.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// stream holds one connection; it reports whether the dial succeeded.
func (c *Client) stream(ctx context.Context) (bool, error) {
	conn, err := c.Dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return true, fmt.Errorf("read realtime message: %w", err)
		}
		c.handle(msg)
	}
}

// Dial opens an authenticated websocket on the notifications stream.
func (c *Client) Dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint := c.base.JoinPath("/api/realtime")
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	default:
		endpoint.Scheme = "ws"
	}
	query := endpoint.Query()
	query.Set("stream", realtime.StreamNotifications)
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := c.dialer.DialContext(ctx, endpoint.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	return conn, nil
}

func (c *Client) handle(msg wireMessage) {
	if msg.Stream != realtime.StreamNotifications {
		return
	}

	var eventType changefeed.EventType
	switch msg.Event {
	case realtime.EventNotificationCreated:
		eventType = changefeed.Insert
	case realtime.EventNotificationUpdated:
		eventType = changefeed.Update
	case realtime.EventNotificationDeleted:
		eventType = changefeed.Delete
	default:
		return
	}

	var n models.Notification
	if err := json.Unmarshal(msg.Data, &n); err != nil {
		c.log.Warn("decode realtime notification", zap.String("event", msg.Event), zap.Error(err))
		return
	}

	change := changefeed.Change[models.Notification]{Type: eventType, OwnerID: n.UserID}
	if eventType == changefeed.Delete {
		change.Old = &n
	} else {
		change.New = &n
	}
	c.feed.Publish(change)
}
