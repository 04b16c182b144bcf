// Package client talks to the learnhub HTTP API and its realtime stream.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/learnhub/internal/auth"
	"github.com/charlesng35/learnhub/internal/changefeed"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/internal/notifications"
	"github.com/charlesng35/learnhub/internal/reminders"
	"github.com/charlesng35/learnhub/pkg/logger"
	"github.com/charlesng35/learnhub/pkg/response"
)

const defaultTimeout = 15 * time.Second

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("learnhub api: status %d", e.Status)
	}
	return fmt.Sprintf("learnhub api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithDialer replaces the websocket dialer used by Run.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithFeedBuffer sets the per-listener queue of the local change feed.
func WithFeedBuffer(size int) Option {
	return func(c *Client) { c.feedBuffer = size }
}

// Client is a remote notification backend and reminder source. Realtime
// events received by Run are republished on a local change feed so that
// subscriptions behave like the server's.
type Client struct {
	base       *url.URL
	token      string
	http       *http.Client
	dialer     *websocket.Dialer
	feedBuffer int
	log        *zap.Logger

	feed     *changefeed.Feed[models.Notification]
	registry *notifications.Registry
}

// New constructs a client for the server at baseURL authenticating with token.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("access token is required")
	}

	c := &Client{
		base:   base,
		token:  strings.TrimSpace(token),
		http:   &http.Client{Timeout: defaultTimeout},
		dialer: websocket.DefaultDialer,
		log:    logger.WithModule("client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.feed = changefeed.New[models.Notification](notifications.Table, changefeed.WithBuffer(c.feedBuffer))
	c.registry = notifications.NewRegistry()
	return c, nil
}

// Identity reads the viewer out of the access token without verifying its
// signature; the server verifies it on every call.
func (c *Client) Identity() (reminders.Viewer, error) {
	claims := &iauth.Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(c.token, claims); err != nil {
		return reminders.Viewer{}, fmt.Errorf("parse access token: %w", err)
	}
	if claims.UserID == "" {
		return reminders.Viewer{}, errors.New("access token carries no user id")
	}
	role := claims.Role
	if role == "" {
		role = models.RoleStudent
	}
	return reminders.Viewer{ID: claims.UserID, Role: role}, nil
}

// Load fetches the viewer's notifications. The server derives the owner from
// the token; userID only scopes the result locally.
func (c *Client) Load(ctx context.Context, userID string, opts notifications.ListOptions) ([]models.Notification, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.UnreadOnly {
		query.Set("unread_only", "true")
	}
	if opts.Priority != "" {
		query.Set("priority", opts.Priority)
	}

	var items []models.Notification
	if _, err := c.do(ctx, http.MethodGet, "/api/notifications", query, nil, &items); err != nil {
		return nil, err
	}

	out := items[:0]
	for _, item := range items {
		if userID == "" || item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

// MarkAsRead implements notifycenter.Backend.
func (c *Client) MarkAsRead(ctx context.Context, id string) bool {
	return c.mutate(ctx, "mark_as_read", http.MethodPost, "/api/notifications/"+url.PathEscape(id)+"/read", "updated")
}

// MarkAllAsRead implements notifycenter.Backend.
func (c *Client) MarkAllAsRead(ctx context.Context, _ string) bool {
	return c.mutate(ctx, "mark_all_as_read", http.MethodPost, "/api/notifications/read-all", "updated")
}

// DeleteNotification implements notifycenter.Backend.
func (c *Client) DeleteNotification(ctx context.Context, id string) bool {
	return c.mutate(ctx, "delete", http.MethodDelete, "/api/notifications/"+url.PathEscape(id), "deleted")
}

// Subscribe attaches handlers to realtime events for userID. A later call for
// the same user replaces this subscription.
func (c *Client) Subscribe(userID string, handlers notifications.Handlers) *notifications.Subscription {
	return notifications.SubscribeFeed(c.feed, c.registry, userID, handlers)
}

// ActiveReminders implements reminders.Source. The server filters by the
// token's role, so viewer is informational.
func (c *Client) ActiveReminders(ctx context.Context, _ reminders.Viewer) ([]models.Reminder, error) {
	var items []models.Reminder
	meta, err := c.do(ctx, http.MethodGet, "/api/reminders", nil, nil, &items)
	if err != nil {
		return nil, err
	}
	if meta != nil && meta.Fallback {
		c.log.Debug("server answered with demonstration reminders")
	}
	return items, nil
}

// DismissReminder records a dismissal on the server. It implements
// reminders.Remote.
func (c *Client) DismissReminder(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/reminders/"+url.PathEscape(id)+"/dismiss", nil, nil, nil)
	return err
}

// Close tears down every subscription and the local feed.
func (c *Client) Close() {
	c.registry.Close()
	c.feed.Close()
}

func (c *Client) mutate(ctx context.Context, op, method, path, field string) bool {
	var body map[string]bool
	if _, err := c.do(ctx, method, path, nil, nil, &body); err != nil {
		c.log.Warn("notification request failed", zap.String("operation", op), zap.String("path", path), zap.Error(err))
		return false
	}
	return body[field]
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, dest any) (*response.Meta, error) {
	endpoint := c.base.JoinPath(path)
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool                `json:"success"`
		Data    json.RawMessage     `json:"data"`
		Error   *response.ErrorInfo `json:"error"`
		Meta    *response.Meta      `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !envelope.Success {
		apiErr := &APIError{Status: resp.StatusCode}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return nil, apiErr
	}

	if dest != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, dest); err != nil {
			return nil, fmt.Errorf("decode %s %s data: %w", method, path, err)
		}
	}
	return envelope.Meta, nil
}
