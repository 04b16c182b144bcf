// Package notifycenter keeps a viewer's notification list consistent across
// the initial fetch, live feed events and optimistic local actions.
package notifycenter

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/learnhub/internal/fallback"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/internal/notifications"
	"github.com/charlesng35/learnhub/pkg/logger"
)

const (
	defaultPageSize      = 20
	defaultRemoteTimeout = 10 * time.Second
)

// Backend is the authoritative notification store seen by a Center.
type Backend interface {
	Load(ctx context.Context, userID string, opts notifications.ListOptions) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id string) bool
	MarkAllAsRead(ctx context.Context, userID string) bool
	DeleteNotification(ctx context.Context, id string) bool
	Subscribe(userID string, handlers notifications.Handlers) *notifications.Subscription
}

// State is the lifecycle stage of a Center.
type State int

const (
	Loading State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "loading"
}

// Snapshot is an immutable copy of the center's view.
type Snapshot struct {
	State    State
	Items    []models.Notification
	Unread   int
	Fallback bool
}

// Option configures a Center.
type Option func(*Center)

// WithPageSize caps the initial list.
func WithPageSize(size int) Option {
	return func(c *Center) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithFallback enables the demonstration list when the initial fetch fails.
func WithFallback(enabled bool) Option {
	return func(c *Center) { c.fallbackEnabled = enabled }
}

// WithOnChange registers a callback invoked with a snapshot after every change.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Center) { c.onChange = fn }
}

// WithRemoteTimeout bounds each background remote mutation.
func WithRemoteTimeout(d time.Duration) Option {
	return func(c *Center) {
		if d > 0 {
			c.remoteTimeout = d
		}
	}
}

// WithClock overrides the time source used for fallback timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Center) {
		if now != nil {
			c.now = now
		}
	}
}

// Center is the client-side notification list for one user.
type Center struct {
	backend         Backend
	userID          string
	pageSize        int
	fallbackEnabled bool
	remoteTimeout   time.Duration
	onChange        func(Snapshot)
	now             func() time.Time
	log             *zap.Logger

	mu         sync.Mutex
	state      State
	items      []models.Notification
	isFallback bool
	sub        *notifications.Subscription
	closed     bool
	cancelLoad context.CancelFunc
	pending    sync.WaitGroup
}

// New constructs a Center in the Loading state.
func New(backend Backend, userID string, opts ...Option) *Center {
	c := &Center{
		backend:       backend,
		userID:        userID,
		pageSize:      defaultPageSize,
		remoteTimeout: defaultRemoteTimeout,
		now:           time.Now,
		log:           logger.WithModule("notifycenter").With(zap.String("user_id", userID)),
		state:         Loading,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs Load in the background. Close cancels an unfinished fetch.
func (c *Center) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancelLoad = cancel
	c.mu.Unlock()

	go c.Load(ctx)
}

// Load performs the initial fetch, moves the center to Ready and opens the
// live subscription. It does nothing once the center is closed.
func (c *Center) Load(ctx context.Context) {
	result := c.fetch(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state = Ready
	c.items = result.Data
	c.isFallback = result.Fallback
	if c.sub == nil {
		c.sub = c.backend.Subscribe(c.userID, notifications.Handlers{
			OnInsert: c.onInsert,
			OnUpdate: c.onUpdate,
			OnDelete: c.onDelete,
		})
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Center) fetch(ctx context.Context) fallback.Result[[]models.Notification] {
	items, err := c.backend.Load(ctx, c.userID, notifications.ListOptions{Limit: c.pageSize})
	if err == nil {
		if len(items) > c.pageSize {
			items = items[:c.pageSize]
		}
		return fallback.Live(slices.Clone(items))
	}

	c.log.Warn("initial notification fetch failed", zap.Error(err), zap.Bool("fallback", c.fallbackEnabled))
	if !c.fallbackEnabled {
		return fallback.Result[[]models.Notification]{Data: []models.Notification{}, Err: err}
	}
	return fallback.Substitute(fallback.Notifications(c.userID, c.now()), err)
}

// Snapshot returns a copy of the current view.
func (c *Center) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// UnreadCount counts unread entries in the local list.
func (c *Center) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return unread(c.items)
}

// MarkAsRead marks id read locally and then asks the backend to do the same.
// Entries that are missing or already read are left alone.
func (c *Center) MarkAsRead(id string) {
	changed := c.applyLocal(func(items []models.Notification) ([]models.Notification, bool) {
		idx := indexOf(items, id)
		if idx < 0 || items[idx].IsRead {
			return items, false
		}
		items[idx] = markRead(items[idx], c.now())
		return items, true
	})
	if !changed {
		return
	}
	c.pushRemote("mark_as_read", id, func(ctx context.Context) bool {
		return c.backend.MarkAsRead(ctx, id)
	})
}

// MarkAllAsRead marks every local entry read and asks the backend to mark
// all of the user's notifications read.
func (c *Center) MarkAllAsRead() {
	c.applyLocal(func(items []models.Notification) ([]models.Notification, bool) {
		changed := false
		now := c.now()
		for i := range items {
			if !items[i].IsRead {
				items[i] = markRead(items[i], now)
				changed = true
			}
		}
		return items, changed
	})
	c.pushRemote("mark_all_as_read", "", func(ctx context.Context) bool {
		return c.backend.MarkAllAsRead(ctx, c.userID)
	})
}

// Delete removes id locally and asks the backend to delete it.
func (c *Center) Delete(id string) {
	changed := c.applyLocal(func(items []models.Notification) ([]models.Notification, bool) {
		idx := indexOf(items, id)
		if idx < 0 {
			return items, false
		}
		return slices.Delete(items, idx, idx+1), true
	})
	if !changed {
		return
	}
	c.pushRemote("delete", id, func(ctx context.Context) bool {
		return c.backend.DeleteNotification(ctx, id)
	})
}

// Select marks id read if needed and returns its action URL, which is empty
// when the entry is unknown or carries none.
func (c *Center) Select(id string) string {
	c.mu.Lock()
	idx := indexOf(c.items, id)
	if idx < 0 {
		c.mu.Unlock()
		return ""
	}
	url := c.items[idx].ActionURL
	read := c.items[idx].IsRead
	c.mu.Unlock()

	if !read {
		c.MarkAsRead(id)
	}
	return url
}

// Close releases the live subscription, cancels an unfinished fetch and
// waits for outstanding remote mutations.
func (c *Center) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	cancel := c.cancelLoad
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	sub.Unsubscribe()
	c.pending.Wait()
}

// applyLocal mutates the list under the lock and notifies on change.
func (c *Center) applyLocal(mutate func([]models.Notification) ([]models.Notification, bool)) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	items, changed := mutate(c.items)
	c.items = items
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.notify(snap)
	}
	return changed
}

// pushRemote forwards a local action to the backend in the background. A
// failed call is logged and the local state is kept.
func (c *Center) pushRemote(op, id string, call func(context.Context) bool) {
	c.mu.Lock()
	if c.closed || c.isFallback {
		c.mu.Unlock()
		return
	}
	c.pending.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.remoteTimeout)
		defer cancel()
		if !call(ctx) {
			c.log.Warn("remote notification update failed, keeping local state",
				zap.String("operation", op),
				zap.String("notification_id", id),
			)
		}
	}()
}

func (c *Center) onInsert(n models.Notification) {
	// Inserts are prepended without checking for an existing id.
	c.applyFeed(func(items []models.Notification) ([]models.Notification, bool) {
		return append([]models.Notification{n}, items...), true
	})
}

func (c *Center) onUpdate(n models.Notification) {
	c.applyFeed(func(items []models.Notification) ([]models.Notification, bool) {
		idx := indexOf(items, n.ID)
		if idx < 0 {
			return items, false
		}
		items[idx] = n
		return items, true
	})
}

func (c *Center) onDelete(n models.Notification) {
	c.applyFeed(func(items []models.Notification) ([]models.Notification, bool) {
		idx := indexOf(items, n.ID)
		if idx < 0 {
			return items, false
		}
		return slices.Delete(items, idx, idx+1), true
	})
}

func (c *Center) applyFeed(mutate func([]models.Notification) ([]models.Notification, bool)) {
	c.mu.Lock()
	if c.closed || c.state != Ready {
		c.mu.Unlock()
		return
	}
	items, changed := mutate(c.items)
	c.items = items
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed {
		c.notify(snap)
	}
}

func (c *Center) snapshotLocked() Snapshot {
	return Snapshot{
		State:    c.state,
		Items:    slices.Clone(c.items),
		Unread:   unread(c.items),
		Fallback: c.isFallback,
	}
}

func (c *Center) notify(snap Snapshot) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}

func unread(items []models.Notification) int {
	count := 0
	for _, item := range items {
		if !item.IsRead {
			count++
		}
	}
	return count
}

func indexOf(items []models.Notification, id string) int {
	return slices.IndexFunc(items, func(n models.Notification) bool { return n.ID == id })
}

func markRead(n models.Notification, now time.Time) models.Notification {
	n.IsRead = true
	readAt := now.UTC()
	n.ReadAt = &readAt
	return n
}
