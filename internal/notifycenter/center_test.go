package notifycenter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/learnhub/internal/changefeed"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/internal/notifications"
)

type fakeBackend struct {
	feed     *changefeed.Feed[models.Notification]
	registry *notifications.Registry

	mu         sync.Mutex
	items      []models.Notification
	loadErr    error
	loadGate   chan struct{}
	remoteOK   bool
	calls      []string
	subscribes int
}

func newFakeBackend(t *testing.T, items ...models.Notification) *fakeBackend {
	t.Helper()
	feed := changefeed.New[models.Notification](notifications.Table)
	t.Cleanup(feed.Close)
	return &fakeBackend{
		feed:     feed,
		registry: notifications.NewRegistry(),
		items:    items,
		remoteOK: true,
	}
}

func (f *fakeBackend) Load(ctx context.Context, _ string, _ notifications.ListOptions) ([]models.Notification, error) {
	if f.loadGate != nil {
		select {
		case <-f.loadGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]models.Notification(nil), f.items...), nil
}

func (f *fakeBackend) record(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.remoteOK
}

func (f *fakeBackend) MarkAsRead(_ context.Context, id string) bool {
	return f.record("read:" + id)
}

func (f *fakeBackend) MarkAllAsRead(_ context.Context, userID string) bool {
	return f.record("read-all:" + userID)
}

func (f *fakeBackend) DeleteNotification(_ context.Context, id string) bool {
	return f.record("delete:" + id)
}

func (f *fakeBackend) Subscribe(userID string, handlers notifications.Handlers) *notifications.Subscription {
	f.mu.Lock()
	f.subscribes++
	f.mu.Unlock()
	return notifications.SubscribeFeed(f.feed, f.registry, userID, handlers)
}

func (f *fakeBackend) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) publish(event changefeed.EventType, n models.Notification) {
	change := changefeed.Change[models.Notification]{Type: event, OwnerID: n.UserID}
	if event == changefeed.Delete {
		change.Old = &n
	} else {
		change.New = &n
	}
	f.feed.Publish(change)
}

func note(id string, read bool) models.Notification {
	return models.Notification{
		BaseModel: models.BaseModel{ID: id},
		UserID:    "u1",
		Title:     "title " + id,
		IsRead:    read,
	}
}

func TestLoadCapsPageSizeAndDerivesUnread(t *testing.T) {
	backend := newFakeBackend(t, note("a", false), note("b", false), note("c", true), note("d", false))
	center := New(backend, "u1", WithPageSize(3))
	defer center.Close()

	require.Equal(t, Loading, center.Snapshot().State)
	center.Load(context.Background())

	snap := center.Snapshot()
	require.Equal(t, Ready, snap.State)
	require.False(t, snap.Fallback)
	require.Len(t, snap.Items, 3)
	require.Equal(t, 2, snap.Unread)
	require.Equal(t, 2, center.UnreadCount())
	require.Equal(t, 1, backend.registry.Len())
}

func TestLoadFailureUsesFallbackOnlyWhenEnabled(t *testing.T) {
	backend := newFakeBackend(t)
	backend.loadErr = errors.New("backend offline")

	withDemo := New(backend, "u1", WithFallback(true))
	defer withDemo.Close()
	withDemo.Load(context.Background())

	snap := withDemo.Snapshot()
	require.Equal(t, Ready, snap.State)
	require.True(t, snap.Fallback)
	require.NotEmpty(t, snap.Items)
	for _, item := range snap.Items {
		require.True(t, strings.HasPrefix(item.ID, "demo-"))
	}

	offline := newFakeBackend(t)
	offline.loadErr = errors.New("backend offline")
	withoutDemo := New(offline, "u1")
	defer withoutDemo.Close()
	withoutDemo.Load(context.Background())

	snap = withoutDemo.Snapshot()
	require.Equal(t, Ready, snap.State)
	require.False(t, snap.Fallback)
	require.Empty(t, snap.Items)
}

func TestFallbackActionsStayLocal(t *testing.T) {
	backend := newFakeBackend(t)
	backend.loadErr = errors.New("backend offline")
	center := New(backend, "u1", WithFallback(true))
	center.Load(context.Background())

	center.MarkAllAsRead()
	center.Close()

	require.Zero(t, center.UnreadCount())
	require.Empty(t, backend.recorded())
}

func TestInsertEventIsNotDeduplicated(t *testing.T) {
	backend := newFakeBackend(t, note("a", false))
	center := New(backend, "u1")
	defer center.Close()
	center.Load(context.Background())

	backend.publish(changefeed.Insert, note("a", false))

	require.Eventually(t, func() bool { return len(center.Snapshot().Items) == 2 }, time.Second, 5*time.Millisecond)
	items := center.Snapshot().Items
	require.Equal(t, "a", items[0].ID)
	require.Equal(t, "a", items[1].ID)
}

func TestUpdateAndDeleteEvents(t *testing.T) {
	backend := newFakeBackend(t, note("a", false), note("b", false))

	changes := make(chan Snapshot, 16)
	center := New(backend, "u1", WithOnChange(func(s Snapshot) { changes <- s }))
	defer center.Close()
	center.Load(context.Background())
	<-changes

	updated := note("a", true)
	updated.Title = "renamed"
	backend.publish(changefeed.Update, updated)
	backend.publish(changefeed.Update, note("ghost", true))
	backend.publish(changefeed.Delete, note("b", false))
	backend.publish(changefeed.Delete, note("ghost", false))

	first := <-changes
	require.Equal(t, "renamed", first.Items[0].Title)
	require.Equal(t, 1, first.Unread)

	second := <-changes
	require.Len(t, second.Items, 1)
	require.Equal(t, "a", second.Items[0].ID)
	require.Zero(t, second.Unread)

	select {
	case extra := <-changes:
		t.Fatalf("unexpected change for unknown id: %+v", extra)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestMarkAllAsReadKeepsLocalStateWhenRemoteFails(t *testing.T) {
	backend := newFakeBackend(t, note("a", false), note("b", false), note("c", true))
	backend.remoteOK = false
	center := New(backend, "u1")
	center.Load(context.Background())

	require.Equal(t, 2, center.UnreadCount())
	center.MarkAllAsRead()
	require.Zero(t, center.UnreadCount())

	center.Close()
	require.Equal(t, []string{"read-all:u1"}, backend.recorded())
	require.Zero(t, center.UnreadCount())
}

func TestMarkAsReadSkipsReadEntries(t *testing.T) {
	backend := newFakeBackend(t, note("a", false), note("b", true))
	center := New(backend, "u1")
	center.Load(context.Background())

	center.MarkAsRead("a")
	center.MarkAsRead("b")
	center.MarkAsRead("missing")
	center.Close()

	require.Equal(t, []string{"read:a"}, backend.recorded())
}

func TestDeleteIsOptimistic(t *testing.T) {
	backend := newFakeBackend(t, note("a", false), note("b", false))
	backend.remoteOK = false
	center := New(backend, "u1")
	center.Load(context.Background())

	center.Delete("a")
	snap := center.Snapshot()
	require.Len(t, snap.Items, 1)
	require.Equal(t, "b", snap.Items[0].ID)

	center.Close()
	require.Equal(t, []string{"delete:a"}, backend.recorded())
}

func TestSelectMarksReadAndReturnsURL(t *testing.T) {
	withURL := note("a", false)
	withURL.ActionURL = "/student/grades"
	backend := newFakeBackend(t, withURL, note("b", true))
	center := New(backend, "u1")
	center.Load(context.Background())

	require.Equal(t, "/student/grades", center.Select("a"))
	require.Equal(t, "", center.Select("b"))
	require.Equal(t, "", center.Select("missing"))
	center.Close()

	require.Equal(t, []string{"read:a"}, backend.recorded())
	require.Zero(t, center.UnreadCount())
}

func TestCloseDuringInitialFetchReleasesEverything(t *testing.T) {
	backend := newFakeBackend(t, note("a", false))
	backend.loadGate = make(chan struct{})
	center := New(backend, "u1")

	center.Start(context.Background())
	center.Close()
	close(backend.loadGate)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, Loading, center.Snapshot().State)
	require.Zero(t, backend.registry.Len())
	backend.mu.Lock()
	require.Zero(t, backend.subscribes)
	backend.mu.Unlock()
}

func TestCloseReleasesSubscription(t *testing.T) {
	backend := newFakeBackend(t, note("a", false))
	center := New(backend, "u1")
	center.Load(context.Background())
	require.Equal(t, 1, backend.registry.Len())

	center.Close()
	center.Close()
	require.Zero(t, backend.registry.Len())

	backend.publish(changefeed.Insert, note("z", false))
	time.Sleep(20 * time.Millisecond)
	require.Len(t, center.Snapshot().Items, 1)
}
