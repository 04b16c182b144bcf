package notifications

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/learnhub/internal/changefeed"
	"github.com/charlesng35/learnhub/internal/database"
	"github.com/charlesng35/learnhub/internal/database/testutil"
	"github.com/charlesng35/learnhub/internal/models"
)

var baseTime = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.MustOpenTestDB(t)
	feed := changefeed.New[models.Notification](Table)
	t.Cleanup(feed.Close)

	svc, err := NewService(db, feed, WithClock(func() time.Time { return baseTime }))
	require.NoError(t, err)
	t.Cleanup(svc.Cleanup)
	return svc, db
}

func seed(t *testing.T, db *gorm.DB, userID, id string, age time.Duration, read bool, priority string) models.Notification {
	t.Helper()
	created := baseTime.Add(-age)
	row := models.Notification{
		BaseModel: models.BaseModel{ID: id, CreatedAt: created, UpdatedAt: created},
		UserID:    userID,
		Title:     "title " + id,
		Type:      models.NotificationTypeInfo,
		Priority:  priority,
		IsRead:    read,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

type events struct {
	mu      sync.Mutex
	inserts []models.Notification
	updates []models.Notification
	deletes []models.Notification
}

func (e *events) handlers() Handlers {
	return Handlers{
		OnInsert: func(n models.Notification) { e.mu.Lock(); e.inserts = append(e.inserts, n); e.mu.Unlock() },
		OnUpdate: func(n models.Notification) { e.mu.Lock(); e.updates = append(e.updates, n); e.mu.Unlock() },
		OnDelete: func(n models.Notification) { e.mu.Lock(); e.deletes = append(e.deletes, n); e.mu.Unlock() },
	}
}

func (e *events) counts() (int, int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inserts), len(e.updates), len(e.deletes)
}

func TestCreateNotificationDefaultsAndList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := svc.CreateNotification(ctx, CreateInput{
		UserID:   "student-1",
		Title:    "Assignment graded",
		Message:  "Lab 3 was graded",
		Metadata: map[string]any{"course_id": "cs101"},
	})
	require.NotNil(t, created)
	require.NotEmpty(t, created.ID)
	require.Equal(t, models.NotificationTypeInfo, created.Type)
	require.Equal(t, models.NotificationPriorityMedium, created.Priority)
	require.False(t, created.IsRead)
	require.JSONEq(t, `{"course_id":"cs101"}`, string(created.Metadata))

	items := svc.GetNotifications(ctx, "student-1", ListOptions{})
	require.Len(t, items, 1)
	require.Equal(t, created.ID, items[0].ID)
}

func TestCreateNotificationRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.Nil(t, svc.CreateNotification(ctx, CreateInput{Title: "no owner"}))
	require.Nil(t, svc.CreateNotification(ctx, CreateInput{UserID: "u1"}))
	require.Nil(t, svc.CreateNotification(ctx, CreateInput{UserID: "u1", Title: "x", Type: "critical"}))
	require.Nil(t, svc.CreateNotification(ctx, CreateInput{UserID: "u1", Title: "x", Priority: "urgent"}))
}

func TestGetNotificationsOrderingAndFilters(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seed(t, db, "u1", "old", 3*time.Hour, true, models.NotificationPriorityLow)
	seed(t, db, "u1", "mid", 2*time.Hour, false, models.NotificationPriorityHigh)
	seed(t, db, "u1", "new", time.Hour, false, models.NotificationPriorityMedium)
	seed(t, db, "u2", "other", time.Minute, false, models.NotificationPriorityHigh)

	items := svc.GetNotifications(ctx, "u1", ListOptions{})
	require.Len(t, items, 3)
	require.Equal(t, []string{"new", "mid", "old"}, ids(items))

	items = svc.GetNotifications(ctx, "u1", ListOptions{UnreadOnly: true})
	require.Equal(t, []string{"new", "mid"}, ids(items))

	items = svc.GetNotifications(ctx, "u1", ListOptions{Priority: models.NotificationPriorityHigh})
	require.Equal(t, []string{"mid"}, ids(items))

	items = svc.GetNotifications(ctx, "u1", ListOptions{Limit: 1})
	require.Equal(t, []string{"new"}, ids(items))

	require.EqualValues(t, 2, svc.GetUnreadCount(ctx, "u1"))
	require.EqualValues(t, 0, svc.GetUnreadCount(ctx, "nobody"))
}

func TestMarkAsReadPublishesOnlyOnChange(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seed(t, db, "u1", "n1", time.Hour, false, models.NotificationPriorityMedium)

	var rec events
	sub := svc.Subscribe("u1", rec.handlers())
	defer sub.Unsubscribe()

	require.True(t, svc.MarkAsRead(ctx, "n1"))
	require.Eventually(t, func() bool { _, u, _ := rec.counts(); return u == 1 }, time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	updated := rec.updates[0]
	rec.mu.Unlock()
	require.True(t, updated.IsRead)
	require.NotNil(t, updated.ReadAt)

	var stored models.Notification
	require.NoError(t, db.Take(&stored, "id = ?", "n1").Error)
	require.True(t, stored.IsRead)
	require.NotNil(t, stored.ReadAt)

	require.True(t, svc.MarkAsRead(ctx, "n1"))
	time.Sleep(20 * time.Millisecond)
	_, u, _ := rec.counts()
	require.Equal(t, 1, u)

	require.False(t, svc.MarkAsRead(ctx, "missing"))
}

func TestMarkAllAsReadPublishesPerRow(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seed(t, db, "u1", "a", time.Hour, false, models.NotificationPriorityMedium)
	seed(t, db, "u1", "b", 2*time.Hour, false, models.NotificationPriorityMedium)
	seed(t, db, "u1", "c", 3*time.Hour, true, models.NotificationPriorityMedium)
	seed(t, db, "u2", "d", time.Hour, false, models.NotificationPriorityMedium)

	var rec events
	sub := svc.Subscribe("u1", rec.handlers())
	defer sub.Unsubscribe()

	require.True(t, svc.MarkAllAsRead(ctx, "u1"))
	require.Eventually(t, func() bool { _, u, _ := rec.counts(); return u == 2 }, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 0, svc.GetUnreadCount(ctx, "u1"))
	require.EqualValues(t, 1, svc.GetUnreadCount(ctx, "u2"))

	require.True(t, svc.MarkAllAsRead(ctx, "u1"))
}

func TestDeleteNotification(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	seed(t, db, "u1", "n1", time.Hour, false, models.NotificationPriorityMedium)

	var rec events
	sub := svc.Subscribe("u1", rec.handlers())
	defer sub.Unsubscribe()

	owner, err := svc.Owner(ctx, "n1")
	require.NoError(t, err)
	require.Equal(t, "u1", owner)

	require.True(t, svc.DeleteNotification(ctx, "n1"))
	require.Eventually(t, func() bool { _, _, d := rec.counts(); return d == 1 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	require.Equal(t, "n1", rec.deletes[0].ID)
	rec.mu.Unlock()

	require.False(t, svc.DeleteNotification(ctx, "n1"))
	_, err = svc.Owner(ctx, "n1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSendBulkNotificationsMintsFreshIDs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inputs := []CreateInput{
		{UserID: "u1", Title: "Exam timetable", Type: models.NotificationTypeWarning},
		{UserID: "u2", Title: "Exam timetable"},
	}
	first := svc.SendBulkNotifications(ctx, inputs)
	require.Len(t, first, 2)
	require.NotEqual(t, first[0].ID, first[1].ID)
	require.Equal(t, models.NotificationTypeWarning, first[0].Type)
	require.Equal(t, models.NotificationTypeInfo, first[1].Type)
	require.Equal(t, models.NotificationPriorityMedium, first[1].Priority)

	second := svc.SendBulkNotifications(ctx, inputs)
	require.Len(t, second, 2)
	require.NotEqual(t, first[0].ID, second[0].ID)
	require.Len(t, svc.GetNotifications(ctx, "u1", ListOptions{}), 2)

	bad := svc.SendBulkNotifications(ctx, []CreateInput{{UserID: "u1", Title: "ok"}, {UserID: "", Title: "bad"}})
	require.Empty(t, bad)
	require.NotNil(t, bad)
	require.Len(t, svc.GetNotifications(ctx, "u1", ListOptions{}), 2)
}

func TestSecondSubscribeClosesFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var first, second events
	subA := svc.Subscribe("u1", first.handlers())
	subB := svc.Subscribe("u1", second.handlers())

	require.False(t, subA.Active())
	require.True(t, subB.Active())
	active, ok := svc.Registry().Active(ChannelName("u1"))
	require.True(t, ok)
	require.Same(t, subB, active)

	require.NotNil(t, svc.CreateNotification(ctx, CreateInput{UserID: "u1", Title: "hello"}))
	require.Eventually(t, func() bool { i, _, _ := second.counts(); return i == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	i, _, _ := first.counts()
	require.Zero(t, i)

	// A stale handle must not evict the live subscription.
	subA.Unsubscribe()
	_, ok = svc.Registry().Active(ChannelName("u1"))
	require.True(t, ok)

	subB.Unsubscribe()
	subB.Unsubscribe()
	require.Equal(t, 0, svc.Registry().Len())
}

func TestCleanupTearsDownEverySubscription(t *testing.T) {
	svc, _ := newTestService(t)

	a := svc.Subscribe("u1", Handlers{})
	b := svc.Subscribe("u2", Handlers{})
	require.Equal(t, 2, svc.Registry().Len())

	svc.Cleanup()
	require.Equal(t, 0, svc.Registry().Len())
	require.False(t, a.Active())
	require.False(t, b.Active())
	require.Equal(t, 0, svc.Feed().Listeners())
}

func TestGetNotificationStats(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seed(t, db, "u1", "a", time.Hour, true, models.NotificationPriorityHigh)
	seed(t, db, "u1", "b", 2*time.Hour, false, models.NotificationPriorityLow)
	seed(t, db, "u2", "c", 3*24*time.Hour, true, models.NotificationPriorityLow)
	seed(t, db, "u2", "d", 10*24*time.Hour, false, models.NotificationPriorityLow)

	day := svc.GetNotificationStats(ctx, Range1Day)
	require.EqualValues(t, 2, day.Total)
	require.EqualValues(t, 1, day.ByPriority[models.NotificationPriorityHigh])
	require.InDelta(t, 50.0, day.ReadPercentage, 0.001)

	week := svc.GetNotificationStats(ctx, Range7Days)
	require.EqualValues(t, 3, week.Total)
	require.EqualValues(t, 3, week.ByType[models.NotificationTypeInfo])

	month := svc.GetNotificationStats(ctx, Range30Days)
	require.EqualValues(t, 4, month.Total)
	require.InDelta(t, 50.0, month.ReadPercentage, 0.001)
}

func TestCleanupOldNotifications(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seed(t, db, "u1", "fresh", 24*time.Hour, false, models.NotificationPriorityMedium)
	seed(t, db, "u1", "stale", 31*24*time.Hour, false, models.NotificationPriorityMedium)
	seed(t, db, "u1", "ancient", 90*24*time.Hour, true, models.NotificationPriorityMedium)

	require.EqualValues(t, 1, svc.CleanupOldNotifications(ctx, 60))
	require.EqualValues(t, 1, svc.CleanupOldNotifications(ctx, 0))
	require.Equal(t, []string{"fresh"}, ids(svc.GetNotifications(ctx, "u1", ListOptions{})))
}

func TestFailuresYieldSafeDefaults(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	require.NoError(t, database.Close(db))

	items := svc.GetNotifications(ctx, "u1", ListOptions{})
	require.NotNil(t, items)
	require.Empty(t, items)
	require.Zero(t, svc.GetUnreadCount(ctx, "u1"))
	require.False(t, svc.MarkAsRead(ctx, "n1"))
	require.False(t, svc.MarkAllAsRead(ctx, "u1"))
	require.Nil(t, svc.CreateNotification(ctx, CreateInput{UserID: "u1", Title: "x"}))
	require.False(t, svc.DeleteNotification(ctx, "n1"))
	require.Empty(t, svc.SendBulkNotifications(ctx, []CreateInput{{UserID: "u1", Title: "x"}}))
	require.Zero(t, svc.CleanupOldNotifications(ctx, 30))

	stats := svc.GetNotificationStats(ctx, Range7Days)
	require.Zero(t, stats.Total)
	require.NotNil(t, stats.ByType)

	_, err := svc.Load(ctx, "u1", ListOptions{})
	require.Error(t, err)
}

func TestParseTimeRange(t *testing.T) {
	r, ok := ParseTimeRange("30D")
	require.True(t, ok)
	require.Equal(t, Range30Days, r)

	r, ok = ParseTimeRange("")
	require.True(t, ok)
	require.Equal(t, Range7Days, r)

	_, ok = ParseTimeRange("90d")
	require.False(t, ok)
}

func ids(items []models.Notification) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestResubscribeNeverDeliversOneChangeTwice(t *testing.T) {
	feed := changefeed.New[models.Notification](Table, changefeed.WithBuffer(1024))
	t.Cleanup(feed.Close)
	registry := NewRegistry()

	var mu sync.Mutex
	seen := map[string]int{}
	record := func(n models.Notification) {
		mu.Lock()
		seen[n.ID]++
		mu.Unlock()
	}

	stop := make(chan struct{})
	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			row := models.Notification{BaseModel: models.BaseModel{ID: fmt.Sprintf("n-%d", i)}, UserID: "u1"}
			feed.Publish(changefeed.Change[models.Notification]{Type: changefeed.Insert, OwnerID: "u1", New: &row})
			time.Sleep(50 * time.Microsecond)
		}
	}()

	var last *Subscription
	for range 50 {
		last = SubscribeFeed(feed, registry, "u1", Handlers{OnInsert: record})
		time.Sleep(time.Millisecond)
	}
	close(stop)
	<-published
	time.Sleep(50 * time.Millisecond)
	last.Unsubscribe()

	mu.Lock()
	defer mu.Unlock()
	for id, n := range seen {
		require.Equal(t, 1, n, "change %s delivered to more than one subscription", id)
	}
	require.Equal(t, 0, feed.Listeners())
}

func TestUnsubscribeBeforeAttachReleasesListener(t *testing.T) {
	feed := changefeed.New[models.Notification](Table)
	t.Cleanup(feed.Close)

	sub := &Subscription{channel: ChannelName("u1"), registry: NewRegistry(), done: make(chan struct{})}
	sub.Unsubscribe()
	sub.attach(feed.Listen("u1", func(changefeed.Change[models.Notification]) {}))

	require.False(t, sub.Active())
	require.Equal(t, 0, feed.Listeners())
}
