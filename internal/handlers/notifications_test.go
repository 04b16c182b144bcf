package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/learnhub/internal/changefeed"
	"github.com/charlesng35/learnhub/internal/database/testutil"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/internal/notifications"
)

func newNotificationHandler(t *testing.T) (*NotificationHandler, *notifications.Service) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	feed := changefeed.New[models.Notification](notifications.Table)
	t.Cleanup(feed.Close)

	svc, err := notifications.NewService(db, feed)
	require.NoError(t, err)
	t.Cleanup(svc.Cleanup)

	handler, err := NewNotificationHandler(svc)
	require.NoError(t, err)
	return handler, svc
}

func createNotification(t *testing.T, svc *notifications.Service, userID, title string) *models.Notification {
	t.Helper()
	created := svc.CreateNotification(context.Background(), notifications.CreateInput{UserID: userID, Title: title})
	require.NotNil(t, created)
	return created
}

func TestNotificationHandlerListAndMarkRead(t *testing.T) {
	handler, svc := newNotificationHandler(t)
	first := createNotification(t, svc, "user-1", "first")
	createNotification(t, svc, "user-1", "second")
	createNotification(t, svc, "user-2", "other")

	rec := perform(t, handler.List, call{method: http.MethodGet, path: "/api/notifications", userID: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var items []models.Notification
	payload := decode(t, rec, &items)
	require.True(t, payload.Success)
	require.Len(t, items, 2)
	require.NotNil(t, payload.Meta)
	require.Equal(t, 2, payload.Meta.Unread)

	rec = perform(t, handler.MarkRead, call{method: http.MethodPost, path: "/api/notifications/" + first.ID + "/read", params: idParam(first.ID), userID: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]bool
	decode(t, rec, &result)
	require.True(t, result["updated"])

	rec = perform(t, handler.List, call{method: http.MethodGet, path: "/api/notifications?unread_only=true", userID: "user-1"})
	items = nil
	decode(t, rec, &items)
	require.Len(t, items, 1)
	require.Equal(t, "second", items[0].Title)
}

func TestNotificationHandlerRejectsForeignRows(t *testing.T) {
	handler, svc := newNotificationHandler(t)
	foreign := createNotification(t, svc, "user-2", "private")

	rec := perform(t, handler.MarkRead, call{method: http.MethodPost, path: "/", params: idParam(foreign.ID), userID: "user-1"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = perform(t, handler.Delete, call{method: http.MethodDelete, path: "/", params: idParam(foreign.ID), userID: "user-1"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = perform(t, handler.Delete, call{method: http.MethodDelete, path: "/", params: idParam("missing"), userID: "user-1"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, int64(1), svc.GetUnreadCount(context.Background(), "user-2"))
}

func TestNotificationHandlerRequiresViewer(t *testing.T) {
	handler, _ := newNotificationHandler(t)

	rec := perform(t, handler.List, call{method: http.MethodGet, path: "/api/notifications"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNotificationHandlerMarkAllAndUnreadCount(t *testing.T) {
	handler, svc := newNotificationHandler(t)
	createNotification(t, svc, "user-1", "a")
	createNotification(t, svc, "user-1", "b")

	rec := perform(t, handler.UnreadCount, call{method: http.MethodGet, path: "/", userID: "user-1"})
	var count map[string]int64
	decode(t, rec, &count)
	require.Equal(t, int64(2), count["count"])

	rec = perform(t, handler.MarkAllRead, call{method: http.MethodPost, path: "/", userID: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = perform(t, handler.UnreadCount, call{method: http.MethodGet, path: "/", userID: "user-1"})
	count = nil
	decode(t, rec, &count)
	require.Equal(t, int64(0), count["count"])
}

func TestNotificationHandlerDelete(t *testing.T) {
	handler, svc := newNotificationHandler(t)
	row := createNotification(t, svc, "user-1", "gone")

	rec := perform(t, handler.Delete, call{method: http.MethodDelete, path: "/", params: idParam(row.ID), userID: "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]bool
	decode(t, rec, &result)
	require.True(t, result["deleted"])

	require.Empty(t, svc.GetNotifications(context.Background(), "user-1", notifications.ListOptions{}))
}

func TestNotificationHandlerCreateValidates(t *testing.T) {
	handler, _ := newNotificationHandler(t)

	rec := perform(t, handler.Create, call{
		method: http.MethodPost, path: "/", userID: "staff-1", role: models.RoleStaff,
		body: map[string]any{"user_id": "user-1", "title": "Hello", "type": "bogus"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = perform(t, handler.Create, call{
		method: http.MethodPost, path: "/", userID: "staff-1", role: models.RoleStaff,
		body: map[string]any{"user_id": "user-1", "title": "Hello", "priority": "high"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Notification
	decode(t, rec, &created)
	require.NotEmpty(t, created.ID)
	require.Equal(t, models.NotificationTypeInfo, created.Type)
	require.Equal(t, "high", created.Priority)
}

func TestNotificationHandlerBulk(t *testing.T) {
	handler, svc := newNotificationHandler(t)

	rec := perform(t, handler.Bulk, call{
		method: http.MethodPost, path: "/", userID: "admin-1", role: models.RoleAdmin,
		body: map[string]any{"notifications": []map[string]any{}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = perform(t, handler.Bulk, call{
		method: http.MethodPost, path: "/", userID: "admin-1", role: models.RoleAdmin,
		body: map[string]any{"notifications": []map[string]any{
			{"user_id": "user-1", "title": "one"},
			{"user_id": "user-2", "title": "two"},
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created []models.Notification
	payload := decode(t, rec, &created)
	require.Len(t, created, 2)
	require.Equal(t, 2, payload.Meta.Total)
	require.Equal(t, int64(1), svc.GetUnreadCount(context.Background(), "user-2"))
}

func TestNotificationHandlerStats(t *testing.T) {
	handler, svc := newNotificationHandler(t)
	createNotification(t, svc, "user-1", "a")

	rec := perform(t, handler.Stats, call{method: http.MethodGet, path: "/api/notifications/stats?range=1y", userID: "admin-1", role: models.RoleAdmin})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = perform(t, handler.Stats, call{method: http.MethodGet, path: "/api/notifications/stats?range=1d", userID: "admin-1", role: models.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code)

	var stats notifications.Stats
	decode(t, rec, &stats)
	require.Equal(t, int64(1), stats.Total)
	require.Equal(t, int64(1), stats.ByType[models.NotificationTypeInfo])
}
