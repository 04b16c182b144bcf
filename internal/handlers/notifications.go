package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/learnhub/internal/middleware"
	"github.com/charlesng35/learnhub/internal/notifications"
	appErrors "github.com/charlesng35/learnhub/pkg/errors"
	"github.com/charlesng35/learnhub/pkg/response"
)

const maxBulkNotifications = 500

// NotificationHandler exposes notification endpoints for the authenticated viewer.
type NotificationHandler struct {
	service *notifications.Service
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(service *notifications.Service) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("notification handler: service is required")
	}
	return &NotificationHandler{service: service}, nil
}

type bulkNotificationsRequest struct {
	Notifications []notifications.CreateInput `json:"notifications" validate:"required,min=1,dive"`
}

// List GET /api/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	ctx := requestContext(c)
	items := h.service.GetNotifications(ctx, userID, notifications.ListOptions{
		Limit:      parseIntQuery(c, "limit", 0),
		UnreadOnly: parseBoolQuery(c, "unread_only"),
		Priority:   strings.TrimSpace(c.Query("priority")),
	})

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Total:  len(items),
		Unread: int(h.service.GetUnreadCount(ctx, userID)),
	})
}

// UnreadCount GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": h.service.GetUnreadCount(requestContext(c), userID)})
}

// MarkRead POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := h.ownedNotification(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": h.service.MarkAsRead(requestContext(c), id)})
}

// MarkAllRead POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"updated": h.service.MarkAllAsRead(requestContext(c), userID)})
}

// Delete DELETE /api/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := h.ownedNotification(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": h.service.DeleteNotification(requestContext(c), id)})
}

// Create POST /api/notifications
func (h *NotificationHandler) Create(c *gin.Context) {
	var payload notifications.CreateInput
	if !bindAndValidate(c, &payload) {
		return
	}

	created := h.service.CreateNotification(requestContext(c), payload)
	if created == nil {
		response.Error(c, appErrors.ErrInternalServer.WithMessage("failed to create notification"))
		return
	}
	response.Success(c, http.StatusCreated, created)
}

// Bulk POST /api/notifications/bulk
func (h *NotificationHandler) Bulk(c *gin.Context) {
	var payload bulkNotificationsRequest
	if !bindAndValidate(c, &payload) {
		return
	}
	if len(payload.Notifications) > maxBulkNotifications {
		response.Error(c, appErrors.NewBadRequest("too many notifications in one request"))
		return
	}

	created := h.service.SendBulkNotifications(requestContext(c), payload.Notifications)
	if len(created) == 0 {
		response.Error(c, appErrors.ErrInternalServer.WithMessage("failed to create notifications"))
		return
	}
	response.SuccessWithMeta(c, http.StatusCreated, created, &response.Meta{Total: len(created)})
}

// Stats GET /api/notifications/stats
func (h *NotificationHandler) Stats(c *gin.Context) {
	timeRange, ok := notifications.ParseTimeRange(c.Query("range"))
	if !ok {
		response.Error(c, appErrors.NewBadRequest("range must be one of 1d, 7d, 30d"))
		return
	}

	response.Success(c, http.StatusOK, h.service.GetNotificationStats(requestContext(c), timeRange))
}

// ownedNotification resolves the :id parameter and verifies it belongs to the
// caller. Rows owned by someone else are reported as missing.
func (h *NotificationHandler) ownedNotification(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, appErrors.NewBadRequest("notification id is required"))
		return "", false
	}

	owner, err := h.service.Owner(requestContext(c), id)
	if err != nil {
		if errors.Is(err, notifications.ErrNotFound) {
			response.Error(c, appErrors.ErrNotFound.WithMessage("notification not found"))
			return "", false
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return "", false
	}
	if owner != userID {
		response.Error(c, appErrors.ErrNotFound.WithMessage("notification not found"))
		return "", false
	}
	return id, true
}
