package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/learnhub/internal/handlers"
	"github.com/charlesng35/learnhub/internal/middleware"
	"github.com/charlesng35/learnhub/internal/models"
)

var (
	staffOnly = middleware.RequireRole(models.RoleStaff, models.RoleAdmin)
	adminOnly = middleware.RequireRole(models.RoleAdmin)
)

// Viewer routes act on the caller's own notifications. Authoring and
// statistics are restricted by role, and authoring is metered by writes.
func registerNotificationRoutes(api *gin.RouterGroup, h *handlers.NotificationHandler, writes gin.HandlerFunc) {
	n := api.Group("/notifications")
	n.GET("", h.List)
	n.GET("/unread-count", h.UnreadCount)
	n.POST("/read-all", h.MarkAllRead)
	n.POST("/:id/read", h.MarkRead)
	n.DELETE("/:id", h.Delete)

	n.POST("", staffOnly, writes, h.Create)
	n.POST("/bulk", staffOnly, writes, h.Bulk)
	n.GET("/stats", adminOnly, h.Stats)
}

func registerReminderRoutes(api *gin.RouterGroup, h *handlers.ReminderHandler, writes gin.HandlerFunc) {
	r := api.Group("/reminders")
	r.GET("", h.List)
	r.GET("/popup", h.Popup)

	state := r.Group("/state")
	state.GET("", h.State)
	state.POST("/reset", h.ResetState)

	r.POST("/:id/view", h.View)
	r.POST("/:id/dismiss", h.Dismiss)

	r.POST("", staffOnly, writes, h.Create)
	r.DELETE("/:id", staffOnly, h.Delete)
}
