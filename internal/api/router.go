package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/charlesng35/learnhub/internal/auth"
	"github.com/charlesng35/learnhub/internal/cache"
	"github.com/charlesng35/learnhub/internal/handlers"
	"github.com/charlesng35/learnhub/internal/middleware"
	"github.com/charlesng35/learnhub/internal/monitoring"
	"github.com/charlesng35/learnhub/internal/notifications"
	"github.com/charlesng35/learnhub/internal/realtime"
	"github.com/charlesng35/learnhub/internal/reminders"
)

// Dependencies are the services the HTTP surface is built on.
type Dependencies struct {
	JWT           *iauth.JWTService
	Notifications *notifications.Service
	Reminders     *reminders.Service
	Store         cache.Store
	Hub           *realtime.Hub

	// Health runs the readiness probes; nil reports ready unconditionally.
	Health *monitoring.HealthManager

	// WriteRateLimit caps authoring requests per caller and route each
	// minute; zero disables the limit.
	WriteRateLimit int

	// FallbackData serves demonstration reminders when the catalogue is
	// unavailable or empty.
	FallbackData bool
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if deps.Notifications == nil {
		return nil, fmt.Errorf("notification service must be provided")
	}
	if deps.Reminders == nil {
		return nil, fmt.Errorf("reminder service must be provided")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("durable store must be provided")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("realtime hub must be provided")
	}

	r := gin.New()

	r.HandleMethodNotAllowed = true
	r.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.Metrics(),
		middleware.SecurityHeaders(),
	)

	// Public endpoints
	health := deps.Health
	if health == nil {
		health = monitoring.NewHealthManager(0)
	}
	r.GET("/health", handlers.Health())
	r.GET("/health/ready", handlers.Readiness(health))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	realtimeHandler, err := handlers.NewRealtimeHandler(deps.Hub)
	if err != nil {
		return nil, err
	}
	r.GET("/api/realtime", middleware.StreamAuth(deps.JWT), realtimeHandler.Stream)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications)
	if err != nil {
		return nil, err
	}
	writes := middleware.NewWriteLimiter(deps.WriteRateLimit).Handler()
	registerNotificationRoutes(api, notificationHandler, writes)

	reminderHandler, err := handlers.NewReminderHandler(deps.Reminders, deps.Store,
		handlers.WithReminderFallback(deps.FallbackData),
	)
	if err != nil {
		return nil, err
	}
	registerReminderRoutes(api, reminderHandler, writes)

	r.NoRoute(middleware.NotFoundHandler)
	r.NoMethod(middleware.MethodNotAllowedHandler)

	return r, nil
}
