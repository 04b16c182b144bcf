package handlers

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/learnhub/internal/cache"
	"github.com/charlesng35/learnhub/internal/fallback"
	"github.com/charlesng35/learnhub/internal/middleware"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/internal/reminders"
	appErrors "github.com/charlesng35/learnhub/pkg/errors"
	"github.com/charlesng35/learnhub/pkg/logger"
	"github.com/charlesng35/learnhub/pkg/metrics"
	"github.com/charlesng35/learnhub/pkg/response"
)

// ReminderSessionCookie carries the per-browser-session reminder session id.
const ReminderSessionCookie = "learnhub_reminder_session"

// ReminderHandler exposes the reminder catalogue and the per-viewer popup pipeline.
type ReminderHandler struct {
	service  *reminders.Service
	store    cache.Store
	fallback bool
	now      func() time.Time
	log      *zap.Logger
}

// ReminderHandlerOption configures a ReminderHandler.
type ReminderHandlerOption func(*ReminderHandler)

// WithReminderFallback serves the demonstration reminders when the catalogue
// is unavailable or empty.
func WithReminderFallback(enabled bool) ReminderHandlerOption {
	return func(h *ReminderHandler) { h.fallback = enabled }
}

// NewReminderHandler constructs a ReminderHandler. store holds every viewer's
// durable viewed/dismissed state.
func NewReminderHandler(service *reminders.Service, store cache.Store, opts ...ReminderHandlerOption) (*ReminderHandler, error) {
	if service == nil {
		return nil, errors.New("reminder handler: service is required")
	}
	if store == nil {
		return nil, errors.New("reminder handler: store is required")
	}
	h := &ReminderHandler{
		service: service,
		store:   store,
		now:     time.Now,
		log:     logger.WithModule("handlers"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// List GET /api/reminders
func (h *ReminderHandler) List(c *gin.Context) {
	viewer, ok := viewerFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result := h.activeFor(c, viewer)
	response.SuccessWithMeta(c, http.StatusOK, result.Data, &response.Meta{
		Total:    len(result.Data),
		Fallback: result.Fallback,
	})
}

// Create POST /api/reminders
func (h *ReminderHandler) Create(c *gin.Context) {
	viewer, ok := viewerFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload reminders.CreateInput
	if !bindAndValidate(c, &payload) {
		return
	}
	payload.CreatedBy = viewer.ID
	payload.CreatorRole = viewer.Role
	if claims, ok := middleware.ClaimsFrom(c); ok {
		payload.CreatorName = claims.Name
	}

	created, err := h.service.Create(requestContext(c), payload)
	if err != nil {
		response.Error(c, validationError(err))
		return
	}
	response.Success(c, http.StatusCreated, created)
}

// Delete DELETE /api/reminders/:id
func (h *ReminderHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, appErrors.NewBadRequest("reminder id is required"))
		return
	}

	if err := h.service.Delete(requestContext(c), id); err != nil {
		if errors.Is(err, reminders.ErrNotFound) {
			response.Error(c, appErrors.ErrNotFound.WithMessage("reminder not found"))
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Popup GET /api/reminders/popup runs the session gate and, when it passes,
// returns the annotated reminder stack with its first entry marked viewed.
func (h *ReminderHandler) Popup(c *gin.Context) {
	viewer, ok := viewerFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	state := reminders.NewViewerState(h.store, viewer.ID)
	gate := reminders.NewGate(newCookieSession(c, ReminderSessionCookie), state)
	popup := reminders.NewPopup(gate, h.service, state,
		reminders.WithFallback(h.fallback),
		reminders.WithPopupClock(h.now),
	)
	popup.Open(requestContext(c), viewer)

	response.Success(c, http.StatusOK, popup.Snapshot())
}

// View POST /api/reminders/:id/view
func (h *ReminderHandler) View(c *gin.Context) {
	viewer, ok := viewerFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, appErrors.NewBadRequest("reminder id is required"))
		return
	}

	if err := reminders.NewViewerState(h.store, viewer.ID).AddViewed(requestContext(c), id); err != nil {
		h.log.Warn("mark reminder viewed", zap.String("viewer", viewer.ID), zap.String("reminder", id), zap.Error(err))
		response.Success(c, http.StatusOK, gin.H{"viewed": false})
		return
	}
	response.Success(c, http.StatusOK, gin.H{"viewed": true})
}

// Dismiss POST /api/reminders/:id/dismiss. Non-dismissible reminders are
// rejected with 409 and never enter the dismissed set.
func (h *ReminderHandler) Dismiss(c *gin.Context) {
	viewer, ok := viewerFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.Error(c, appErrors.NewBadRequest("reminder id is required"))
		return
	}

	ctx := requestContext(c)
	reminder, err := h.lookup(c, viewer, id)
	if err != nil {
		if errors.Is(err, reminders.ErrNotFound) {
			response.Error(c, appErrors.ErrNotFound.WithMessage("reminder not found"))
			return
		}
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}
	if !reminder.IsDismissible {
		response.Error(c, appErrors.ErrNotDismissible)
		return
	}

	state := reminders.NewViewerState(h.store, viewer.ID)
	if err := state.AddDismissed(ctx, id); err != nil {
		h.log.Warn("dismiss reminder", zap.String("viewer", viewer.ID), zap.String("reminder", id), zap.Error(err))
		response.Success(c, http.StatusOK, gin.H{"dismissed": false})
		return
	}
	if err := state.AddViewed(ctx, id); err != nil {
		h.log.Warn("mark dismissed reminder viewed", zap.String("viewer", viewer.ID), zap.String("reminder", id), zap.Error(err))
	}
	metrics.RemindersDismissed.Inc()
	response.Success(c, http.StatusOK, gin.H{"dismissed": true})
}

// State GET /api/reminders/state
func (h *ReminderHandler) State(c *gin.Context) {
	viewer, ok := viewerFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	ctx := requestContext(c)
	state := reminders.NewViewerState(h.store, viewer.ID)
	dismissed, err := state.Dismissed(ctx)
	if err != nil {
		response.Error(c, appErrors.ErrUnavailable.WithInternal(err))
		return
	}
	viewed, err := state.Viewed(ctx)
	if err != nil {
		response.Error(c, appErrors.ErrUnavailable.WithInternal(err))
		return
	}
	session, _, err := state.LastSession(ctx)
	if err != nil {
		response.Error(c, appErrors.ErrUnavailable.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"dismissed":    dismissed,
		"viewed":       viewed,
		"last_session": session,
	})
}

// ResetState POST /api/reminders/state/reset clears the viewer's durable
// reminder keys and ends the current reminder session.
func (h *ReminderHandler) ResetState(c *gin.Context) {
	viewer, ok := viewerFrom(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := reminders.NewViewerState(h.store, viewer.ID).Reset(requestContext(c)); err != nil {
		response.Error(c, appErrors.ErrUnavailable.WithInternal(err))
		return
	}
	clearCookie(c, ReminderSessionCookie)
	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

func (h *ReminderHandler) activeFor(c *gin.Context, viewer reminders.Viewer) fallback.Result[[]models.Reminder] {
	rows, err := h.service.ListActive(requestContext(c), viewer)
	if err == nil && len(rows) > 0 {
		return fallback.Live(rows)
	}
	if err != nil {
		h.log.Warn("list reminders", zap.String("viewer", viewer.ID), zap.Error(err))
	}
	if !h.fallback {
		return fallback.Result[[]models.Reminder]{Data: []models.Reminder{}, Err: err}
	}
	return fallback.Substitute(reminders.FallbackReminders(viewer, h.now()), err)
}

// lookup resolves a reminder addressed to the viewer's role, including
// demonstration reminders when the fallback set is enabled. Reminders for
// other audiences are reported as not found.
func (h *ReminderHandler) lookup(c *gin.Context, viewer reminders.Viewer, id string) (*models.Reminder, error) {
	if h.fallback && strings.HasPrefix(id, fallback.DemoIDPrefix) {
		for _, demo := range reminders.FallbackReminders(viewer, h.now()) {
			if demo.ID == id {
				return &demo, nil
			}
		}
		return nil, reminders.ErrNotFound
	}
	reminder, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(models.AudiencesForRole(viewer.Role), reminder.TargetAudience) {
		return nil, reminders.ErrNotFound
	}
	return reminder, nil
}

// cookieSession adapts a browser-session cookie to reminders.SessionStore.
// The cookie carries no expiry so it ends with the browser session.
type cookieSession struct {
	c    *gin.Context
	name string
	id   string
}

func newCookieSession(c *gin.Context, name string) *cookieSession {
	return &cookieSession{c: c, name: name}
}

func (s *cookieSession) CurrentSessionID() (string, bool) {
	if s.id != "" {
		return s.id, true
	}
	value, err := s.c.Cookie(s.name)
	if err != nil {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (s *cookieSession) SetCurrentSessionID(id string) {
	s.id = id
	s.c.SetSameSite(http.SameSiteLaxMode)
	s.c.SetCookie(s.name, id, 0, "/", "", s.c.Request != nil && s.c.Request.TLS != nil, true)
}

func clearCookie(c *gin.Context, name string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", c.Request != nil && c.Request.TLS != nil, true)
}
