// Package reminders serves the reminder catalogue and drives the
// once-per-session reminder popup for a viewer.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/internal/realtime"
	"github.com/charlesng35/learnhub/pkg/logger"
	"github.com/charlesng35/learnhub/pkg/validator"
)

// ErrNotFound is returned when a reminder id matches no row.
var ErrNotFound = errors.New("reminder not found")

// Viewer identifies who is looking at reminders.
type Viewer struct {
	ID   string
	Role string
}

// Source yields the active reminders for a viewer.
type Source interface {
	ActiveReminders(ctx context.Context, viewer Viewer) ([]models.Reminder, error)
}

// Broadcaster pushes catalogue events to connected viewers.
type Broadcaster interface {
	BroadcastStream(stream string, message realtime.Message)
}

// CreateInput describes a reminder authored by staff or an admin.
type CreateInput struct {
	Title          string     `json:"title" validate:"required,notblank,max=255"`
	Message        string     `json:"message" validate:"required"`
	ReminderType   string     `json:"reminder_type" validate:"omitempty,oneof=general announcement deadline maintenance course_update assignment exam event"`
	Priority       string     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	TargetAudience string     `json:"target_audience" validate:"omitempty,oneof=all students staff admins"`
	IsDismissible  *bool      `json:"is_dismissible"`
	ExpiresAt      *time.Time `json:"expires_at"`

	CreatedBy   string `json:"-"`
	CreatorName string `json:"-"`
	CreatorRole string `json:"-"`
}

// Service manages the reminder catalogue.
type Service struct {
	db          *gorm.DB
	hub         Broadcaster
	hideExpired bool
	now         func() time.Time
	log         *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBroadcaster publishes reminder.created and reminder.deleted events.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.hub = b }
}

// WithHideExpired drops reminders whose expiry has passed from ListActive.
func WithHideExpired(enabled bool) Option {
	return func(s *Service) { s.hideExpired = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a reminder Service.
func NewService(db *gorm.DB, opts ...Option) (*Service, error) {
	if db == nil {
		return nil, errors.New("reminder service: db is required")
	}
	svc := &Service{db: db, now: time.Now, log: logger.WithModule("reminders")}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create validates and stores a reminder.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Reminder, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Message = strings.TrimSpace(input.Message)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, err
	}

	dismissible := true
	if input.IsDismissible != nil {
		dismissible = *input.IsDismissible
	}

	reminder := models.Reminder{
		Title:          input.Title,
		Message:        input.Message,
		ReminderType:   defaultIfEmpty(input.ReminderType, models.ReminderTypeGeneral),
		Priority:       defaultIfEmpty(input.Priority, models.ReminderPriorityMedium),
		TargetAudience: defaultIfEmpty(input.TargetAudience, models.AudienceAll),
		IsDismissible:  dismissible,
		ExpiresAt:      input.ExpiresAt,
		CreatedBy:      input.CreatedBy,
		CreatorName:    input.CreatorName,
		CreatorRole:    input.CreatorRole,
	}
	// IsDismissible carries no column default, so an explicit false is written.
	if err := s.db.WithContext(ctx).Create(&reminder).Error; err != nil {
		return nil, fmt.Errorf("reminder service: create: %w", err)
	}

	s.broadcast("reminder.created", reminder)
	return &reminder, nil
}

// Get loads one reminder.
func (s *Service) Get(ctx context.Context, id string) (*models.Reminder, error) {
	var reminder models.Reminder
	err := s.db.WithContext(ctx).Take(&reminder, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reminder service: get: %w", err)
	}
	return &reminder, nil
}

// Delete removes a reminder.
func (s *Service) Delete(ctx context.Context, id string) error {
	reminder, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Reminder{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("reminder service: delete: %w", err)
	}
	s.broadcast("reminder.deleted", *reminder)
	return nil
}

// ListActive returns reminders addressed to the viewer's role, most urgent
// first and newest first within a priority.
func (s *Service) ListActive(ctx context.Context, viewer Viewer) ([]models.Reminder, error) {
	var rows []models.Reminder
	if err := s.db.WithContext(ctx).
		Where("target_audience IN ?", models.AudiencesForRole(viewer.Role)).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reminder service: list: %w", err)
	}

	if s.hideExpired {
		now := s.now()
		kept := rows[:0]
		for _, row := range rows {
			if !row.Expired(now) {
				kept = append(kept, row)
			}
		}
		rows = kept
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return models.ReminderPriorityRank(rows[i].Priority) > models.ReminderPriorityRank(rows[j].Priority)
	})
	return rows, nil
}

// ActiveReminders implements Source.
func (s *Service) ActiveReminders(ctx context.Context, viewer Viewer) ([]models.Reminder, error) {
	return s.ListActive(ctx, viewer)
}

func (s *Service) broadcast(event string, reminder models.Reminder) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastStream(realtime.StreamReminders, realtime.Message{
		Event: event,
		Data:  reminder,
		Meta:  map[string]any{"target_audience": reminder.TargetAudience},
	})
}

func defaultIfEmpty(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
