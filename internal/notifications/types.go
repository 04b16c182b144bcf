package notifications

import (
	"errors"
	"strings"
	"time"

	"github.com/charlesng35/learnhub/internal/models"
)

// ErrNotFound is returned by lookups that match no notification.
var ErrNotFound = errors.New("notification not found")

const (
	defaultListLimit = 50
	maxListLimit     = 200
	defaultRetention = 30
)

// ListOptions filters GetNotifications. A zero Limit selects the default.
type ListOptions struct {
	Limit      int
	UnreadOnly bool
	Priority   string
}

// CreateInput describes a notification to persist. Type and Priority default
// to info and medium when empty.
type CreateInput struct {
	UserID    string         `json:"user_id" validate:"required,max=64"`
	Title     string         `json:"title" validate:"required,notblank,max=255"`
	Message   string         `json:"message"`
	Type      string         `json:"type" validate:"omitempty,oneof=info success warning error"`
	Priority  string         `json:"priority" validate:"omitempty,oneof=low medium high"`
	ActionURL string         `json:"action_url" validate:"omitempty,max=2048,action_url"`
	Metadata  map[string]any `json:"metadata"`
}

// Handlers receives change-feed events for one user. Nil callbacks are skipped.
// OnDelete receives the removed row as last known to the publisher.
type Handlers struct {
	OnInsert func(models.Notification)
	OnUpdate func(models.Notification)
	OnDelete func(models.Notification)
}

// TimeRange is the rolling window for GetNotificationStats.
type TimeRange string

const (
	Range1Day   TimeRange = "1d"
	Range7Days  TimeRange = "7d"
	Range30Days TimeRange = "30d"
)

// ParseTimeRange accepts "1d", "7d" or "30d"; an empty value selects 7d.
func ParseTimeRange(value string) (TimeRange, bool) {
	switch TimeRange(strings.ToLower(strings.TrimSpace(value))) {
	case "", Range7Days:
		return Range7Days, true
	case Range1Day:
		return Range1Day, true
	case Range30Days:
		return Range30Days, true
	default:
		return "", false
	}
}

// Duration returns the window length.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case Range1Day:
		return 24 * time.Hour
	case Range30Days:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Stats aggregates notifications created within a TimeRange.
type Stats struct {
	Total          int64            `json:"total"`
	ByType         map[string]int64 `json:"by_type"`
	ByPriority     map[string]int64 `json:"by_priority"`
	ReadPercentage float64          `json:"read_percentage"`
}

func emptyStats() Stats {
	return Stats{ByType: map[string]int64{}, ByPriority: map[string]int64{}}
}
