package fallback

import (
	"embed"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/charlesng35/learnhub/internal/models"
)

//go:embed fixtures/*.yaml
var fixtureFS embed.FS

// DemoIDPrefix marks every fallback record id.
const DemoIDPrefix = "demo-"

type notificationFixture struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Message   string `yaml:"message"`
	Type      string `yaml:"type"`
	Priority  string `yaml:"priority"`
	ActionURL string `yaml:"action_url"`
	Age       string `yaml:"age"`
	Read      bool   `yaml:"read"`
}

type reminderFixture struct {
	ID             string `yaml:"id"`
	Title          string `yaml:"title"`
	Message        string `yaml:"message"`
	ReminderType   string `yaml:"reminder_type"`
	Priority       string `yaml:"priority"`
	TargetAudience string `yaml:"target_audience"`
	Dismissible    bool   `yaml:"dismissible"`
	Age            string `yaml:"age"`
	ExpiresIn      string `yaml:"expires_in"`
	CreatorName    string `yaml:"creator_name"`
	CreatorRole    string `yaml:"creator_role"`
}

type fixtureSet struct {
	Notifications []notificationFixture `yaml:"notifications"`
	Reminders     []reminderFixture     `yaml:"reminders"`
}

var (
	loadOnce sync.Once
	loaded   fixtureSet
	loadErr  error
)

func fixtures() (fixtureSet, error) {
	loadOnce.Do(func() {
		for _, name := range []string{"fixtures/notifications.yaml", "fixtures/reminders.yaml"} {
			raw, err := fixtureFS.ReadFile(name)
			if err != nil {
				loadErr = fmt.Errorf("fallback: read %s: %w", name, err)
				return
			}
			var set fixtureSet
			if err := yaml.Unmarshal(raw, &set); err != nil {
				loadErr = fmt.Errorf("fallback: decode %s: %w", name, err)
				return
			}
			loaded.Notifications = append(loaded.Notifications, set.Notifications...)
			loaded.Reminders = append(loaded.Reminders, set.Reminders...)
		}
	})
	return loaded, loadErr
}

// Notifications returns the demonstration notification list for userID,
// newest first, with timestamps relative to now.
func Notifications(userID string, now time.Time) []models.Notification {
	set, err := fixtures()
	if err != nil {
		return nil
	}

	out := make([]models.Notification, 0, len(set.Notifications))
	for _, f := range set.Notifications {
		created := now.Add(-parseAge(f.Age))
		n := models.Notification{
			BaseModel: models.BaseModel{ID: f.ID, CreatedAt: created, UpdatedAt: created},
			UserID:    userID,
			Title:     f.Title,
			Message:   f.Message,
			Type:      f.Type,
			Priority:  f.Priority,
			ActionURL: f.ActionURL,
			IsRead:    f.Read,
		}
		if f.Read {
			readAt := created
			n.ReadAt = &readAt
		}
		out = append(out, n)
	}
	return out
}

// Reminders returns the demonstration reminder set with timestamps relative to now.
func Reminders(now time.Time) []models.Reminder {
	set, err := fixtures()
	if err != nil {
		return nil
	}

	out := make([]models.Reminder, 0, len(set.Reminders))
	for _, f := range set.Reminders {
		created := now.Add(-parseAge(f.Age))
		r := models.Reminder{
			BaseModel:      models.BaseModel{ID: f.ID, CreatedAt: created, UpdatedAt: created},
			Title:          f.Title,
			Message:        f.Message,
			ReminderType:   f.ReminderType,
			Priority:       f.Priority,
			TargetAudience: f.TargetAudience,
			IsDismissible:  f.Dismissible,
			CreatorName:    f.CreatorName,
			CreatorRole:    f.CreatorRole,
		}
		if f.ExpiresIn != "" {
			expires := now.Add(parseAge(f.ExpiresIn))
			r.ExpiresAt = &expires
		}
		out = append(out, r)
	}
	return out
}

func parseAge(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}
