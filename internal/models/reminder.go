package models

import "time"

// Reminder types.
const (
	ReminderTypeGeneral      = "general"
	ReminderTypeAnnouncement = "announcement"
	ReminderTypeDeadline     = "deadline"
	ReminderTypeMaintenance  = "maintenance"
	ReminderTypeCourseUpdate = "course_update"
	ReminderTypeAssignment   = "assignment"
	ReminderTypeExam         = "exam"
	ReminderTypeEvent        = "event"
)

// Reminder priorities, lowest first.
const (
	ReminderPriorityLow    = "low"
	ReminderPriorityMedium = "medium"
	ReminderPriorityHigh   = "high"
	ReminderPriorityUrgent = "urgent"
)

// Reminder audiences.
const (
	AudienceAll      = "all"
	AudienceStudents = "students"
	AudienceStaff    = "staff"
	AudienceAdmins   = "admins"
)

// Reminder is a staff/admin authored message surfaced once per session.
// Per-viewer viewed/dismissed flags are not stored here.
type Reminder struct {
	BaseModel

	Title          string     `gorm:"type:varchar(255);not null" json:"title"`
	Message        string     `gorm:"type:text" json:"message"`
	ReminderType   string     `gorm:"type:varchar(32);not null;default:'general'" json:"reminder_type"`
	Priority       string     `gorm:"type:varchar(16);not null;default:'medium'" json:"priority"`
	TargetAudience string     `gorm:"type:varchar(32);not null;default:'all';index" json:"target_audience"`
	IsDismissible  bool       `gorm:"not null" json:"is_dismissible"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`

	CreatedBy   string `gorm:"type:varchar(64)" json:"created_by"`
	CreatorName string `gorm:"type:varchar(255)" json:"creator_name"`
	CreatorRole string `gorm:"type:varchar(32)" json:"creator_role"`
}

// Expired reports whether the reminder carries an expiry that lies before now.
func (r Reminder) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// ReminderPriorityRank orders priorities; unknown values rank lowest.
func ReminderPriorityRank(priority string) int {
	switch priority {
	case ReminderPriorityUrgent:
		return 4
	case ReminderPriorityHigh:
		return 3
	case ReminderPriorityMedium:
		return 2
	case ReminderPriorityLow:
		return 1
	default:
		return 0
	}
}
