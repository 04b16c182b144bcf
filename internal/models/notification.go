package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types.
const (
	NotificationTypeInfo    = "info"
	NotificationTypeSuccess = "success"
	NotificationTypeWarning = "warning"
	NotificationTypeError   = "error"
)

// Notification priorities.
const (
	NotificationPriorityLow    = "low"
	NotificationPriorityMedium = "medium"
	NotificationPriorityHigh   = "high"
)

// Notification is an in-app message owned by exactly one user.
type Notification struct {
	BaseModel

	UserID    string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Title     string         `gorm:"type:varchar(255);not null" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	Type      string         `gorm:"type:varchar(16);not null;default:'info'" json:"type"`
	Priority  string         `gorm:"type:varchar(16);not null;default:'medium';index" json:"priority"`
	ActionURL string         `gorm:"type:text" json:"action_url,omitempty"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`

	IsRead bool       `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`
}

// NotificationTypes lists every accepted notification type.
func NotificationTypes() []string {
	return []string{NotificationTypeInfo, NotificationTypeSuccess, NotificationTypeWarning, NotificationTypeError}
}

// NotificationPriorities lists every accepted notification priority.
func NotificationPriorities() []string {
	return []string{NotificationPriorityLow, NotificationPriorityMedium, NotificationPriorityHigh}
}
