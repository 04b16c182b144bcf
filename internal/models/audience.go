package models

import "strings"

// Viewer roles carried in access tokens.
const (
	RoleStudent = "student"
	RoleStaff   = "staff"
	RoleAdmin   = "admin"
)

// ValidRole reports whether role is one of the known viewer roles.
func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// AudiencesForRole lists the reminder audiences visible to a role. Unknown
// roles only see reminders addressed to everyone.
func AudiencesForRole(role string) []string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleStudent:
		return []string{AudienceAll, AudienceStudents}
	case RoleStaff:
		return []string{AudienceAll, AudienceStaff}
	case RoleAdmin:
		return []string{AudienceAll, AudienceStaff, AudienceAdmins}
	default:
		return []string{AudienceAll}
	}
}

// ReminderTypes lists every accepted reminder type.
func ReminderTypes() []string {
	return []string{
		ReminderTypeGeneral, ReminderTypeAnnouncement, ReminderTypeDeadline, ReminderTypeMaintenance,
		ReminderTypeCourseUpdate, ReminderTypeAssignment, ReminderTypeExam, ReminderTypeEvent,
	}
}
