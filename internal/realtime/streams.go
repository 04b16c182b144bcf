package realtime

import "strings"

// Named realtime streams.
const (
	StreamNotifications = "notifications"
	StreamReminders     = "reminders"
)

// Notification stream events.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationUpdated = "notification.updated"
	EventNotificationDeleted = "notification.deleted"
)

// Control replies sent by the hub itself.
const (
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventPong         = "pong"
	EventError        = "error"
)

// DefaultStreams are the streams a hub publishes unless configured otherwise.
var DefaultStreams = []string{StreamNotifications, StreamReminders}

// NormalizeStream canonicalises a stream name.
func NormalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

// NormalizeStreams canonicalises names, dropping blanks and duplicates while
// keeping first-seen order.
func NormalizeStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = NormalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, dup := seen[stream]; dup {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
