package realtime

import (
	"github.com/charlesng35/learnhub/internal/changefeed"
	"github.com/charlesng35/learnhub/internal/models"
)

// Bridge forwards notification row changes to the owner's realtime connections.
type Bridge struct {
	cancel func()
}

// NewBridge starts forwarding changes from feed to hub.
func NewBridge(hub *Hub, feed *changefeed.Feed[models.Notification]) *Bridge {
	cancel := feed.Listen("", func(change changefeed.Change[models.Notification]) {
		message, ok := notificationMessage(change)
		if !ok {
			return
		}
		hub.BroadcastToUser(StreamNotifications, change.OwnerID, message)
	})
	return &Bridge{cancel: cancel}
}

// Close stops forwarding.
func (b *Bridge) Close() {
	if b != nil && b.cancel != nil {
		b.cancel()
	}
}

func notificationMessage(change changefeed.Change[models.Notification]) (Message, bool) {
	switch change.Type {
	case changefeed.Insert:
		if change.New == nil {
			return Message{}, false
		}
		return Message{Event: EventNotificationCreated, Data: change.New}, true
	case changefeed.Update:
		if change.New == nil {
			return Message{}, false
		}
		return Message{Event: EventNotificationUpdated, Data: change.New}, true
	case changefeed.Delete:
		if change.Old == nil {
			return Message{}, false
		}
		return Message{Event: EventNotificationDeleted, Data: change.Old}, true
	default:
		return Message{}, false
	}
}
