package checks

import (
	"context"
	"fmt"

	"github.com/charlesng35/learnhub/internal/monitoring"
)

// ListenerCounter is satisfied by changefeed.Feed.
type ListenerCounter interface {
	Listeners() int
}

// ChangeFeed reports degraded when nothing listens on the notification feed,
// which means the realtime bridge is not forwarding events.
func ChangeFeed(feed ListenerCounter) monitoring.Check {
	return monitoring.NewCheck("changefeed", func(context.Context) monitoring.ProbeResult {
		if feed == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "change feed not configured"}
		}
		listeners := feed.Listeners()
		if listeners == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "no listeners"}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: fmt.Sprintf("%d listeners", listeners)}
	})
}
