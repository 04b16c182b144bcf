package reminders

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/learnhub/pkg/logger"
)

// Gate decides whether reminders are shown in the current session. It
// answers true at most once per distinct session id.
type Gate struct {
	session SessionStore
	state   *ViewerState
	newID   func() string
	log     *zap.Logger
}

// NewGate constructs a Gate. Fresh session ids are random UUIDs.
func NewGate(session SessionStore, state *ViewerState) *Gate {
	return &Gate{
		session: session,
		state:   state,
		newID:   uuid.NewString,
		log:     logger.WithModule("reminders"),
	}
}

// ShouldShow reports whether this session should display reminders and, if
// so, records the session as the one that did. Store failures yield false.
func (g *Gate) ShouldShow(ctx context.Context) bool {
	current, ok := g.session.CurrentSessionID()
	if !ok || current == "" {
		current = g.newID()
		g.session.SetCurrentSessionID(current)
	}

	last, _, err := g.state.LastSession(ctx)
	if err != nil {
		g.log.Warn("read last reminder session", zap.String("viewer", g.state.viewer), zap.Error(err))
		return false
	}
	if last == current {
		return false
	}

	if err := g.state.SetLastSession(ctx, current); err != nil {
		g.log.Warn("store last reminder session", zap.String("viewer", g.state.viewer), zap.Error(err))
		return false
	}
	return true
}
