package reminders

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/learnhub/internal/fallback"
	"github.com/charlesng35/learnhub/internal/models"
	"github.com/charlesng35/learnhub/pkg/logger"
	"github.com/charlesng35/learnhub/pkg/metrics"
)

// Item is a reminder annotated with the viewer's state.
type Item struct {
	models.Reminder
	IsViewed    bool `json:"is_viewed"`
	IsDismissed bool `json:"is_dismissed"`
}

// PopupSnapshot is a copy of the popup state.
type PopupSnapshot struct {
	Visible  bool   `json:"visible"`
	Index    int    `json:"index"`
	Items    []Item `json:"items"`
	Fallback bool   `json:"fallback"`
}

// PopupOption configures a Popup.
type PopupOption func(*Popup)

// WithFallback substitutes the demonstration reminders when the source fails
// or returns nothing.
func WithFallback(enabled bool) PopupOption {
	return func(p *Popup) { p.fallbackEnabled = enabled }
}

// WithPopupClock overrides the time source used for fallback timestamps.
func WithPopupClock(now func() time.Time) PopupOption {
	return func(p *Popup) {
		if now != nil {
			p.now = now
		}
	}
}

// Remote records dismissals on the server so other devices of the viewer
// stop showing them.
type Remote interface {
	DismissReminder(ctx context.Context, id string) error
}

// WithRemote mirrors every local dismissal to r in the background. Dismissals
// of demonstration reminders are not mirrored.
func WithRemote(r Remote) PopupOption {
	return func(p *Popup) { p.remote = r }
}

// Popup is the reminder stack shown once per session.
type Popup struct {
	gate            *Gate
	source          Source
	state           *ViewerState
	fallbackEnabled bool
	remote          Remote
	now             func() time.Time
	log             *zap.Logger

	mu       sync.Mutex
	items    []Item
	index    int
	visible  bool
	fallback bool
}

// NewPopup constructs a hidden popup.
func NewPopup(gate *Gate, source Source, state *ViewerState, opts ...PopupOption) *Popup {
	p := &Popup{
		gate:   gate,
		source: source,
		state:  state,
		now:    time.Now,
		log:    logger.WithModule("reminders"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open runs the session gate and, when it passes, loads the stack and shows
// its first reminder. It reports whether the popup is visible.
func (p *Popup) Open(ctx context.Context, viewer Viewer) bool {
	if !p.gate.ShouldShow(ctx) {
		metrics.ReminderPopups.WithLabelValues("skipped").Inc()
		return false
	}

	result := p.fetch(ctx, viewer)

	dismissed, err := p.state.Dismissed(ctx)
	if err != nil {
		p.log.Warn("read dismissed reminders", zap.String("viewer", viewer.ID), zap.Error(err))
	}
	viewed, err := p.state.Viewed(ctx)
	if err != nil {
		p.log.Warn("read viewed reminders", zap.String("viewer", viewer.ID), zap.Error(err))
	}

	items := make([]Item, 0, len(result.Data))
	for _, reminder := range result.Data {
		if slices.Contains(dismissed, reminder.ID) {
			continue
		}
		items = append(items, Item{
			Reminder:    reminder,
			IsViewed:    slices.Contains(viewed, reminder.ID),
			IsDismissed: slices.Contains(dismissed, reminder.ID),
		})
	}
	items = slices.DeleteFunc(items, func(it Item) bool { return it.IsViewed && it.IsDismissed })

	p.mu.Lock()
	p.items = items
	p.index = 0
	p.fallback = result.Fallback
	p.visible = len(items) > 0
	p.mu.Unlock()

	if len(items) == 0 {
		metrics.ReminderPopups.WithLabelValues("empty").Inc()
		return false
	}
	metrics.ReminderPopups.WithLabelValues("shown").Inc()
	p.markViewed(ctx, 0)
	return true
}

func (p *Popup) fetch(ctx context.Context, viewer Viewer) fallback.Result[[]models.Reminder] {
	reminders, err := p.source.ActiveReminders(ctx, viewer)
	if err == nil && len(reminders) > 0 {
		return fallback.Live(reminders)
	}
	if err != nil {
		p.log.Warn("fetch reminders", zap.String("viewer", viewer.ID), zap.Error(err))
	}
	if !p.fallbackEnabled {
		return fallback.Result[[]models.Reminder]{Data: []models.Reminder{}, Err: err}
	}

	return fallback.Substitute(FallbackReminders(viewer, p.now()), err)
}

// FallbackReminders returns the demonstration reminders addressed to the
// viewer's role.
func FallbackReminders(viewer Viewer, now time.Time) []models.Reminder {
	audiences := models.AudiencesForRole(viewer.Role)
	return slices.DeleteFunc(fallback.Reminders(now), func(r models.Reminder) bool {
		return !slices.Contains(audiences, r.TargetAudience)
	})
}

// Next moves to the following reminder. It reports whether the index moved.
func (p *Popup) Next(ctx context.Context) bool {
	return p.step(ctx, 1)
}

// Previous moves to the preceding reminder. It reports whether the index moved.
func (p *Popup) Previous(ctx context.Context) bool {
	return p.step(ctx, -1)
}

func (p *Popup) step(ctx context.Context, delta int) bool {
	p.mu.Lock()
	target := p.index + delta
	if !p.visible || target < 0 || target >= len(p.items) {
		p.mu.Unlock()
		return false
	}
	p.index = target
	p.mu.Unlock()

	p.markViewed(ctx, target)
	return true
}

// Dismiss records id as dismissed and removes it from the stack. It returns
// false for unknown ids and for reminders that cannot be dismissed.
func (p *Popup) Dismiss(ctx context.Context, id string) bool {
	p.mu.Lock()
	idx := slices.IndexFunc(p.items, func(it Item) bool { return it.ID == id })
	if idx < 0 {
		p.mu.Unlock()
		return false
	}
	if !p.items[idx].IsDismissible {
		p.mu.Unlock()
		p.log.Debug("ignoring dismiss of non-dismissible reminder", zap.String("reminder_id", id))
		return false
	}
	demo := p.fallback
	p.mu.Unlock()

	if err := p.state.AddDismissed(ctx, id); err != nil {
		p.log.Warn("store dismissed reminder", zap.String("reminder_id", id), zap.Error(err))
	} else {
		metrics.RemindersDismissed.Inc()
	}
	if p.remote != nil && !demo {
		go p.mirrorDismiss(context.WithoutCancel(ctx), id)
	}

	p.mu.Lock()
	idx = slices.IndexFunc(p.items, func(it Item) bool { return it.ID == id })
	if idx < 0 {
		p.mu.Unlock()
		return true
	}
	p.items = slices.Delete(p.items, idx, idx+1)
	if len(p.items) == 0 {
		p.visible = false
		p.index = 0
		p.mu.Unlock()
		return true
	}
	if idx > p.index {
		p.mu.Unlock()
		return true
	}
	// The index is only clamped, so removing an earlier item advances the
	// view to whatever now occupies the same position.
	p.index = min(p.index, len(p.items)-1)
	current := p.index
	p.mu.Unlock()

	p.markViewed(ctx, current)
	return true
}

func (p *Popup) mirrorDismiss(ctx context.Context, id string) {
	if err := p.remote.DismissReminder(ctx, id); err != nil {
		p.log.Warn("mirror reminder dismissal", zap.String("reminder_id", id), zap.Error(err))
	}
}

// CloseAll hides the popup without dismissing anything.
func (p *Popup) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = false
}

// Visible reports whether the popup is shown.
func (p *Popup) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Fallback reports whether the stack holds demonstration reminders.
func (p *Popup) Fallback() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fallback
}

// Index returns the current position in the stack.
func (p *Popup) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Items returns a copy of the stack.
func (p *Popup) Items() []Item {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.items)
}

// Current returns the reminder on screen.
func (p *Popup) Current() (Item, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible || p.index >= len(p.items) {
		return Item{}, false
	}
	return p.items[p.index], true
}

// Snapshot returns a copy of the full popup state.
func (p *Popup) Snapshot() PopupSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PopupSnapshot{
		Visible:  p.visible,
		Index:    p.index,
		Items:    slices.Clone(p.items),
		Fallback: p.fallback,
	}
}

func (p *Popup) markViewed(ctx context.Context, idx int) {
	p.mu.Lock()
	if idx < 0 || idx >= len(p.items) {
		p.mu.Unlock()
		return
	}
	p.items[idx].IsViewed = true
	id := p.items[idx].ID
	p.mu.Unlock()

	if err := p.state.AddViewed(ctx, id); err != nil {
		p.log.Warn("store viewed reminder", zap.String("reminder_id", id), zap.Error(err))
	}
}
