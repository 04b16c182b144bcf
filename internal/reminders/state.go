package reminders

import (
	"context"
	"slices"
	"sync"

	"github.com/charlesng35/learnhub/internal/cache"
)

const (
	keyDismissed   = "dismissed-reminders"
	keyViewed      = "viewed-reminders"
	keyLastSession = "last-reminder-session"
)

// ViewerState persists a viewer's viewed and dismissed reminder ids and the
// last session that displayed reminders. Values never expire.
type ViewerState struct {
	store  cache.Store
	viewer string
	mu     sync.Mutex
}

// NewViewerState binds the durable key space of one viewer.
func NewViewerState(store cache.Store, viewerID string) *ViewerState {
	return &ViewerState{store: store, viewer: viewerID}
}

// Key returns the durable key for name in the viewer's space.
func (v *ViewerState) Key(name string) string {
	return "reminders:" + v.viewer + ":" + name
}

// Dismissed returns the dismissed reminder ids.
func (v *ViewerState) Dismissed(ctx context.Context) ([]string, error) {
	return v.readSet(ctx, keyDismissed)
}

// Viewed returns the viewed reminder ids.
func (v *ViewerState) Viewed(ctx context.Context) ([]string, error) {
	return v.readSet(ctx, keyViewed)
}

// AddDismissed records id in the dismissed set.
func (v *ViewerState) AddDismissed(ctx context.Context, id string) error {
	return v.addToSet(ctx, keyDismissed, id)
}

// AddViewed records id in the viewed set.
func (v *ViewerState) AddViewed(ctx context.Context, id string) error {
	return v.addToSet(ctx, keyViewed, id)
}

// LastSession returns the session id that last displayed reminders.
func (v *ViewerState) LastSession(ctx context.Context) (string, bool, error) {
	return cache.GetJSON[string](ctx, v.store, v.Key(keyLastSession))
}

// SetLastSession stores the session id that displayed reminders.
func (v *ViewerState) SetLastSession(ctx context.Context, id string) error {
	return cache.SetJSON(ctx, v.store, v.Key(keyLastSession), id, 0)
}

// Reset clears every durable key of the viewer.
func (v *ViewerState) Reset(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.store.Delete(ctx, v.Key(keyDismissed), v.Key(keyViewed), v.Key(keyLastSession))
}

func (v *ViewerState) readSet(ctx context.Context, name string) ([]string, error) {
	ids, _, err := cache.GetJSON[[]string](ctx, v.store, v.Key(name))
	if err != nil || ids == nil {
		return []string{}, err
	}
	return ids, nil
}

func (v *ViewerState) addToSet(ctx context.Context, name, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	ids, err := v.readSet(ctx, name)
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	return cache.SetJSON(ctx, v.store, v.Key(name), append(ids, id), 0)
}
