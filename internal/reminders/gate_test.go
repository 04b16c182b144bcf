package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/learnhub/internal/cache"
)

type failingStore struct{}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store unavailable")
}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store unavailable")
}

func (failingStore) Delete(context.Context, ...string) error {
	return errors.New("store unavailable")
}

func TestGateShowsOncePerSession(t *testing.T) {
	ctx := context.Background()
	state := NewViewerState(cache.NewMemoryStore(), "student-1")
	session := NewMemorySession()
	gate := NewGate(session, state)

	require.True(t, gate.ShouldShow(ctx))
	require.False(t, gate.ShouldShow(ctx))
	require.False(t, gate.ShouldShow(ctx))

	current, ok := session.CurrentSessionID()
	require.True(t, ok)
	last, ok, err := state.LastSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, current, last)
}

func TestGateShowsAgainForNewSession(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryStore()

	first := NewGate(NewMemorySession(), NewViewerState(store, "student-1"))
	require.True(t, first.ShouldShow(ctx))

	// A new tab starts with an empty ephemeral session but the same durable store.
	second := NewGate(NewMemorySession(), NewViewerState(store, "student-1"))
	require.True(t, second.ShouldShow(ctx))
	require.False(t, second.ShouldShow(ctx))
}

func TestGateExistingSessionDifferentFromMarker(t *testing.T) {
	ctx := context.Background()
	state := NewViewerState(cache.NewMemoryStore(), "student-1")
	require.NoError(t, state.SetLastSession(ctx, "older"))

	session := NewMemorySession()
	session.SetCurrentSessionID("tab-1")
	gate := NewGate(session, state)

	require.True(t, gate.ShouldShow(ctx))
	require.False(t, gate.ShouldShow(ctx))
}

func TestGateStoreFailureHidesReminders(t *testing.T) {
	gate := NewGate(NewMemorySession(), NewViewerState(failingStore{}, "student-1"))
	require.False(t, gate.ShouldShow(context.Background()))
}
