package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/learnhub/internal/reminders"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenAppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := Open(path)
	require.NoError(t, err)
	version, err := store.Version()
	require.NoError(t, err)
	require.Equal(t, len(migrations), version)
	require.NoError(t, store.Set(context.Background(), "k", []byte("v"), 0))
	require.NoError(t, store.Close())

	// Reopening must not re-run applied migrations or lose data.
	store, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var rows int
	require.NoError(t, store.db.Get(&rows, "SELECT COUNT(*) FROM schema_version"))
	require.Equal(t, len(migrations), rows)

	value, ok, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), value)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestStoreSetGetDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "a", []byte("2"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("3"), 0))

	value, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), value)

	require.NoError(t, store.Delete(ctx, "a", "b", "never-set"))
	_, ok, err = store.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = store.Get(ctx, "b")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Delete(ctx))
}

func TestStoreExpiry(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "short", []byte("x"), time.Minute))
	require.NoError(t, store.Set(ctx, "other", []byte("x"), time.Minute))
	require.NoError(t, store.Set(ctx, "forever", []byte("y"), 0))

	_, ok, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)

	_, ok, err = store.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	value, ok, err := store.Get(ctx, "forever")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("y"), value)
}

func TestStoreKeysEscapesPrefix(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "reminders:user_1:viewed-reminders", []byte("[]"), 0))
	require.NoError(t, store.Set(ctx, "reminders:userX1:viewed-reminders", []byte("[]"), 0))

	keys, err := store.Keys(ctx, "reminders:user_1:")
	require.NoError(t, err)
	require.Equal(t, []string{"reminders:user_1:viewed-reminders"}, keys)
}

func TestStoreBacksViewerState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	state := reminders.NewViewerState(store, "student-1")

	require.NoError(t, state.AddDismissed(ctx, "r1"))
	require.NoError(t, state.AddDismissed(ctx, "r1"))
	require.NoError(t, state.AddViewed(ctx, "r2"))
	require.NoError(t, state.SetLastSession(ctx, "session-a"))

	dismissed, err := state.Dismissed(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"r1"}, dismissed)

	last, ok, err := state.LastSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "session-a", last)

	require.NoError(t, state.Reset(ctx))
	keys, err := store.Keys(ctx, "reminders:student-1:")
	require.NoError(t, err)
	require.Empty(t, keys)
}
