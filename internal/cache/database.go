package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/learnhub/internal/models"
)

// DatabaseStore keeps entries in the store_entries table of the primary
// database. Expired rows are invisible to Get and removed by PurgeExpired.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore returns nil when db is nil.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: time.Now}
}

var upsertEntry = clause.OnConflict{
	Columns:   []clause.Column{{Name: "key"}},
	DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
}

func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return ErrNoStore
	}
	entry := models.StoreEntry{Key: key, Value: value}
	if ttl > 0 {
		at := s.now().UTC().Add(ttl)
		entry.ExpiresAt = &at
	}
	return s.db.WithContext(ctx).Clauses(upsertEntry).Create(&entry).Error
}

func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, ErrNoStore
	}
	var entry models.StoreEntry
	switch err := s.db.WithContext(ctx).Where("key = ?", key).Take(&entry).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	if entry.Expired(s.now()) {
		// The row is left for PurgeExpired.
		return nil, false, nil
	}
	return entry.Value, true, nil
}

func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	switch {
	case s == nil:
		return ErrNoStore
	case len(keys) == 0:
		return nil
	}
	return s.db.WithContext(ctx).Where("key IN ?", keys).Delete(&models.StoreEntry{}).Error
}

// PurgeExpired deletes entries whose expiry has passed and reports how many
// were removed.
func (s *DatabaseStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, ErrNoStore
	}
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).
		Delete(&models.StoreEntry{})
	return res.RowsAffected, res.Error
}
