package models

import "time"

// StoreEntry is one row of the database-backed durable store that keeps
// reminder dismissals and popup session markers. A nil ExpiresAt never
// expires.
type StoreEntry struct {
	Key       string     `gorm:"primaryKey;size:256"`
	Value     []byte     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the table name independent of the struct name.
func (StoreEntry) TableName() string { return "store_entries" }

// Expired reports whether the entry is past its expiry at now.
func (e StoreEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}
