package models

import "time"

// ProcessedEvent is the idempotency index for external triggers. A row
// is inserted in the same DB transaction as the commission writes it
// guards, so under at-least-once delivery exactly one delivery commits;
// replays hit the unique index and are reported as no-op success.
type ProcessedEvent struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	DedupKey  string    `gorm:"uniqueIndex;not null;size:128" json:"dedup_key"`
	Kind      string    `gorm:"not null" json:"kind"` // registration | deposit | tournament
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
