package models

import "time"

// MaxReferralDepth caps commission fan-out and tree display. Deeper
// chains may exist in storage but are never materialized past this.
const MaxReferralDepth = 10

// ReferralRelation is one row of the referral closure: ancestor X is
// `level` hops above descendant Y. Level 1 is the direct referrer.
// Rows are written only by the graph attach path, all-or-nothing.
type ReferralRelation struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	AncestorID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_ancestor_descendant;index:idx_ancestor_level,priority:1" json:"ancestor_id"`
	DescendantID string    `gorm:"type:uuid;not null;uniqueIndex:idx_ancestor_descendant;index" json:"descendant_id"`
	Level        int       `gorm:"not null;index:idx_ancestor_level,priority:2" json:"level"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
