package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserClass determines which currency a member's commissions accrue in.
type UserClass string

const (
	UserClassPlayer     UserClass = "player"     // earns points
	UserClassInfluencer UserClass = "influencer" // earns cash
)

// Member is a participant in the referral network.
//
// Rank is deliberately not a column: it is derived from the active
// direct-referral count at read time (services.RankOf), so it can never
// drift from the underlying activity.
type Member struct {
	ID           string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username     string  `gorm:"index;not null" json:"username"`
	FirstName    *string `json:"first_name,omitempty"`
	LastName     *string `json:"last_name,omitempty"`
	ReferralCode string  `gorm:"uniqueIndex;not null;size:20" json:"referral_code"`

	// Write-once back-reference to the referring member. Set only by
	// the graph attach path, never updated afterwards.
	ReferrerID *string   `gorm:"index;type:uuid" json:"referrer_id,omitempty"`
	Class      UserClass `gorm:"not null;default:'player'" json:"class"`

	// Running balances, updated in the same DB transaction as every
	// ledger append. Invariant: each equals the signed fold over the
	// member's transactions in that currency.
	PointsBalance decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"points_balance"`
	CashBalance   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"cash_balance"`
	TotalDeposits decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_deposits"`

	// Set once, on the member's first qualifying monetizable event.
	// A direct referrer's active-referral count is the number of its
	// children with this field set.
	ActivatedAt *time.Time `gorm:"index" json:"activated_at,omitempty"`

	IsBlocked bool `gorm:"default:false" json:"is_blocked"`

	Timestamps
}

// BalanceFor returns the running balance for the given currency.
func (m *Member) BalanceFor(c Currency) decimal.Decimal {
	if c == CurrencyCash {
		return m.CashBalance
	}
	return m.PointsBalance
}

// CommissionCurrency is the currency this member's commissions are paid in.
func (m *Member) CommissionCurrency() Currency {
	if m.Class == UserClassInfluencer {
		return CurrencyCash
	}
	return CurrencyPoints
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
