package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the unit a transaction is denominated in.
type Currency string

const (
	CurrencyPoints Currency = "points"
	CurrencyCash   Currency = "cash"
)

type TransactionType string

const (
	TransactionReferralBonus    TransactionType = "referral_bonus"
	TransactionDepositBonus     TransactionType = "deposit_bonus"
	TransactionTournamentBonus  TransactionType = "tournament_bonus"
	TransactionTournamentReward TransactionType = "tournament_reward"
	TransactionWithdrawal       TransactionType = "withdrawal"
)

// CommissionTypes are the transaction types counted as earnings.
var CommissionTypes = []TransactionType{
	TransactionReferralBonus,
	TransactionDepositBonus,
	TransactionTournamentBonus,
	TransactionTournamentReward,
}

// Transaction is one immutable ledger entry. The ledger is append-only:
// no update or delete path exists anywhere in the codebase, corrections
// are new offsetting entries.
type Transaction struct {
	ID       string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string          `gorm:"type:uuid;not null;index:idx_tx_user_created,priority:1" json:"user_id"`
	Amount   decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"` // signed; negative only for withdrawals
	Currency Currency        `gorm:"not null" json:"currency"`
	Type     TransactionType `gorm:"not null;index" json:"type"`

	// The downstream member whose event caused this commission, and how
	// many levels below the owner they sit (1 = direct referral).
	RelatedUserID *string `gorm:"type:uuid;index" json:"related_user_id,omitempty"`
	RelatedLevel  *int    `json:"related_level,omitempty"`

	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_tx_user_created,priority:2,sort:desc" json:"created_at"`
}
