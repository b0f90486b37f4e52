package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type WithdrawalMethod string

const (
	WithdrawalMethodCard   WithdrawalMethod = "card"
	WithdrawalMethodCrypto WithdrawalMethod = "crypto"
)

// Withdrawal is a cash-out request. Status moves one way only:
// pending → approved or pending → rejected, both terminal. The ledger
// entry is written on approval, never on creation.
type Withdrawal struct {
	ID             string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string           `gorm:"type:uuid;not null;index:idx_wd_user_status,priority:1" json:"user_id"`
	Amount         decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"amount"`
	Method         WithdrawalMethod `gorm:"not null" json:"method"`
	PaymentDetails string           `gorm:"size:500;not null" json:"payment_details"`

	Status          WithdrawalStatus `gorm:"not null;default:'pending';index:idx_wd_user_status,priority:2;index" json:"status"`
	RejectionReason *string          `json:"rejection_reason,omitempty"` // required when rejected

	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}
