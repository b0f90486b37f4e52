package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"referral-engine/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WithdrawalService governs the cash-out state machine:
// pending → approved | rejected, both terminal. Balance checks and the
// approval-time ledger write run under the owner's lock plus one DB
// transaction, so a second concurrent approval cannot overdraw.
type WithdrawalService struct {
	DB    *gorm.DB
	locks *UserLocks
}

func NewWithdrawalService(db *gorm.DB, locks *UserLocks) *WithdrawalService {
	return &WithdrawalService{DB: db, locks: locks}
}

// Create opens a pending request. The amount is validated against the
// live cash balance; no reservation is held — approval re-checks.
func (s *WithdrawalService) Create(ctx context.Context, userID string, amount decimal.Decimal, method models.WithdrawalMethod, details string) (*models.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if method != models.WithdrawalMethodCard && method != models.WithdrawalMethodCrypto {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, method)
	}
	if strings.TrimSpace(details) == "" {
		return nil, fmt.Errorf("%w: payment details are required", ErrInvalidInput)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	w := models.Withdrawal{
		ID:             uuid.NewString(),
		UserID:         userID,
		Amount:         amount,
		Method:         method,
		PaymentDetails: details,
		Status:         models.WithdrawalPending,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := balanceTx(tx, userID, models.CurrencyCash)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return ErrInsufficientBalance
		}
		return tx.Create(&w).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[WITHDRAWAL] created %s for %s: %s cash", w.ID, userID, amount)
	return &w, nil
}

// Approve resolves a pending request and writes the negative ledger
// entry. The balance is re-checked inside the same lock + transaction;
// if it has since dropped below the amount the request stays pending.
func (s *WithdrawalService) Approve(ctx context.Context, requestID string) error {
	w, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(w.UserID)
	defer unlock()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.Withdrawal
		if err := tx.Where("id = ?", requestID).First(&req).Error; err != nil {
			return err
		}
		if req.Status != models.WithdrawalPending {
			return ErrAlreadyResolved
		}

		balance, err := balanceTx(tx, req.UserID, models.CurrencyCash)
		if err != nil {
			return err
		}
		if balance.LessThan(req.Amount) {
			return ErrInsufficientBalance
		}

		entry := models.Transaction{
			UserID:      req.UserID,
			Amount:      req.Amount.Neg(),
			Currency:    models.CurrencyCash,
			Type:        models.TransactionWithdrawal,
			Description: fmt.Sprintf("Withdrawal via %s: %s", req.Method, req.PaymentDetails),
		}
		if err := appendTx(tx, &entry); err != nil {
			return err
		}

		now := time.Now()
		return tx.Model(&models.Withdrawal{}).
			Where("id = ? AND status = ?", req.ID, models.WithdrawalPending).
			Updates(map[string]any{
				"status":      models.WithdrawalApproved,
				"resolved_at": &now,
			}).Error
	})
}

// Reject resolves a pending request with a mandatory reason. No ledger
// entry is written.
func (s *WithdrawalService) Reject(ctx context.Context, requestID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.Withdrawal
		if err := tx.Where("id = ?", requestID).First(&req).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownRequest
			}
			return err
		}
		if req.Status != models.WithdrawalPending {
			return ErrAlreadyResolved
		}
		now := time.Now()
		return tx.Model(&models.Withdrawal{}).
			Where("id = ? AND status = ?", req.ID, models.WithdrawalPending).
			Updates(map[string]any{
				"status":           models.WithdrawalRejected,
				"rejection_reason": reason,
				"resolved_at":      &now,
			}).Error
	})
}

func (s *WithdrawalService) Get(ctx context.Context, requestID string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	if err := s.DB.WithContext(ctx).Where("id = ?", requestID).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownRequest
		}
		return nil, err
	}
	return &w, nil
}

// List returns a member's requests, newest first, optionally filtered
// by status.
func (s *WithdrawalService) List(ctx context.Context, userID string, status models.WithdrawalStatus, page, pageSize int) ([]models.Withdrawal, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Withdrawal{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []models.Withdrawal
	err := q.Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&out).Error
	return out, total, err
}
