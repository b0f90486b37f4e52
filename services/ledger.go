package services

import (
	"context"
	"errors"
	"time"

	"referral-engine/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerService owns the append-only transaction store. Every append
// updates the member's running balance in the same DB transaction, so
// the running balance and the fold over history can never disagree.
type LedgerService struct {
	DB    *gorm.DB
	locks *UserLocks
}

func NewLedgerService(db *gorm.DB, locks *UserLocks) *LedgerService {
	return &LedgerService{DB: db, locks: locks}
}

// Append writes one transaction atomically and returns its id.
func (s *LedgerService) Append(ctx context.Context, t *models.Transaction) (string, error) {
	unlock := s.locks.Lock(t.UserID)
	defer unlock()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return appendTx(tx, t)
	})
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// appendTx writes one ledger entry plus the running-balance bump inside
// the caller's transaction. Shared with commission fan-out and
// withdrawal approval so multi-entry operations commit as a batch.
func appendTx(tx *gorm.DB, t *models.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var exists int64
	if err := tx.Model(&models.Member{}).Where("id = ?", t.UserID).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return ErrUnknownUser
	}
	if err := tx.Create(t).Error; err != nil {
		return err
	}

	col := "points_balance"
	if t.Currency == models.CurrencyCash {
		col = "cash_balance"
	}
	return tx.Model(&models.Member{}).
		Where("id = ?", t.UserID).
		Update(col, gorm.Expr(col+" + ?", t.Amount)).Error
}

// Balance returns the running balance from the member row.
func (s *LedgerService) Balance(ctx context.Context, userID string, c models.Currency) (decimal.Decimal, error) {
	return balanceTx(s.DB.WithContext(ctx), userID, c)
}

func balanceTx(tx *gorm.DB, userID string, c models.Currency) (decimal.Decimal, error) {
	var m models.Member
	if err := tx.Select("points_balance", "cash_balance").Where("id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrUnknownUser
		}
		return decimal.Zero, err
	}
	return m.BalanceFor(c), nil
}

// BalanceFromHistory recomputes the balance as a fold over the ledger.
// Must always agree with Balance; the property is covered by tests.
func (s *LedgerService) BalanceFromHistory(ctx context.Context, userID string, c models.Currency) (decimal.Decimal, error) {
	var out struct {
		Total decimal.Decimal
	}
	err := s.DB.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND currency = ?", userID, c).
		Scan(&out).Error
	if err != nil {
		return decimal.Zero, err
	}
	return out.Total, nil
}

// HistoryFilter narrows a history query. Zero values mean "no filter".
type HistoryFilter struct {
	Currency models.Currency
	Type     models.TransactionType
	From     *time.Time
	To       *time.Time
}

// History returns a newest-first page of the member's transactions
// plus the total row count for pagination.
func (s *LedgerService) History(ctx context.Context, userID string, f HistoryFilter, page, pageSize int) ([]models.Transaction, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID)
	if f.Currency != "" {
		q = q.Where("currency = ?", f.Currency)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []models.Transaction
	err := q.Order("created_at DESC, id DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&txs).Error
	return txs, total, err
}

// TotalEarnings sums commission-type transactions for a member in one
// currency over an optional window (nil = all time).
func (s *LedgerService) TotalEarnings(ctx context.Context, userID string, c models.Currency, since *time.Time) (decimal.Decimal, error) {
	q := s.DB.WithContext(ctx).Model(&models.Transaction{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND currency = ? AND type IN ?", userID, c, models.CommissionTypes)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	var out struct {
		Total decimal.Decimal
	}
	if err := q.Scan(&out).Error; err != nil {
		return decimal.Zero, err
	}
	return out.Total, nil
}
