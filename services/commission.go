package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"referral-engine/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Event is one external trigger into the commission engine. The three
// kinds form a closed sum; each carries its own natural dedup key so
// at-least-once delivery collapses to exactly-once processing.
type Event interface {
	DedupKey() string
	EventKind() string
}

// RegistrationEvent: a new member registered using a referral code.
type RegistrationEvent struct {
	NewUserID    string
	ReferrerCode string
}

func (e RegistrationEvent) DedupKey() string  { return "registration:" + e.NewUserID }
func (e RegistrationEvent) EventKind() string { return "registration" }

// DepositEvent: a processed deposit by a member.
type DepositEvent struct {
	UserID    string
	Amount    decimal.Decimal
	DepositID string
}

func (e DepositEvent) DedupKey() string  { return "deposit:" + e.DepositID }
func (e DepositEvent) EventKind() string { return "deposit" }

// TournamentFirstCompletionEvent: a member finished a tournament.
type TournamentFirstCompletionEvent struct {
	UserID       string
	TournamentID string
}

func (e TournamentFirstCompletionEvent) DedupKey() string {
	// user id first so "all tournament events of user X" is a prefix query
	return "tournament:" + e.UserID + ":" + e.TournamentID
}
func (e TournamentFirstCompletionEvent) EventKind() string { return "tournament" }

// ActivationPolicy selects which monetizable events flip a member to
// "active" for rank counting.
type ActivationPolicy string

const (
	ActivateOnTournament ActivationPolicy = "tournament"
	ActivateOnDeposit    ActivationPolicy = "deposit"
	ActivateOnEither     ActivationPolicy = "either"
)

// CommissionConfig is the injected bonus schedule. The decay curve is
// configuration, not business logic: the engine only requires the
// factors for levels 2..10 to be non-increasing with factor(2) = 1.0.
type CommissionConfig struct {
	DirectPlayerBonus     decimal.Decimal // points, level 1
	DirectInfluencerBonus decimal.Decimal // cash, level 1
	DepthPlayerBase       decimal.Decimal // points, levels 2-10 before decay
	DepthInfluencerBase   decimal.Decimal // cash, levels 2-10 before decay
	DepositPercent        decimal.Decimal // share of a deposit paid to the direct referrer
	TournamentReward      decimal.Decimal // flat credit to the direct referrer on first completion
	DecaySchedule         map[int]decimal.Decimal
	Activation            ActivationPolicy
}

// DefaultCommissionConfig mirrors the platform's published schedule.
func DefaultCommissionConfig() CommissionConfig {
	return CommissionConfig{
		DirectPlayerBonus:     decimal.NewFromInt(1000),
		DirectInfluencerBonus: decimal.NewFromInt(500),
		DepthPlayerBase:       decimal.NewFromInt(250),
		DepthInfluencerBase:   decimal.NewFromInt(125),
		DepositPercent:        decimal.RequireFromString("0.10"),
		TournamentReward:      decimal.NewFromInt(200),
		DecaySchedule: map[int]decimal.Decimal{
			2:  decimal.RequireFromString("1.00"),
			3:  decimal.RequireFromString("0.90"),
			4:  decimal.RequireFromString("0.80"),
			5:  decimal.RequireFromString("0.70"),
			6:  decimal.RequireFromString("0.60"),
			7:  decimal.RequireFromString("0.50"),
			8:  decimal.RequireFromString("0.40"),
			9:  decimal.RequireFromString("0.30"),
			10: decimal.RequireFromString("0.25"),
		},
		Activation: ActivateOnEither,
	}
}

// CommissionService walks the ancestor chain on each triggering event
// and fans commissions out to at most MaxReferralDepth ancestors, one
// ledger entry per eligible ancestor, all inside one DB transaction.
type CommissionService struct {
	DB    *gorm.DB
	Graph *GraphService
	Cfg   CommissionConfig
}

func NewCommissionService(db *gorm.DB, graph *GraphService, cfg CommissionConfig) *CommissionService {
	return &CommissionService{DB: db, Graph: graph, Cfg: cfg}
}

// OnEvent processes one external trigger. A replay of an already
// processed dedup key returns (nil, nil): the caller's intent was
// already fulfilled, so retries are not failures.
func (s *CommissionService) OnEvent(ctx context.Context, ev Event) ([]models.Transaction, error) {
	var written []models.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		written, err = s.OnEventTx(tx, ev)
		return err
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		log.Printf("[COMMISSION] duplicate event %s ignored", ev.DedupKey())
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return written, nil
}

// OnEventTx runs the dedup mark plus the full fan-out inside the
// caller's transaction. The unique index on processed_events.dedup_key
// is the concurrency barrier: of two concurrent deliveries exactly one
// commits, the other surfaces gorm.ErrDuplicatedKey and rolls back.
func (s *CommissionService) OnEventTx(tx *gorm.DB, ev Event) ([]models.Transaction, error) {
	if err := tx.Create(&models.ProcessedEvent{
		ID:       uuid.NewString(),
		DedupKey: ev.DedupKey(),
		Kind:     ev.EventKind(),
	}).Error; err != nil {
		return nil, err
	}

	switch e := ev.(type) {
	case RegistrationEvent:
		return s.processRegistration(tx, e)
	case DepositEvent:
		return s.processDeposit(tx, e)
	case TournamentFirstCompletionEvent:
		return s.processTournament(tx, e)
	default:
		return nil, fmt.Errorf("unhandled event kind %q", ev.EventKind())
	}
}

// HasProcessed reports whether a dedup key was already consumed.
func (s *CommissionService) HasProcessed(ctx context.Context, dedupKey string) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.ProcessedEvent{}).
		Where("dedup_key = ?", dedupKey).Count(&n).Error
	return n > 0, err
}

// processRegistration attaches the new member below the code's owner
// and credits every ancestor of the new member up to 10 levels. The
// chain is anchored at the direct referrer: the referrer is the level-1
// recipient, the referrer's referrer level-2, and so on.
func (s *CommissionService) processRegistration(tx *gorm.DB, e RegistrationEvent) ([]models.Transaction, error) {
	if _, err := s.Graph.attachTx(tx, e.NewUserID, e.ReferrerCode); err != nil {
		return nil, err
	}

	var child models.Member
	if err := tx.Where("id = ?", e.NewUserID).First(&child).Error; err != nil {
		return nil, err
	}

	// attachTx just wrote the closure rows, so the child's ancestor
	// chain is exactly the recipient list, levels 1..10.
	chain, err := ancestorsTx(tx, e.NewUserID, models.MaxReferralDepth)
	if err != nil {
		return nil, err
	}

	written := make([]models.Transaction, 0, len(chain))
	for _, anc := range chain {
		var recipient models.Member
		if err := tx.Where("id = ?", anc.UserID).First(&recipient).Error; err != nil {
			return nil, err
		}

		base := s.registrationBase(recipient.Class, anc.Level)
		if base.IsZero() {
			continue
		}
		amount, err := s.withRankMultiplier(tx, recipient.ID, base)
		if err != nil {
			return nil, err
		}

		desc := fmt.Sprintf("Direct referral bonus from %s (level 1)", child.Username)
		if anc.Level > 1 {
			desc = fmt.Sprintf("Depth referral bonus from %s (level %d)", child.Username, anc.Level)
		}
		level := anc.Level
		t := models.Transaction{
			UserID:        recipient.ID,
			Amount:        amount,
			Currency:      recipient.CommissionCurrency(),
			Type:          models.TransactionReferralBonus,
			RelatedUserID: &child.ID,
			RelatedLevel:  &level,
			Description:   desc,
		}
		if err := appendTx(tx, &t); err != nil {
			return nil, err
		}
		written = append(written, t)
	}
	return written, nil
}

func (s *CommissionService) registrationBase(class models.UserClass, level int) decimal.Decimal {
	if level == 1 {
		if class == models.UserClassInfluencer {
			return s.Cfg.DirectInfluencerBonus
		}
		return s.Cfg.DirectPlayerBonus
	}
	factor, ok := s.Cfg.DecaySchedule[level]
	if !ok {
		return decimal.Zero
	}
	if class == models.UserClassInfluencer {
		return s.Cfg.DepthInfluencerBase.Mul(factor)
	}
	return s.Cfg.DepthPlayerBase.Mul(factor)
}

// withRankMultiplier scales an amount by the recipient's multiplier at
// event time, derived from the live active-referral count.
func (s *CommissionService) withRankMultiplier(tx *gorm.DB, recipientID string, base decimal.Decimal) (decimal.Decimal, error) {
	active, err := activeDirectReferralsTx(tx, recipientID)
	if err != nil {
		return decimal.Zero, err
	}
	_, mult := RankOf(active)
	return base.Mul(mult).Round(2), nil
}

// processDeposit credits the direct referrer with a share of the
// deposit. Level 1 only: deposit commission never fans out deeper.
// A depositing member with no referrer is a silent no-op.
func (s *CommissionService) processDeposit(tx *gorm.DB, e DepositEvent) ([]models.Transaction, error) {
	if !e.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var user models.Member
	if err := tx.Where("id = ?", e.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}

	if err := tx.Model(&models.Member{}).Where("id = ?", user.ID).
		Update("total_deposits", gorm.Expr("total_deposits + ?", e.Amount)).Error; err != nil {
		return nil, err
	}

	if s.Cfg.Activation == ActivateOnDeposit || s.Cfg.Activation == ActivateOnEither {
		if err := markActivatedTx(tx, user.ID); err != nil {
			return nil, err
		}
	}

	if user.ReferrerID == nil {
		return nil, nil
	}

	var referrer models.Member
	if err := tx.Where("id = ?", *user.ReferrerID).First(&referrer).Error; err != nil {
		return nil, err
	}

	amount, err := s.withRankMultiplier(tx, referrer.ID, e.Amount.Mul(s.Cfg.DepositPercent))
	if err != nil {
		return nil, err
	}
	level := 1
	t := models.Transaction{
		UserID:        referrer.ID,
		Amount:        amount,
		Currency:      referrer.CommissionCurrency(),
		Type:          models.TransactionDepositBonus,
		RelatedUserID: &user.ID,
		RelatedLevel:  &level,
		Description:   fmt.Sprintf("Deposit commission from %s (deposit %s)", user.Username, e.DepositID),
	}
	if err := appendTx(tx, &t); err != nil {
		return nil, err
	}
	return []models.Transaction{t}, nil
}

// processTournament marks the member active (set-once) and, on the very
// first completion, credits the direct referrer a flat reward. Later
// completions of other tournaments pass the dedup check but change no
// activation state and pay nothing.
func (s *CommissionService) processTournament(tx *gorm.DB, e TournamentFirstCompletionEvent) ([]models.Transaction, error) {
	var user models.Member
	if err := tx.Where("id = ?", e.UserID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}

	// Our own ProcessedEvent row is already in the tx, so exactly one
	// row with this prefix means this is the member's first completion.
	var prior int64
	if err := tx.Model(&models.ProcessedEvent{}).
		Where("dedup_key LIKE ?", "tournament:"+user.ID+":%").
		Count(&prior).Error; err != nil {
		return nil, err
	}
	first := prior == 1

	if !first {
		return nil, nil
	}

	if s.Cfg.Activation == ActivateOnTournament || s.Cfg.Activation == ActivateOnEither {
		if err := markActivatedTx(tx, user.ID); err != nil {
			return nil, err
		}
	}

	if user.ReferrerID == nil || !s.Cfg.TournamentReward.IsPositive() {
		return nil, nil
	}

	var referrer models.Member
	if err := tx.Where("id = ?", *user.ReferrerID).First(&referrer).Error; err != nil {
		return nil, err
	}
	level := 1
	t := models.Transaction{
		UserID:        referrer.ID,
		Amount:        s.Cfg.TournamentReward,
		Currency:      referrer.CommissionCurrency(),
		Type:          models.TransactionTournamentReward,
		RelatedUserID: &user.ID,
		RelatedLevel:  &level,
		Description:   fmt.Sprintf("First tournament reward from %s (tournament %s)", user.Username, e.TournamentID),
	}
	if err := appendTx(tx, &t); err != nil {
		return nil, err
	}
	return []models.Transaction{t}, nil
}

// markActivatedTx sets activated_at once; later calls are no-ops.
func markActivatedTx(tx *gorm.DB, userID string) error {
	now := time.Now()
	return tx.Model(&models.Member{}).
		Where("id = ? AND activated_at IS NULL", userID).
		Update("activated_at", &now).Error
}
