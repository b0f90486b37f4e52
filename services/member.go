package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"referral-engine/models"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	referralCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralCodeLength   = 8
)

// MemberService owns the member registry: registration (optionally via
// a referral code), referral codes and links, and the derived stats
// view the dashboard reads.
type MemberService struct {
	DB         *gorm.DB
	Graph      *GraphService
	Ledger     *LedgerService
	Commission *CommissionService
	BaseURL    string // public base for referral links
}

func NewMemberService(db *gorm.DB, graph *GraphService, ledger *LedgerService, commission *CommissionService, baseURL string) *MemberService {
	return &MemberService{DB: db, Graph: graph, Ledger: ledger, Commission: commission, BaseURL: strings.TrimRight(baseURL, "/")}
}

type RegisterInput struct {
	Username     string
	FirstName    *string
	LastName     *string
	Class        models.UserClass
	ReferrerCode string // optional
}

// Register creates a member and, when a referral code is supplied,
// attaches them to the referral graph and fans out the registration
// commissions — member row, edge, and every bonus in one transaction.
func (s *MemberService) Register(ctx context.Context, in RegisterInput) (*models.Member, []models.Transaction, error) {
	if strings.TrimSpace(in.Username) == "" {
		return nil, nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if in.Class == "" {
		in.Class = models.UserClassPlayer
	}
	if in.Class != models.UserClassPlayer && in.Class != models.UserClassInfluencer {
		return nil, nil, fmt.Errorf("%w: unknown user class %q", ErrInvalidInput, in.Class)
	}

	member := models.Member{
		ID:        uuid.NewString(),
		Username:  strings.TrimSpace(in.Username),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Class:     in.Class,
	}

	var bonuses []models.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := generateReferralCode(tx)
		if err != nil {
			return err
		}
		member.ReferralCode = code
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		if in.ReferrerCode == "" {
			return nil
		}
		bonuses, err = s.Commission.OnEventTx(tx, RegistrationEvent{
			NewUserID:    member.ID,
			ReferrerCode: in.ReferrerCode,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &member, bonuses, nil
}

// generateReferralCode draws 8 chars from A-Z0-9 and retries on the
// unlikely collision. Codes are immutable once issued.
func generateReferralCode(tx *gorm.DB) (string, error) {
	for i := 0; i < 5; i++ {
		code, err := gonanoid.Generate(referralCodeAlphabet, referralCodeLength)
		if err != nil {
			return "", err
		}
		var n int64
		if err := tx.Model(&models.Member{}).Where("referral_code = ?", code).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique referral code")
}

// Get returns a member by id.
func (s *MemberService) Get(ctx context.Context, userID string) (*models.Member, error) {
	var m models.Member
	if err := s.DB.WithContext(ctx).Where("id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, err
	}
	return &m, nil
}

// GetByCode resolves a referral code to its owner.
func (s *MemberService) GetByCode(ctx context.Context, code string) (*models.Member, error) {
	var m models.Member
	if err := s.DB.WithContext(ctx).Where("referral_code = ?", code).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownCode
		}
		return nil, err
	}
	return &m, nil
}

// MemberStats is the dashboard stats view: balance in the member's
// commission currency, lifetime earnings, and the derived rank with
// progress to the next tier.
type MemberStats struct {
	UserID          string          `json:"user_id"`
	Balance         decimal.Decimal `json:"balance"`
	Currency        models.Currency `json:"currency"`
	TotalEarnings   decimal.Decimal `json:"total_earnings"`
	Rank            RankTier        `json:"rank"`
	Multiplier      decimal.Decimal `json:"multiplier"`
	ReferralCount   int             `json:"referral_count"`
	ActiveReferrals int             `json:"active_referrals"`
	NextRank        *RankTier       `json:"next_rank,omitempty"`
	RemainingToNext int             `json:"remaining_to_next"`
}

func (s *MemberService) Stats(ctx context.Context, userID string) (*MemberStats, error) {
	m, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	children, err := s.Graph.DirectChildren(ctx, userID)
	if err != nil {
		return nil, err
	}
	active, err := s.Graph.ActiveDirectReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}
	earnings, err := s.Ledger.TotalEarnings(ctx, userID, m.CommissionCurrency(), nil)
	if err != nil {
		return nil, err
	}

	tier, mult := RankOf(active)
	stats := &MemberStats{
		UserID:          m.ID,
		Balance:         m.BalanceFor(m.CommissionCurrency()),
		Currency:        m.CommissionCurrency(),
		TotalEarnings:   earnings,
		Rank:            tier,
		Multiplier:      mult,
		ReferralCount:   len(children),
		ActiveReferrals: active,
	}
	if next, remaining, ok := ProgressToNext(active); ok {
		stats.NextRank = &next
		stats.RemainingToNext = remaining
	}
	return stats, nil
}

// ReferralLink is the shareable code bundle for a member.
type ReferralLink struct {
	UserID       string `json:"user_id"`
	ReferralCode string `json:"referral_code"`
	ReferralURL  string `json:"referral_url"`
	QRCodeURL    string `json:"qr_code_url"`
}

func (s *MemberService) Link(ctx context.Context, userID string) (*ReferralLink, error) {
	m, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ReferralLink{
		UserID:       m.ID,
		ReferralCode: m.ReferralCode,
		ReferralURL:  fmt.Sprintf("%s/ref/%s", s.BaseURL, m.ReferralCode),
		QRCodeURL:    fmt.Sprintf("%s/api/qr/%s", s.BaseURL, m.ReferralCode),
	}, nil
}
