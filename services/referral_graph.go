package services

import (
	"context"
	"errors"

	"referral-engine/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GraphService owns the referral forest. Edges live twice: as the
// write-once Member.ReferrerID back-reference and as closure rows in
// referral_relations (one row per ancestor/descendant pair up to
// MaxReferralDepth levels), which make ancestor and subtree lookups a
// single indexed query.
type GraphService struct {
	DB *gorm.DB
}

func NewGraphService(db *gorm.DB) *GraphService {
	return &GraphService{DB: db}
}

// AncestorRef is one entry of an ancestor chain, nearest first.
type AncestorRef struct {
	UserID string
	Level  int // 1 = direct referrer
}

// SubtreeNode is one entry of a breadth-first subtree walk.
type SubtreeNode struct {
	UserID string
	Level  int // 1 = direct referral
}

// Attach assigns referrerCode's owner as childID's referrer.
// Write-once: a child that already has a referrer is rejected, as is a
// self-referral or any edge that would make the child its own ancestor.
// The back-reference and all closure rows are written in one DB
// transaction — an edge write is all-or-nothing.
func (s *GraphService) Attach(ctx context.Context, childID, referrerCode string) (string, error) {
	var referrerID string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := s.attachTx(tx, childID, referrerCode)
		referrerID = id
		return err
	})
	if err != nil {
		return "", err
	}
	return referrerID, nil
}

// attachTx runs the attach inside the caller's transaction so the
// commission engine can combine it with registration fan-out.
func (s *GraphService) attachTx(tx *gorm.DB, childID, referrerCode string) (string, error) {
	var referrer models.Member
	if err := tx.Where("referral_code = ?", referrerCode).First(&referrer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUnknownCode
		}
		return "", err
	}

	var child models.Member
	if err := tx.Where("id = ?", childID).First(&child).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUnknownUser
		}
		return "", err
	}

	if child.ReferrerID != nil {
		return "", ErrAlreadyReferred
	}
	if referrer.ID == child.ID {
		return "", ErrSelfReferral
	}

	// The child must not already sit anywhere above the referrer. The
	// closure is depth-capped, so walk the back-reference chain instead.
	cur := referrer.ReferrerID
	for cur != nil {
		if *cur == child.ID {
			return "", ErrCycleDetected
		}
		var up models.Member
		if err := tx.Select("id", "referrer_id").Where("id = ?", *cur).First(&up).Error; err != nil {
			return "", err
		}
		cur = up.ReferrerID
	}

	// Ancestors of the referrer, nearest first.
	var ups []models.ReferralRelation
	if err := tx.Where("descendant_id = ? AND level < ?", referrer.ID, models.MaxReferralDepth).
		Order("level ASC").Find(&ups).Error; err != nil {
		return "", err
	}
	// Existing subtree of the child (it may have referred others before
	// being referred itself).
	var downs []models.ReferralRelation
	if err := tx.Where("ancestor_id = ?", child.ID).Find(&downs).Error; err != nil {
		return "", err
	}

	rows := make([]models.ReferralRelation, 0, (len(ups)+1)*(len(downs)+1))
	add := func(ancestorID, descendantID string, level int) {
		if level <= models.MaxReferralDepth {
			rows = append(rows, models.ReferralRelation{
				ID:           uuid.NewString(),
				AncestorID:   ancestorID,
				DescendantID: descendantID,
				Level:        level,
			})
		}
	}
	add(referrer.ID, child.ID, 1)
	for _, u := range ups {
		add(u.AncestorID, child.ID, u.Level+1)
	}
	for _, d := range downs {
		add(referrer.ID, d.DescendantID, 1+d.Level)
		for _, u := range ups {
			add(u.AncestorID, d.DescendantID, u.Level+1+d.Level)
		}
	}
	if err := tx.Create(&rows).Error; err != nil {
		return "", err
	}

	// Guarded update closes the race with a concurrent attach on the
	// same child: only one writer flips referrer_id from NULL.
	res := tx.Model(&models.Member{}).
		Where("id = ? AND referrer_id IS NULL", child.ID).
		Update("referrer_id", referrer.ID)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected != 1 {
		return "", ErrAlreadyReferred
	}
	return referrer.ID, nil
}

// Ancestors returns the chain above userID, nearest first, at most
// maxDepth entries. A short chain means a root was reached.
func (s *GraphService) Ancestors(ctx context.Context, userID string, maxDepth int) ([]AncestorRef, error) {
	return ancestorsTx(s.DB.WithContext(ctx), userID, maxDepth)
}

func ancestorsTx(tx *gorm.DB, userID string, maxDepth int) ([]AncestorRef, error) {
	if maxDepth <= 0 || maxDepth > models.MaxReferralDepth {
		maxDepth = models.MaxReferralDepth
	}
	var rels []models.ReferralRelation
	if err := tx.Where("descendant_id = ? AND level <= ?", userID, maxDepth).
		Order("level ASC").Find(&rels).Error; err != nil {
		return nil, err
	}
	out := make([]AncestorRef, 0, len(rels))
	for _, r := range rels {
		out = append(out, AncestorRef{UserID: r.AncestorID, Level: r.Level})
	}
	return out, nil
}

// DirectChildren returns the members directly referred by userID.
func (s *GraphService) DirectChildren(ctx context.Context, userID string) ([]models.Member, error) {
	var children []models.Member
	err := s.DB.WithContext(ctx).
		Where("referrer_id = ?", userID).
		Order("created_at ASC").
		Find(&children).Error
	return children, err
}

// Subtree streams the descendants of userID breadth-first (level by
// level), down to maxDepth. Each call issues a fresh cursor, so the
// walk is restartable; fn returning false stops early.
func (s *GraphService) Subtree(ctx context.Context, userID string, maxDepth int, fn func(SubtreeNode) bool) error {
	if maxDepth <= 0 || maxDepth > models.MaxReferralDepth {
		maxDepth = models.MaxReferralDepth
	}
	rows, err := s.DB.WithContext(ctx).Model(&models.ReferralRelation{}).
		Select("descendant_id", "level").
		Where("ancestor_id = ? AND level <= ?", userID, maxDepth).
		Order("level ASC, created_at ASC").
		Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var n SubtreeNode
		if err := rows.Scan(&n.UserID, &n.Level); err != nil {
			return err
		}
		if !fn(n) {
			return nil
		}
	}
	return rows.Err()
}

// activeDirectReferralsTx counts direct children that have completed a
// qualifying monetizable event. This is the input to RankOf.
func activeDirectReferralsTx(tx *gorm.DB, userID string) (int, error) {
	var n int64
	err := tx.Model(&models.Member{}).
		Where("referrer_id = ? AND activated_at IS NOT NULL", userID).
		Count(&n).Error
	return int(n), err
}

// ActiveDirectReferrals is the exported read-path variant.
func (s *GraphService) ActiveDirectReferrals(ctx context.Context, userID string) (int, error) {
	return activeDirectReferralsTx(s.DB.WithContext(ctx), userID)
}
