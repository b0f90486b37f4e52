package services

import (
	"context"
	"sort"
	"time"

	"referral-engine/models"
)

// TreeNode is one node of the referral tree view: identity plus the
// rank/class badges and the activity flag the UI renders per node.
type TreeNode struct {
	UserID       string           `json:"user_id"`
	Username     string           `json:"username"`
	Class        models.UserClass `json:"class"`
	Rank         RankTier         `json:"rank"`
	Active       bool             `json:"active"`
	Level        int              `json:"level"`
	RegisteredAt time.Time        `json:"registered_at"`
	Referrals    []*TreeNode      `json:"referrals"`
}

// ReferralTree materializes the forest rooted at rootID down to
// maxDepth levels (capped at 10), plus per-level counts. One closure
// query plus two batched member queries, no per-node round trips.
func (s *GraphService) ReferralTree(ctx context.Context, rootID string, maxDepth int) (*TreeNode, map[int]int, error) {
	if maxDepth <= 0 || maxDepth > models.MaxReferralDepth {
		maxDepth = models.MaxReferralDepth
	}

	var root models.Member
	if err := s.DB.WithContext(ctx).Where("id = ?", rootID).First(&root).Error; err != nil {
		return nil, nil, ErrUnknownUser
	}

	levels := make(map[int]int)
	ids := []string{rootID}
	if err := s.Subtree(ctx, rootID, maxDepth, func(n SubtreeNode) bool {
		levels[n.Level]++
		ids = append(ids, n.UserID)
		return true
	}); err != nil {
		return nil, nil, err
	}

	var members []models.Member
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, nil, err
	}

	// Active direct-referral counts for every node in one pass, to
	// derive each node's rank badge.
	type activeRow struct {
		ReferrerID string
		N          int
	}
	var actives []activeRow
	if err := s.DB.WithContext(ctx).Model(&models.Member{}).
		Select("referrer_id, COUNT(*) AS n").
		Where("referrer_id IN ? AND activated_at IS NOT NULL", ids).
		Group("referrer_id").
		Scan(&actives).Error; err != nil {
		return nil, nil, err
	}
	activeCount := make(map[string]int, len(actives))
	for _, a := range actives {
		activeCount[a.ReferrerID] = a.N
	}

	nodes := make(map[string]*TreeNode, len(members))
	childrenOf := make(map[string][]*TreeNode)
	for _, m := range members {
		tier, _ := RankOf(activeCount[m.ID])
		nodes[m.ID] = &TreeNode{
			UserID:       m.ID,
			Username:     m.Username,
			Class:        m.Class,
			Rank:         tier,
			Active:       m.ActivatedAt != nil,
			RegisteredAt: m.CreatedAt,
			Referrals:    []*TreeNode{},
		}
	}
	for _, m := range members {
		if m.ID == rootID || m.ReferrerID == nil {
			continue
		}
		if _, ok := nodes[*m.ReferrerID]; ok {
			childrenOf[*m.ReferrerID] = append(childrenOf[*m.ReferrerID], nodes[m.ID])
		}
	}

	for _, siblings := range childrenOf {
		sort.Slice(siblings, func(i, j int) bool {
			if !siblings[i].RegisteredAt.Equal(siblings[j].RegisteredAt) {
				return siblings[i].RegisteredAt.Before(siblings[j].RegisteredAt)
			}
			return siblings[i].UserID < siblings[j].UserID
		})
	}

	var link func(n *TreeNode, level int)
	link = func(n *TreeNode, level int) {
		n.Level = level
		if level >= maxDepth {
			return
		}
		n.Referrals = childrenOf[n.UserID]
		for _, c := range n.Referrals {
			link(c, level+1)
		}
	}
	rootNode := nodes[rootID]
	link(rootNode, 0)
	return rootNode, levels, nil
}
