package services

import (
	"context"
	"fmt"
	"testing"

	"referral-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAttachBuildsAncestorChain(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphService(db)
	ctx := context.Background()

	a := seedMember(t, db, "alice", models.UserClassPlayer)
	b := seedMember(t, db, "bob", models.UserClassPlayer)
	c := seedMember(t, db, "carol", models.UserClassPlayer)

	_, err := graph.Attach(ctx, b.ID, a.ReferralCode)
	require.NoError(t, err)
	refID, err := graph.Attach(ctx, c.ID, b.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, b.ID, refID)

	ups, err := graph.Ancestors(ctx, c.ID, models.MaxReferralDepth)
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, AncestorRef{UserID: b.ID, Level: 1}, ups[0])
	assert.Equal(t, AncestorRef{UserID: a.ID, Level: 2}, ups[1])

	// A user is never its own ancestor.
	for _, u := range ups {
		assert.NotEqual(t, c.ID, u.UserID)
	}
}

func TestAttachRejections(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphService(db)
	ctx := context.Background()

	a := seedMember(t, db, "alice", models.UserClassPlayer)
	b := seedMember(t, db, "bob", models.UserClassPlayer)

	_, err := graph.Attach(ctx, b.ID, "NOSUCHCODE")
	assert.ErrorIs(t, err, ErrUnknownCode)

	_, err = graph.Attach(ctx, a.ID, a.ReferralCode)
	assert.ErrorIs(t, err, ErrSelfReferral)

	_, err = graph.Attach(ctx, b.ID, a.ReferralCode)
	require.NoError(t, err)
	c := seedMember(t, db, "carol", models.UserClassPlayer)
	_, err = graph.Attach(ctx, b.ID, c.ReferralCode)
	assert.ErrorIs(t, err, ErrAlreadyReferred)
}

func TestAttachCycleLeavesGraphUnchanged(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphService(db)
	ctx := context.Background()

	a := seedMember(t, db, "alice", models.UserClassPlayer)
	b := seedMember(t, db, "bob", models.UserClassPlayer)
	c := seedMember(t, db, "carol", models.UserClassPlayer)

	_, err := graph.Attach(ctx, b.ID, a.ReferralCode)
	require.NoError(t, err)
	_, err = graph.Attach(ctx, c.ID, b.ReferralCode)
	require.NoError(t, err)

	var before int64
	require.NoError(t, db.Model(&models.ReferralRelation{}).Count(&before).Error)

	// a -> b -> c already holds; attaching a under c would close a loop.
	_, err = graph.Attach(ctx, a.ID, c.ReferralCode)
	assert.ErrorIs(t, err, ErrCycleDetected)

	var after int64
	require.NoError(t, db.Model(&models.ReferralRelation{}).Count(&after).Error)
	assert.Equal(t, before, after)

	var reloaded models.Member
	require.NoError(t, db.First(&reloaded, "id = ?", a.ID).Error)
	assert.Nil(t, reloaded.ReferrerID)
}

func TestAttachMergesExistingSubtree(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphService(db)
	ctx := context.Background()

	// carol refers dave first, then gets referred by alice herself:
	// dave must gain alice as a level-2 ancestor.
	a := seedMember(t, db, "alice", models.UserClassPlayer)
	c := seedMember(t, db, "carol", models.UserClassPlayer)
	d := seedMember(t, db, "dave", models.UserClassPlayer)

	_, err := graph.Attach(ctx, d.ID, c.ReferralCode)
	require.NoError(t, err)
	_, err = graph.Attach(ctx, c.ID, a.ReferralCode)
	require.NoError(t, err)

	ups, err := graph.Ancestors(ctx, d.ID, models.MaxReferralDepth)
	require.NoError(t, err)
	require.Len(t, ups, 2)
	assert.Equal(t, AncestorRef{UserID: c.ID, Level: 1}, ups[0])
	assert.Equal(t, AncestorRef{UserID: a.ID, Level: 2}, ups[1])
}

func seedChain(t *testing.T, db *gorm.DB, graph *GraphService, length int) []*models.Member {
	t.Helper()
	members := make([]*models.Member, length)
	for i := range members {
		members[i] = seedMember(t, db, fmt.Sprintf("chain-%02d", i), models.UserClassPlayer)
		if i > 0 {
			_, err := graph.Attach(context.Background(), members[i].ID, members[i-1].ReferralCode)
			require.NoError(t, err)
		}
	}
	return members
}

func TestAncestorsCappedAtMaxDepth(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphService(db)

	members := seedChain(t, db, graph, 13)
	leaf := members[len(members)-1]

	ups, err := graph.Ancestors(context.Background(), leaf.ID, models.MaxReferralDepth)
	require.NoError(t, err)
	assert.Len(t, ups, models.MaxReferralDepth)
	assert.Equal(t, 1, ups[0].Level)
	assert.Equal(t, models.MaxReferralDepth, ups[len(ups)-1].Level)
}

func TestSubtreeStreamsAndRestarts(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphService(db)
	ctx := context.Background()

	members := seedChain(t, db, graph, 6)
	root := members[0]

	walk := func(maxDepth int) []SubtreeNode {
		var got []SubtreeNode
		require.NoError(t, graph.Subtree(ctx, root.ID, maxDepth, func(n SubtreeNode) bool {
			got = append(got, n)
			return true
		}))
		return got
	}

	full := walk(models.MaxReferralDepth)
	require.Len(t, full, 5)
	for i, n := range full {
		assert.Equal(t, i+1, n.Level)
		assert.Equal(t, members[i+1].ID, n.UserID)
	}

	// Bounded walk.
	assert.Len(t, walk(2), 2)

	// Early stop, then a fresh full walk: the cursor is per-call.
	var seen int
	require.NoError(t, graph.Subtree(ctx, root.ID, models.MaxReferralDepth, func(SubtreeNode) bool {
		seen++
		return seen < 3
	}))
	assert.Equal(t, 3, seen)
	assert.Len(t, walk(models.MaxReferralDepth), 5)
}

func TestActiveDirectReferrals(t *testing.T) {
	db := openTestDB(t)
	graph := NewGraphService(db)

	a := seedMember(t, db, "alice", models.UserClassPlayer)
	seedActiveChildren(t, db, a, 3)

	// An inactive child does not count.
	b := seedMember(t, db, "bob", models.UserClassPlayer)
	_, err := graph.Attach(context.Background(), b.ID, a.ReferralCode)
	require.NoError(t, err)

	n, err := graph.ActiveDirectReferrals(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
