package services

import "github.com/shopspring/decimal"

// RankTier is a named bonus-multiplier bracket. A member's tier is
// never stored; it is recomputed from the active direct-referral count
// on every read, so it cannot drift from the underlying activity.
type RankTier string

const (
	RankStandard RankTier = "standard"
	RankSilver   RankTier = "silver"
	RankGold     RankTier = "gold"
	RankPlatinum RankTier = "platinum"
)

type rankThreshold struct {
	Tier            RankTier
	ActiveRequired  int
	BonusMultiplier decimal.Decimal
}

// rankTable is ordered by strictly increasing thresholds; RankOf picks
// the highest qualifying entry.
var rankTable = []rankThreshold{
	{RankStandard, 0, decimal.RequireFromString("1.00")},
	{RankSilver, 5, decimal.RequireFromString("1.20")},
	{RankGold, 20, decimal.RequireFromString("1.50")},
	{RankPlatinum, 50, decimal.RequireFromString("2.00")},
}

// RankOf returns the tier and bonus multiplier for a given count of
// active direct referrals. Pure: same input, same output.
func RankOf(activeReferrals int) (RankTier, decimal.Decimal) {
	for i := len(rankTable) - 1; i >= 0; i-- {
		if activeReferrals >= rankTable[i].ActiveRequired {
			return rankTable[i].Tier, rankTable[i].BonusMultiplier
		}
	}
	return RankStandard, rankTable[0].BonusMultiplier
}

// ProgressToNext reports the next tier above the current count and how
// many more active referrals are needed to reach it. ok is false when
// the member already holds the top tier.
func ProgressToNext(activeReferrals int) (next RankTier, remaining int, ok bool) {
	for _, t := range rankTable {
		if activeReferrals < t.ActiveRequired {
			return t.Tier, t.ActiveRequired - activeReferrals, true
		}
	}
	return "", 0, false
}
