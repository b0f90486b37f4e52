package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"referral-engine/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SeriesMetric selects what a daily series counts.
type SeriesMetric string

const (
	MetricRegistrations     SeriesMetric = "registrations"
	MetricTransactionCount  SeriesMetric = "transaction_count"
	MetricTransactionAmount SeriesMetric = "transaction_amount"
)

// SeriesPoint is one calendar day of a daily series. Every day in the
// requested window appears exactly once, zero-valued when idle.
type SeriesPoint struct {
	Date  string          `json:"date"` // YYYY-MM-DD, UTC
	Value decimal.Decimal `json:"value"`
}

// ReferrerRank is one leaderboard row.
type ReferrerRank struct {
	UserID        string           `json:"user_id"`
	Username      string           `json:"username"`
	Class         models.UserClass `json:"class"`
	ReferralCount int              `json:"referral_count"`
	TotalEarnings decimal.Decimal  `json:"total_earnings"`
}

// AnalyticsService computes read-only summaries over the ledger and the
// referral graph. It never writes either. Results may be cached in
// redis with a fixed TTL — staleness is bounded by the TTL and cache
// failures silently degrade to a direct DB read.
type AnalyticsService struct {
	DB       *gorm.DB
	Cache    *redis.Client // nil disables caching
	CacheTTL time.Duration
}

func NewAnalyticsService(db *gorm.DB, cache *redis.Client, ttl time.Duration) *AnalyticsService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &AnalyticsService{DB: db, Cache: cache, CacheTTL: ttl}
}

// DailySeries returns one point per calendar day over the trailing
// window [today-periodDays+1, today], zero-filled, oldest first.
// Bucketing happens in Go so the query stays portable across the
// production postgres and the sqlite used in tests.
func (s *AnalyticsService) DailySeries(ctx context.Context, metric SeriesMetric, periodDays int) ([]SeriesPoint, error) {
	if periodDays <= 0 {
		return nil, fmt.Errorf("%w: periodDays must be positive", ErrInvalidInput)
	}

	cacheKey := fmt.Sprintf("analytics:series:%s:%d", metric, periodDays)
	var cached []SeriesPoint
	if s.cacheGet(ctx, cacheKey, &cached) {
		return cached, nil
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(periodDays - 1))

	buckets := make(map[string]decimal.Decimal, periodDays)

	switch metric {
	case MetricRegistrations:
		rows, err := s.DB.WithContext(ctx).Model(&models.Member{}).
			Select("created_at").
			Where("created_at >= ?", start).
			Rows()
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var at time.Time
			if err := rows.Scan(&at); err != nil {
				return nil, err
			}
			day := at.UTC().Format("2006-01-02")
			buckets[day] = buckets[day].Add(decimal.NewFromInt(1))
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

	case MetricTransactionCount, MetricTransactionAmount:
		rows, err := s.DB.WithContext(ctx).Model(&models.Transaction{}).
			Select("created_at", "amount").
			Where("created_at >= ?", start).
			Rows()
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var at time.Time
			var amount decimal.Decimal
			if err := rows.Scan(&at, &amount); err != nil {
				return nil, err
			}
			day := at.UTC().Format("2006-01-02")
			if metric == MetricTransactionCount {
				buckets[day] = buckets[day].Add(decimal.NewFromInt(1))
			} else {
				buckets[day] = buckets[day].Add(amount)
			}
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: unknown metric %q", ErrInvalidInput, metric)
	}

	out := make([]SeriesPoint, 0, periodDays)
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		out = append(out, SeriesPoint{Date: key, Value: buckets[key]})
	}

	s.cacheSet(ctx, cacheKey, out)
	return out, nil
}

// TopReferrers ranks members by commission earnings over the trailing
// window, descending, ties broken by ascending user id so pagination
// is stable. The window is the same calendar-day span DailySeries
// uses, so the dashboard's series and leaderboard agree for one
// period selector.
func (s *AnalyticsService) TopReferrers(ctx context.Context, periodDays, limit int) ([]ReferrerRank, error) {
	if periodDays <= 0 {
		return nil, fmt.Errorf("%w: periodDays must be positive", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	cacheKey := fmt.Sprintf("analytics:leaderboard:%d:%d", periodDays, limit)
	var cached []ReferrerRank
	if s.cacheGet(ctx, cacheKey, &cached) {
		return cached, nil
	}

	since := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(periodDays - 1))

	type earningsRow struct {
		UserID string
		Total  decimal.Decimal
	}
	var earnings []earningsRow
	if err := s.DB.WithContext(ctx).Model(&models.Transaction{}).
		Select("user_id, COALESCE(SUM(amount), 0) AS total").
		Where("type IN ? AND created_at >= ?", models.CommissionTypes, since).
		Group("user_id").
		Scan(&earnings).Error; err != nil {
		return nil, err
	}
	if len(earnings) == 0 {
		s.cacheSet(ctx, cacheKey, []ReferrerRank{})
		return []ReferrerRank{}, nil
	}

	ids := make([]string, 0, len(earnings))
	for _, e := range earnings {
		ids = append(ids, e.UserID)
	}

	type countRow struct {
		AncestorID string
		N          int
	}
	var counts []countRow
	if err := s.DB.WithContext(ctx).Model(&models.ReferralRelation{}).
		Select("ancestor_id, COUNT(*) AS n").
		Where("ancestor_id IN ? AND level = 1", ids).
		Group("ancestor_id").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	directCount := make(map[string]int, len(counts))
	for _, c := range counts {
		directCount[c.AncestorID] = c.N
	}

	var members []models.Member
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	ranks := make([]ReferrerRank, 0, len(earnings))
	for _, e := range earnings {
		m := byID[e.UserID]
		ranks = append(ranks, ReferrerRank{
			UserID:        e.UserID,
			Username:      m.Username,
			Class:         m.Class,
			ReferralCount: directCount[e.UserID],
			TotalEarnings: e.Total,
		})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if !ranks[i].TotalEarnings.Equal(ranks[j].TotalEarnings) {
			return ranks[i].TotalEarnings.GreaterThan(ranks[j].TotalEarnings)
		}
		return ranks[i].UserID < ranks[j].UserID
	})
	if len(ranks) > limit {
		ranks = ranks[:limit]
	}

	s.cacheSet(ctx, cacheKey, ranks)
	return ranks, nil
}

// LevelHistogram counts a member's descendants per level via the
// breadth-first subtree walk.
func (s *AnalyticsService) LevelHistogram(ctx context.Context, graph *GraphService, userID string, maxDepth int) (map[int]int, error) {
	hist := make(map[int]int)
	err := graph.Subtree(ctx, userID, maxDepth, func(n SubtreeNode) bool {
		hist[n.Level]++
		return true
	})
	if err != nil {
		return nil, err
	}
	return hist, nil
}

// SystemStats is the admin dashboard totals block.
type SystemStats struct {
	TotalUsers               int64           `json:"total_users"`
	TotalPlayers             int64           `json:"total_players"`
	TotalInfluencers         int64           `json:"total_influencers"`
	TotalPointsInCirculation decimal.Decimal `json:"total_points_in_circulation"`
	TotalCashPaidOut         decimal.Decimal `json:"total_cash_paid_out"`
	TotalTransactions        int64           `json:"total_transactions"`
	PendingWithdrawals       int64           `json:"pending_withdrawals"`
	PendingWithdrawalsAmount decimal.Decimal `json:"pending_withdrawals_amount"`
}

func (s *AnalyticsService) SystemStats(ctx context.Context) (*SystemStats, error) {
	db := s.DB.WithContext(ctx)
	var out SystemStats

	if err := db.Model(&models.Member{}).Count(&out.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Member{}).Where("class = ?", models.UserClassPlayer).Count(&out.TotalPlayers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Member{}).Where("class = ?", models.UserClassInfluencer).Count(&out.TotalInfluencers).Error; err != nil {
		return nil, err
	}

	var sum struct {
		Total decimal.Decimal
	}
	if err := db.Model(&models.Member{}).Select("COALESCE(SUM(points_balance), 0) AS total").Scan(&sum).Error; err != nil {
		return nil, err
	}
	out.TotalPointsInCirculation = sum.Total

	if err := db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(-amount), 0) AS total").
		Where("type = ?", models.TransactionWithdrawal).
		Scan(&sum).Error; err != nil {
		return nil, err
	}
	out.TotalCashPaidOut = sum.Total

	if err := db.Model(&models.Transaction{}).Count(&out.TotalTransactions).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Withdrawal{}).Where("status = ?", models.WithdrawalPending).Count(&out.PendingWithdrawals).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Withdrawal{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", models.WithdrawalPending).
		Scan(&sum).Error; err != nil {
		return nil, err
	}
	out.PendingWithdrawalsAmount = sum.Total
	return &out, nil
}

func (s *AnalyticsService) cacheGet(ctx context.Context, key string, dest any) bool {
	if s.Cache == nil {
		return false
	}
	raw, err := s.Cache.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (s *AnalyticsService) cacheSet(ctx context.Context, key string, v any) {
	if s.Cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.Cache.Set(ctx, key, raw, s.CacheTTL).Err(); err != nil {
		log.Printf("[ANALYTICS] cache set %s failed: %v", key, err)
	}
}
