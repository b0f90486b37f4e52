package workers

import (
	"context"
	"log"
	"time"

	"referral-engine/services"

	"github.com/go-co-op/gocron/v2"
)

// snapshotPeriods are the dashboard period selectors the worker keeps warm.
var snapshotPeriods = []int{7, 30, 90, 365}

// LeaderboardSnapshotWorker periodically recomputes daily series and
// leaderboards through the analytics service so the redis cache is warm
// when the dashboard asks. Staleness is bounded by the job interval.
type LeaderboardSnapshotWorker struct {
	Analytics *services.AnalyticsService
	Interval  time.Duration
}

func NewLeaderboardSnapshotWorker(analytics *services.AnalyticsService, interval time.Duration) *LeaderboardSnapshotWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &LeaderboardSnapshotWorker{Analytics: analytics, Interval: interval}
}

// Start runs the refresh job until ctx is cancelled.
func (w *LeaderboardSnapshotWorker) Start(ctx context.Context) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[SNAPSHOT] scheduler init failed: %v", err)
		return
	}

	_, _ = sched.NewJob(
		gocron.DurationJob(w.Interval),
		gocron.NewTask(func() {
			w.refresh(ctx)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	sched.Start()
	log.Printf("✅ Leaderboard snapshot worker running (every %s)", w.Interval)

	<-ctx.Done()
	if err := sched.Shutdown(); err != nil {
		log.Printf("[SNAPSHOT] scheduler shutdown: %v", err)
	}
}

func (w *LeaderboardSnapshotWorker) refresh(ctx context.Context) {
	for _, days := range snapshotPeriods {
		if _, err := w.Analytics.TopReferrers(ctx, days, 10); err != nil {
			log.Printf("[SNAPSHOT] leaderboard %dd refresh failed: %v", days, err)
		}
		if _, err := w.Analytics.DailySeries(ctx, services.MetricRegistrations, days); err != nil {
			log.Printf("[SNAPSHOT] registrations %dd refresh failed: %v", days, err)
		}
	}
}
