// handlers/analytics_routes.go
package handlers

import (
	"strconv"

	"referral-engine/middleware"
	"referral-engine/services"

	"github.com/gofiber/fiber/v2"
)

// periodDays maps the dashboard period selector to a day count.
var periodDays = map[string]int{
	"7days":  7,
	"30days": 30,
	"90days": 90,
	"1year":  365,
}

func SetupAnalyticsRoutes(app *fiber.App, analytics *services.AnalyticsService) {
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	admin.Get("/stats", func(c *fiber.Ctx) error {
		stats, err := analytics.SystemStats(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(stats)
	})

	admin.Get("/analytics", func(c *fiber.Ctx) error {
		days, ok := periodDays[c.Query("period", "30days")]
		if !ok {
			days = 30
		}
		limit, _ := strconv.Atoi(c.Query("limit", "10"))

		registrations, err := analytics.DailySeries(c.UserContext(), services.MetricRegistrations, days)
		if err != nil {
			return fail(c, err)
		}
		txCount, err := analytics.DailySeries(c.UserContext(), services.MetricTransactionCount, days)
		if err != nil {
			return fail(c, err)
		}
		txAmount, err := analytics.DailySeries(c.UserContext(), services.MetricTransactionAmount, days)
		if err != nil {
			return fail(c, err)
		}
		top, err := analytics.TopReferrers(c.UserContext(), days, limit)
		if err != nil {
			return fail(c, err)
		}

		return c.JSON(fiber.Map{
			"registrations_by_day":      registrations,
			"transaction_count_by_day":  txCount,
			"transaction_amount_by_day": txAmount,
			"top_referrers":             top,
		})
	})
}
