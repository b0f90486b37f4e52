// handlers/transaction_routes.go
package handlers

import (
	"strconv"
	"time"

	"referral-engine/middleware"
	"referral-engine/models"
	"referral-engine/services"
	"referral-engine/utils"

	"github.com/gofiber/fiber/v2"
)

func SetupTransactionRoutes(app *fiber.App, ledger *services.LedgerService) {
	secured := app.Group("/users", middleware.UserContextMiddleware())

	// Paginated ledger history, newest first, with currency/type/date
	// filters.
	secured.Get("/:id/transactions", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("page_size", "20"))
		page, size = utils.ClampPage(page, size)

		filter := services.HistoryFilter{
			Currency: models.Currency(c.Query("currency")),
			Type:     models.TransactionType(c.Query("type")),
		}
		if v := c.Query("date_from"); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid date_from"})
			}
			filter.From = &t
		}
		if v := c.Query("date_to"); v != "" {
			t, err := time.Parse("2006-01-02", v)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid date_to"})
			}
			end := t.AddDate(0, 0, 1).Add(-time.Nanosecond) // inclusive day
			filter.To = &end
		}

		txs, total, err := ledger.History(c.UserContext(), c.Params("id"), filter, page, size)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"count":       total,
			"page":        page,
			"page_size":   size,
			"total_pages": utils.TotalPages(total, size),
			"results":     txs,
		})
	})

	secured.Get("/:id/balance", func(c *fiber.Ctx) error {
		userID := c.Params("id")
		points, err := ledger.Balance(c.UserContext(), userID, models.CurrencyPoints)
		if err != nil {
			return fail(c, err)
		}
		cash, err := ledger.Balance(c.UserContext(), userID, models.CurrencyCash)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"user_id": userID,
			"points":  points,
			"cash":    cash,
		})
	})
}
