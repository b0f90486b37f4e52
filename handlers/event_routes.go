// handlers/event_routes.go
package handlers

import (
	"referral-engine/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// SetupEventRoutes exposes the two service-to-service triggers into the
// commission engine. Both tolerate at-least-once delivery: a replayed
// deposit_id or tournament/user pair returns success with zero new
// transactions.
func SetupEventRoutes(app *fiber.App, commission *services.CommissionService) {
	app.Post("/events/deposit", func(c *fiber.Ctx) error {
		var body struct {
			UserID    string          `json:"user_id"`
			Amount    decimal.Decimal `json:"amount"`
			DepositID string          `json:"deposit_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if body.UserID == "" || body.DepositID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and deposit_id are required"})
		}

		txs, err := commission.OnEvent(c.UserContext(), services.DepositEvent{
			UserID:    body.UserID,
			Amount:    body.Amount,
			DepositID: body.DepositID,
		})
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"success":             true,
			"deposit_id":          body.DepositID,
			"bonuses_distributed": len(txs),
		})
	})

	app.Post("/events/tournament-first-completed", func(c *fiber.Ctx) error {
		var body struct {
			UserID       string `json:"user_id"`
			TournamentID string `json:"tournament_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if body.UserID == "" || body.TournamentID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and tournament_id are required"})
		}

		txs, err := commission.OnEvent(c.UserContext(), services.TournamentFirstCompletionEvent{
			UserID:       body.UserID,
			TournamentID: body.TournamentID,
		})
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"success":             true,
			"tournament_id":       body.TournamentID,
			"bonuses_distributed": len(txs),
		})
	})
}
