// handlers/withdrawal_routes.go
package handlers

import (
	"strconv"

	"referral-engine/middleware"
	"referral-engine/models"
	"referral-engine/services"
	"referral-engine/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

func SetupWithdrawalRoutes(app *fiber.App, withdrawals *services.WithdrawalService) {
	userCtx := middleware.UserContextMiddleware()
	secured := app.Group("/withdrawals", userCtx)

	secured.Post("/", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var body struct {
			Amount         decimal.Decimal         `json:"amount"`
			Method         models.WithdrawalMethod `json:"method"`
			PaymentDetails string                  `json:"payment_details"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		w, err := withdrawals.Create(c.UserContext(), userID, body.Amount, body.Method, body.PaymentDetails)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(w)
	})

	secured.Get("/:id", func(c *fiber.Ctx) error {
		w, err := withdrawals.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		if w.UserID != c.Locals("user_id").(string) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
		}
		return c.JSON(w)
	})

	userScoped := app.Group("/users", userCtx)

	userScoped.Get("/:id/withdrawals", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("page_size", "20"))
		page, size = utils.ClampPage(page, size)

		list, total, err := withdrawals.List(c.UserContext(), c.Params("id"),
			models.WithdrawalStatus(c.Query("status")), page, size)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"count":       total,
			"page":        page,
			"page_size":   size,
			"total_pages": utils.TotalPages(total, size),
			"results":     list,
		})
	})

	// Operator resolution: one-way transitions only. Approval re-checks
	// the balance and writes the ledger entry; rejection needs a reason.
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	admin.Patch("/withdrawals/:id", func(c *fiber.Ctx) error {
		var body struct {
			Status          models.WithdrawalStatus `json:"status"`
			RejectionReason string                  `json:"rejection_reason"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		var err error
		switch body.Status {
		case models.WithdrawalApproved:
			err = withdrawals.Approve(c.UserContext(), c.Params("id"))
		case models.WithdrawalRejected:
			err = withdrawals.Reject(c.UserContext(), c.Params("id"), body.RejectionReason)
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "status must be approved or rejected"})
		}
		if err != nil {
			return fail(c, err)
		}

		w, err := withdrawals.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(w)
	})
}
