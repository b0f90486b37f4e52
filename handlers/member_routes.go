// handlers/member_routes.go
package handlers

import (
	"strconv"

	"referral-engine/middleware"
	"referral-engine/models"
	"referral-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMemberRoutes(app *fiber.App, members *services.MemberService, graph *services.GraphService, analytics *services.AnalyticsService) {
	// 🔓 Registration is the one unauthenticated entry point: the user
	// does not exist yet.
	app.Post("/users/register", func(c *fiber.Ctx) error {
		var body struct {
			Username     string           `json:"username"`
			FirstName    *string          `json:"first_name"`
			LastName     *string          `json:"last_name"`
			Class        models.UserClass `json:"class"`
			ReferrerCode string           `json:"referrer_code"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		member, bonuses, err := members.Register(c.UserContext(), services.RegisterInput{
			Username:     body.Username,
			FirstName:    body.FirstName,
			LastName:     body.LastName,
			Class:        body.Class,
			ReferrerCode: body.ReferrerCode,
		})
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"user":                member,
			"bonuses_distributed": len(bonuses),
		})
	})

	// Scoped to /users so unrelated paths (the /events webhooks in
	// particular) never inherit the identity check.
	secured := app.Group("/users", middleware.UserContextMiddleware())

	secured.Get("/:id/stats", func(c *fiber.Ctx) error {
		stats, err := members.Stats(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(stats)
	})

	secured.Get("/:id/referral-link", func(c *fiber.Ctx) error {
		link, err := members.Link(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(link)
	})

	secured.Get("/:id/referrals/tree", func(c *fiber.Ctx) error {
		depth, _ := strconv.Atoi(c.Query("depth", "10"))
		root, levels, err := graph.ReferralTree(c.UserContext(), c.Params("id"), depth)
		if err != nil {
			return fail(c, err)
		}
		total := 0
		for _, n := range levels {
			total += n
		}
		return c.JSON(fiber.Map{
			"tree":            root,
			"levels":          levels,
			"total_referrals": total,
		})
	})

	secured.Get("/:id/referrals/levels", func(c *fiber.Ctx) error {
		depth, _ := strconv.Atoi(c.Query("depth", "10"))
		hist, err := analytics.LevelHistogram(c.UserContext(), graph, c.Params("id"), depth)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"levels": hist})
	})
}
