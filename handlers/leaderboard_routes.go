// handlers/leaderboard_routes.go
package handlers

import (
	"strconv"

	"waitlist-referral-system/middleware"
	"waitlist-referral-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupLeaderboardRoutes(app *fiber.App, leaderboardService *services.LeaderboardService) {
	// 🔓 Public (Gateway auth only) — the UI layer renders this directly.
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil || offset < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offset parameter"})
		}
		limit, err := strconv.Atoi(c.Query("limit", "25"))
		if err != nil || limit <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit parameter"})
		}
		searchTerm := c.Query("q", "")

		entries, total, err := leaderboardService.GetLeaderboard(offset, limit, searchTerm)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load leaderboard",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"entries": entries,
			"total":   total,
			"offset":  offset,
			"limit":   limit,
		})
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Get("/leaderboard/export", func(c *fiber.Ctx) error {
		url, err := leaderboardService.ExportCSV(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "leaderboard export failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"url": url})
	})
}
