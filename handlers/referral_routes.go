// handlers/referral_routes.go
package handlers

import (
	"errors"
	"log"
	"os"
	"strings"

	"waitlist-referral-system/middleware"
	"waitlist-referral-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupReferralRoutes(app *fiber.App, referralService *services.ReferralService, registry *services.CodeRegistry) {
	// Service-to-service: the waitlist signup flow reports every new signup
	// here. Gateway auth is global; no user context on this route.
	//
	// A non-credited outcome is never a signup failure — this endpoint only
	// returns 4xx for requests it cannot parse at all.
	app.Post("/referral/attribute", func(c *fiber.Ctx) error {
		var req struct {
			ReferredIdentity string `json:"referred_identity"`
			ReferralCode     string `json:"referral_code"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if strings.TrimSpace(req.ReferredIdentity) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "referred_identity is required"})
		}

		outcome, err := referralService.AttributeSignup(req.ReferredIdentity, req.ReferralCode)
		if err != nil {
			// Downgraded to no_attribution: the signup proceeds regardless.
			log.Printf("⚠️ [ATTRIBUTION] %s signup attribution degraded: %v", req.ReferredIdentity, err)
		}

		resp := fiber.Map{"outcome": outcome}
		if outcome == services.OutcomeCredited {
			resp["credited_amount"] = services.CreditPerReferral
		}
		return c.JSON(resp)
	})

	// 🔐 Secured routes — require user context (identity) from the Gateway
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/referral/code", func(c *fiber.Ctx) error {
		identity := c.Locals("user_id").(string)

		account, err := registry.IssueCode(identity)
		if err != nil {
			if errors.Is(err, services.ErrCodeGenerationExhausted) {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "could not issue a referral code, please retry later",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to issue referral code",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"code":      account.Code,
			"share_url": shareBaseURL() + "?ref=" + account.Code,
		})
	})

	secured.Get("/referral/stats", func(c *fiber.Ctx) error {
		identity := c.Locals("user_id").(string)

		stats, err := referralService.GetReferralStats(identity)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// No code issued yet — an empty dashboard, not an error.
				return c.JSON(fiber.Map{
					"code":            "",
					"total_referrals": 0,
					"total_credits":   0,
					"recent_events":   []any{},
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load referral stats",
				"cause": err.Error(),
			})
		}
		return c.JSON(stats)
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Post("/referral/reverse", func(c *fiber.Ctx) error {
		var req struct {
			ReferralCode     string `json:"referral_code"`
			ReferredIdentity string `json:"referred_identity"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.ReferralCode == "" || req.ReferredIdentity == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "referral_code and referred_identity are required",
			})
		}

		if err := referralService.ReverseReferral(req.ReferralCode, req.ReferredIdentity); err != nil {
			if errors.Is(err, services.ErrEventNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no credited event for this pair"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "reversal failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"message": "Referral reversed successfully"})
	})
}

// shareBaseURL is the public landing page referral links point at. The codes
// themselves are opaque; only the ?ref= query parameter matters.
func shareBaseURL() string {
	if base := os.Getenv("SHARE_BASE_URL"); base != "" {
		return base
	}
	return "https://delyft.app"
}
