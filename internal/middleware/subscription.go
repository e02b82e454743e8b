package middleware

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/plan"
	"tightship_backend/pkg/utils/jwt"
)

// RequireActiveSubscription blocks mutations for suspended tenants. UNPAID
// means the grace period elapsed without recovery; reads stay available so
// the tenant can reach billing settings.
func RequireActiveSubscription(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := c.Locals("user").(*jwt.Claims)

		var sub model.Subscription
		if err := db.Where("organization_id = ?", claims.OrganizationID).
			First(&sub).Error; err != nil {
			// No subscription row should be unreachable; treat as FREE tier
			// rather than failing the request.
			return c.Next()
		}

		if sub.Status == model.StatusUnpaid {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error": "Your account is suspended due to unpaid invoices",
				"code":  "SUBSCRIPTION_SUSPENDED",
			})
		}

		return c.Next()
	}
}

// CheckFeatureAccess gates an endpoint behind a plan capability flag.
func CheckFeatureAccess(db *gorm.DB, feature plan.Feature) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := c.Locals("user").(*jwt.Claims)

		tier := plan.TierFree
		var sub model.Subscription
		if err := db.Preload("Plan").
			Where("organization_id = ?", claims.OrganizationID).
			First(&sub).Error; err == nil {
			tier = plan.Tier(sub.Plan.Tier)
		}

		if !plan.CanUseFeature(tier, feature) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "This feature requires a higher subscription plan",
				"code":  "FEATURE_NOT_AVAILABLE",
			})
		}

		return c.Next()
	}
}

// CheckRestaurantOwnership ensures the :id restaurant belongs to the caller's
// organization. Cross-tenant access is a 404, not a 403, so tenants cannot
// probe for other tenants' ids.
func CheckRestaurantOwnership(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := c.Locals("user").(*jwt.Claims)
		restaurantID := c.Params("id")

		var restaurant model.Restaurant
		if err := db.Where("id = ? AND organization_id = ?", restaurantID, claims.OrganizationID).
			First(&restaurant).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Restaurant not found",
			})
		}

		c.Locals("restaurant", &restaurant)
		return c.Next()
	}
}
