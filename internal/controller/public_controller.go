package controller

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/billing"
	"tightship_backend/pkg/metrics"
	"tightship_backend/pkg/plan"
	"tightship_backend/pkg/ratelimit"
	"tightship_backend/pkg/usage"
)

// PublicController serves the read-only menu API consumed by third parties.
// Callers authenticate with a per-organization API key; every hit counts
// against the plan's apiCalls limit.
type PublicController struct {
	db       *gorm.DB
	usage    *usage.Service
	limiter  *ratelimit.Limiter
	provider billing.Provider
	log      zerolog.Logger
}

func NewPublicController(db *gorm.DB, usageSvc *usage.Service, limiter *ratelimit.Limiter, provider billing.Provider, log zerolog.Logger) *PublicController {
	return &PublicController{db: db, usage: usageSvc, limiter: limiter, provider: provider, log: log}
}

func (pc *PublicController) GetMenu(c *fiber.Ctx) error {
	apiKey := c.Get("X-API-Key")
	if apiKey == "" {
		metrics.PublicAPIRequests.WithLabelValues("unauthorized").Inc()
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing API key",
		})
	}

	var org model.Organization
	if err := pc.db.Where("api_key = ?", apiKey).First(&org).Error; err != nil {
		metrics.PublicAPIRequests.WithLabelValues("unauthorized").Inc()
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid API key",
		})
	}

	var sub model.Subscription
	tier := plan.TierFree
	if err := pc.db.Preload("Plan").Where("organization_id = ?", org.ID).
		First(&sub).Error; err == nil {
		tier = plan.Tier(sub.Plan.Tier)
	}
	if !plan.CanUseFeature(tier, plan.PublicAPI) {
		metrics.PublicAPIRequests.WithLabelValues("forbidden").Inc()
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "The public API requires a higher subscription plan",
			"code":  "FEATURE_NOT_AVAILABLE",
		})
	}

	allowed, err := pc.limiter.Allow(c.Context(), apiKey)
	if err != nil {
		pc.log.Warn().Err(err).Msg("rate limiter unavailable, failing open")
	}
	if remaining, err := pc.limiter.Remaining(c.Context(), apiKey); err == nil {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	if !allowed {
		metrics.PublicAPIRequests.WithLabelValues("rate_limited").Inc()
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Rate limit exceeded",
		})
	}

	snap, err := pc.usage.Check(c.Context(), org.ID, usage.ResourceAPICalls)
	if err != nil {
		pc.log.Warn().Err(err).Uint("organization_id", org.ID).Msg("could not check API call quota, failing open")
	} else if !snap.IsUnlimited && snap.Current >= int64(snap.Limit) {
		metrics.PublicAPIRequests.WithLabelValues("quota_exceeded").Inc()
		return c.Status(fiber.StatusTooManyRequests).JSON(pc.usage.ExceededError(snap))
	}

	if _, err := pc.usage.RecordAPICall(c.Context(), org.ID); err != nil {
		pc.log.Warn().Err(err).Uint("organization_id", org.ID).Msg("could not record API call")
	}
	pc.provider.RecordAPIUsage(c.Context(), sub.StripeSubscriptionItemID, 1)

	restaurantSlug := c.Params("restaurant_slug")

	var restaurant model.Restaurant
	if err := pc.db.Where("slug = ? AND organization_id = ?", restaurantSlug, org.ID).
		First(&restaurant).Error; err != nil {
		metrics.PublicAPIRequests.WithLabelValues("not_found").Inc()
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Restaurant not found",
		})
	}

	var menus []model.Menu
	if err := pc.db.Where("restaurant_id = ? AND active = ?", restaurant.ID, true).
		Preload("Products", "available = ?", true).
		Find(&menus).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch menus",
		})
	}

	metrics.PublicAPIRequests.WithLabelValues("ok").Inc()

	if strings.EqualFold(c.Query("format"), "csv") {
		if !plan.CanUseFeature(tier, plan.CSVExport) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "CSV output requires a higher subscription plan",
				"code":  "FEATURE_NOT_AVAILABLE",
			})
		}
		return renderMenuCSV(c, restaurant, menus)
	}

	return c.JSON(fiber.Map{
		"restaurant": fiber.Map{
			"name":     restaurant.Name,
			"slug":     restaurant.Slug,
			"address":  restaurant.Address,
			"timezone": restaurant.Timezone,
		},
		"menus": menus,
	})
}

// renderMenuCSV writes the flattened product rows for a restaurant. Shared by
// the public API and the authenticated export endpoint.
func renderMenuCSV(c *fiber.Ctx, restaurant model.Restaurant, menus []model.Menu) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	w.Write([]string{"menu", "category", "name", "sku", "description", "price", "tax_rate", "price_with_tax"})
	for _, menu := range menus {
		for _, product := range menu.Products {
			w.Write([]string{
				menu.Name,
				product.Category,
				product.Name,
				product.SKU,
				product.Description,
				fmt.Sprintf("%.2f", product.Price),
				fmt.Sprintf("%.2f", product.TaxRate),
				fmt.Sprintf("%.2f", product.PriceWithTax()),
			})
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not render CSV",
		})
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-menu.csv", restaurant.Slug))
	return c.SendString(sb.String())
}
