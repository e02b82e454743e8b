package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/billing"
	"tightship_backend/pkg/config"
	"tightship_backend/pkg/dunning"
	"tightship_backend/pkg/email"
	"tightship_backend/pkg/usage"
	"tightship_backend/pkg/utils/jwt"
)

type SubscriptionController struct {
	db       *gorm.DB
	provider billing.Provider
	usage    *usage.Service
	dunning  *dunning.Manager
	mailer   *email.Service
	app      config.AppConfig
	log      zerolog.Logger
}

func NewSubscriptionController(db *gorm.DB, provider billing.Provider, usageSvc *usage.Service, dunningManager *dunning.Manager, mailer *email.Service, app config.AppConfig, log zerolog.Logger) *SubscriptionController {
	return &SubscriptionController{
		db:       db,
		provider: provider,
		usage:    usageSvc,
		dunning:  dunningManager,
		mailer:   mailer,
		app:      app,
		log:      log,
	}
}

type CheckoutInput struct {
	PriceID string `json:"price_id" validate:"required"`
}

func (sc *SubscriptionController) ListPlans(c *fiber.Ctx) error {
	var plans []model.Plan
	if err := sc.db.Order("price_monthly asc").Find(&plans).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch subscription plans",
		})
	}

	return c.JSON(plans)
}

// CreateCheckoutSession lazily creates the Stripe customer, then hands the
// browser a hosted checkout URL. The subscription itself is bound later by
// the checkout.session.completed webhook.
func (sc *SubscriptionController) CreateCheckoutSession(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	input := new(CheckoutInput)
	if err := c.BodyParser(input); err != nil || input.PriceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	var planRow model.Plan
	if err := sc.db.Where("stripe_price_monthly_id = ? OR stripe_price_yearly_id = ?", input.PriceID, input.PriceID).
		First(&planRow).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Subscription plan not found",
		})
	}

	var sub model.Subscription
	if err := sc.db.Preload("Organization").
		Where("organization_id = ?", claims.OrganizationID).
		First(&sub).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No subscription found for organization",
		})
	}

	if sub.StripeCustomerID == "" {
		customerID, err := sc.provider.CreateCustomer(c.Context(), claims.Email, sub.Organization.Name, claims.OrganizationID)
		if err != nil {
			sc.log.Error().Err(err).Uint("organization_id", claims.OrganizationID).
				Str("operation", "create_customer").Msg("billing provider error")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Could not create billing customer",
			})
		}
		sub.StripeCustomerID = customerID
		if err := sc.db.Model(&sub).Update("stripe_customer_id", customerID).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Could not save billing customer",
			})
		}
	}

	session, err := sc.provider.CreateCheckoutSession(
		c.Context(),
		sub.StripeCustomerID,
		input.PriceID,
		sc.app.BaseURL+"/settings/billing?checkout=success",
		sc.app.BaseURL+"/settings/billing?checkout=cancelled",
		claims.OrganizationID,
	)
	if err != nil {
		sc.log.Error().Err(err).Uint("organization_id", claims.OrganizationID).
			Str("operation", "create_checkout_session").Msg("billing provider error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create checkout session",
		})
	}

	return c.JSON(session)
}

func (sc *SubscriptionController) CreatePortalSession(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var sub model.Subscription
	if err := sc.db.Where("organization_id = ?", claims.OrganizationID).
		First(&sub).Error; err != nil || sub.StripeCustomerID == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No billing account found",
		})
	}

	session, err := sc.provider.CreatePortalSession(c.Context(), sub.StripeCustomerID, sc.app.BaseURL+"/settings/billing")
	if err != nil {
		sc.log.Error().Err(err).Uint("organization_id", claims.OrganizationID).
			Str("operation", "create_portal_session").Msg("billing provider error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create portal session",
		})
	}

	return c.JSON(session)
}

// GetMySubscription returns the subscription with plan, per-resource usage,
// and any dunning warnings in one payload for the billing page.
func (sc *SubscriptionController) GetMySubscription(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var sub model.Subscription
	if err := sc.db.Preload("Plan").
		Where("organization_id = ?", claims.OrganizationID).
		First(&sub).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No subscription found",
		})
	}

	snapshots := make([]usage.Snapshot, 0, 3)
	for _, resource := range []usage.Resource{usage.ResourceRestaurants, usage.ResourceProducts, usage.ResourceAPICalls} {
		snap, err := sc.usage.Check(c.Context(), claims.OrganizationID, resource)
		if err != nil {
			sc.log.Error().Err(err).Str("resource", string(resource)).Msg("could not compute usage")
			continue
		}
		snapshots = append(snapshots, snap)
	}

	warnings, err := sc.dunning.Warnings(c.Context(), claims.OrganizationID)
	if err != nil {
		sc.log.Error().Err(err).Msg("could not compute subscription warnings")
		warnings = []dunning.Warning{}
	}

	return c.JSON(fiber.Map{
		"subscription": sub,
		"usage":        snapshots,
		"warnings":     warnings,
	})
}

func (sc *SubscriptionController) CancelSubscription(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var sub model.Subscription
	if err := sc.db.Preload("Plan").Preload("Organization").
		Where("organization_id = ?", claims.OrganizationID).
		First(&sub).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No subscription found",
		})
	}

	if sub.StripeSubscriptionID == "" || sub.Status == model.StatusCancelled {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No active paid subscription to cancel",
		})
	}

	if err := sc.provider.CancelSubscription(c.Context(), sub.StripeSubscriptionID); err != nil {
		sc.log.Error().Err(err).Uint("organization_id", claims.OrganizationID).
			Str("operation", "cancel_subscription").Msg("billing provider error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not cancel subscription",
		})
	}

	if err := sc.db.Model(&sub).Update("status", model.StatusCancelled).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not update subscription status",
		})
	}

	if sc.mailer != nil {
		activeUntil := time.Now()
		if sub.CurrentPeriodEnd != nil {
			activeUntil = *sub.CurrentPeriodEnd
		}
		if err := sc.mailer.SendSubscriptionCancelledEmail(claims.Email, sub.Organization.Name, sub.Plan.Name, activeUntil); err != nil {
			sc.log.Error().Err(err).Msg("could not send cancellation email")
		}
	}

	return c.JSON(fiber.Map{
		"message": "Subscription cancelled successfully",
	})
}
