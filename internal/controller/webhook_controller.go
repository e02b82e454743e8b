package controller

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v74/webhook"

	"tightship_backend/pkg/billing"
	"tightship_backend/pkg/metrics"
)

// EventApplier applies one parsed billing event.
type EventApplier interface {
	Apply(ctx context.Context, event billing.Event) error
}

// EventDeduper marks event ids as processed and reports first delivery.
// Unmark releases an id whose processing failed so a retry is not absorbed.
type EventDeduper interface {
	MarkProcessed(ctx context.Context, eventID string) (bool, error)
	Unmark(ctx context.Context, eventID string) error
}

type WebhookController struct {
	secret  string
	applier EventApplier
	dedup   EventDeduper
	log     zerolog.Logger
}

func NewWebhookController(secret string, applier EventApplier, dedup EventDeduper, log zerolog.Logger) *WebhookController {
	return &WebhookController{secret: secret, applier: applier, dedup: dedup, log: log}
}

// HandleStripeWebhook is the sole externally triggered state transition into
// the billing subsystem. Order matters: verify the signature before touching
// anything, dedup before any side effect, then apply.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signatureHeader := c.Get("Stripe-Signature")

	// Endpoint API versions vary per Stripe account; the payload fields we
	// read are stable across them, so a version mismatch is not a rejection.
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, wc.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "bad_signature").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook signature",
		})
	}

	parsed, err := billing.ParseEvent(event)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "malformed").Inc()
		wc.log.Error().Err(err).Str("event_id", event.ID).Msg("malformed webhook payload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Malformed event payload",
		})
	}

	first, err := wc.dedup.MarkProcessed(c.Context(), parsed.EventID())
	if err != nil {
		// Ledger unavailable: process anyway. A duplicate side effect beats a
		// dropped lifecycle transition.
		wc.log.Warn().Err(err).Str("event_id", parsed.EventID()).Msg("event dedup ledger unavailable")
	}
	if !first {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "duplicate").Inc()
		wc.log.Info().Str("event_id", parsed.EventID()).Msg("duplicate webhook delivery absorbed")
		return c.JSON(fiber.Map{"received": true})
	}

	if err := wc.applier.Apply(c.Context(), parsed); err != nil {
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "error").Inc()
		wc.log.Error().Err(err).Str("event_id", parsed.EventID()).Str("type", string(event.Type)).
			Msg("could not apply webhook event")
		// Release the ledger entry, otherwise the provider's retry of this
		// event id would be absorbed as a duplicate and the transition lost.
		if unmarkErr := wc.dedup.Unmark(c.Context(), parsed.EventID()); unmarkErr != nil {
			wc.log.Error().Err(unmarkErr).Str("event_id", parsed.EventID()).
				Msg("could not release event from dedup ledger")
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not process event",
		})
	}

	metrics.WebhookEvents.WithLabelValues(string(event.Type), "ok").Inc()
	return c.JSON(fiber.Map{"received": true})
}
