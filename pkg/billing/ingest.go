package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tightship_backend/internal/model"
	"tightship_backend/pkg/dunning"
)

// Mailer is the slice of the email service the ingestor needs.
type Mailer interface {
	SendSubscriptionStartedEmail(to, organizationName, planName string, price float64, periodEnd time.Time) error
}

// Ingestor applies verified, deduplicated billing events to subscription
// rows. Events may arrive out of chronological order; every handler is an
// independent idempotent upsert with staleness guards.
type Ingestor struct {
	db      *gorm.DB
	dunning *dunning.Manager
	mailer  Mailer
	log     zerolog.Logger
}

func NewIngestor(db *gorm.DB, dunningManager *dunning.Manager, mailer Mailer, log zerolog.Logger) *Ingestor {
	return &Ingestor{db: db, dunning: dunningManager, mailer: mailer, log: log}
}

// Apply dispatches one event. The match is exhaustive over the closed
// variant set; an unknown variant is a programming error.
func (i *Ingestor) Apply(ctx context.Context, event Event) error {
	switch ev := event.(type) {
	case CheckoutCompleted:
		return i.applyCheckoutCompleted(ctx, ev)
	case SubscriptionSynced:
		return i.applySubscriptionSynced(ctx, ev)
	case SubscriptionDeleted:
		return i.applySubscriptionDeleted(ctx, ev)
	case InvoicePaid:
		return i.applyInvoicePaid(ctx, ev)
	case PaymentFailed:
		return i.dunning.HandlePaymentFailed(ctx, ev.SubscriptionID, ev.AttemptCount, ev.AmountDue, ev.Currency)
	case Ignored:
		i.log.Debug().Str("event_id", ev.ID).Str("type", ev.Type).Msg("ignoring unhandled billing event type")
		return nil
	}
	return fmt.Errorf("unhandled billing event variant %T", event)
}

func (i *Ingestor) applyCheckoutCompleted(ctx context.Context, ev CheckoutCompleted) error {
	sub, err := i.findSubscription(ctx, ev)
	if err != nil {
		return err
	}

	sub.StripeCustomerID = ev.CustomerID
	sub.StripeSubscriptionID = ev.SubscriptionID
	sub.Status = model.StatusActive

	if err := i.db.WithContext(ctx).Save(sub).Error; err != nil {
		return err
	}

	i.log.Info().
		Uint("organization_id", sub.OrganizationID).
		Str("stripe_subscription_id", ev.SubscriptionID).
		Msg("checkout completed, subscription bound")

	if i.mailer != nil {
		var user model.User
		err := i.db.WithContext(ctx).
			Preload("Organization").
			Where("organization_id = ? AND role = ?", sub.OrganizationID, "owner").
			First(&user).Error
		if err == nil {
			var planRow model.Plan
			i.db.WithContext(ctx).First(&planRow, sub.PlanID)
			periodEnd := time.Now().AddDate(0, 1, 0)
			if sub.CurrentPeriodEnd != nil {
				periodEnd = *sub.CurrentPeriodEnd
			}
			if err := i.mailer.SendSubscriptionStartedEmail(user.Email, user.Organization.Name, planRow.Name, planRow.PriceMonthly, periodEnd); err != nil {
				i.log.Error().Err(err).Msg("could not send subscription started email")
			}
		}
	}

	return nil
}

func (i *Ingestor) findSubscription(ctx context.Context, ev CheckoutCompleted) (*model.Subscription, error) {
	var sub model.Subscription
	if ev.OrganizationID != 0 {
		if err := i.db.WithContext(ctx).
			Where("organization_id = ?", ev.OrganizationID).
			First(&sub).Error; err == nil {
			return &sub, nil
		}
	}
	// Checkout sessions created before the client reference id was wired in
	// can still be matched by customer.
	if err := i.db.WithContext(ctx).
		Where("stripe_customer_id = ?", ev.CustomerID).
		First(&sub).Error; err != nil {
		return nil, fmt.Errorf("checkout completed for unknown organization (event %s): %w", ev.ID, err)
	}
	return &sub, nil
}

func (i *Ingestor) applySubscriptionSynced(ctx context.Context, ev SubscriptionSynced) error {
	var sub model.Subscription
	err := i.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", ev.SubscriptionID).
		First(&sub).Error
	if err == gorm.ErrRecordNotFound {
		// subscription.created can outrun checkout.session.completed; bind by
		// customer id instead of dropping the event.
		err = i.db.WithContext(ctx).
			Where("stripe_customer_id = ?", ev.CustomerID).
			First(&sub).Error
	}
	if err != nil {
		i.log.Warn().Str("event_id", ev.ID).Str("stripe_subscription_id", ev.SubscriptionID).
			Msg("subscription sync for unknown subscription, skipping")
		return nil
	}

	if skip, reason := shouldSkipSync(&sub, ev); skip {
		i.log.Info().Str("event_id", ev.ID).Str("reason", reason).Msg("skipping stale subscription sync")
		return nil
	}

	planID, err := i.planIDForPrice(ctx, ev.PriceID, sub.PlanID)
	if err != nil {
		return err
	}

	periodStart := ev.PeriodStart
	periodEnd := ev.PeriodEnd
	sub.StripeSubscriptionID = ev.SubscriptionID
	if ev.ItemID != "" {
		sub.StripeSubscriptionItemID = ev.ItemID
	}
	sub.PlanID = planID
	sub.Status = mapProviderStatus(ev.ProviderStatus)
	sub.CurrentPeriodStart = &periodStart
	sub.CurrentPeriodEnd = &periodEnd
	sub.CancelAtPeriodEnd = ev.CancelAtPeriodEnd

	if err := i.db.WithContext(ctx).Save(&sub).Error; err != nil {
		return err
	}

	i.log.Info().
		Uint("organization_id", sub.OrganizationID).
		Str("status", sub.Status).
		Uint("plan_id", sub.PlanID).
		Msg("subscription synced from provider")
	return nil
}

// shouldSkipSync guards against redeliveries applied out of order: a sync
// must never resurrect a cancellation or rewind the billing period.
func shouldSkipSync(sub *model.Subscription, ev SubscriptionSynced) (bool, string) {
	if sub.Status == model.StatusCancelled {
		return true, "subscription already cancelled"
	}
	if sub.CurrentPeriodStart != nil && ev.PeriodStart.Before(*sub.CurrentPeriodStart) {
		return true, "event period older than stored period"
	}
	return false, ""
}

func (i *Ingestor) applySubscriptionDeleted(ctx context.Context, ev SubscriptionDeleted) error {
	// Period fields stay intact for history; only the status moves.
	result := i.db.WithContext(ctx).
		Model(&model.Subscription{}).
		Where("stripe_subscription_id = ?", ev.SubscriptionID).
		Update("status", model.StatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		i.log.Warn().Str("event_id", ev.ID).Str("stripe_subscription_id", ev.SubscriptionID).
			Msg("deletion for unknown subscription, skipping")
		return nil
	}

	i.log.Info().Str("stripe_subscription_id", ev.SubscriptionID).Msg("subscription cancelled")
	return nil
}

func (i *Ingestor) applyInvoicePaid(ctx context.Context, ev InvoicePaid) error {
	if ev.AttemptCount > 1 {
		return i.dunning.HandlePaymentRecovered(ctx, ev.SubscriptionID)
	}
	i.log.Debug().Str("event_id", ev.ID).Str("stripe_subscription_id", ev.SubscriptionID).
		Msg("invoice paid on first attempt")
	return nil
}

// planIDForPrice reverse-looks-up the plan row by provider price id. An
// unrecognized price keeps the current plan rather than silently downgrading.
func (i *Ingestor) planIDForPrice(ctx context.Context, priceID string, currentPlanID uint) (uint, error) {
	if priceID == "" {
		return currentPlanID, nil
	}

	var planRow model.Plan
	err := i.db.WithContext(ctx).
		Where("stripe_price_monthly_id = ? OR stripe_price_yearly_id = ?", priceID, priceID).
		First(&planRow).Error
	if err == gorm.ErrRecordNotFound {
		i.log.Warn().Str("price_id", priceID).Msg("unknown provider price id, keeping current plan")
		return currentPlanID, nil
	}
	if err != nil {
		return 0, err
	}
	return planRow.ID, nil
}

// mapProviderStatus translates Stripe's status vocabulary into ours.
func mapProviderStatus(providerStatus string) string {
	switch providerStatus {
	case "active":
		return model.StatusActive
	case "trialing":
		return model.StatusTrialing
	case "past_due":
		return model.StatusPastDue
	case "canceled":
		return model.StatusCancelled
	case "unpaid", "incomplete", "incomplete_expired":
		return model.StatusUnpaid
	}
	return model.StatusUnpaid
}
