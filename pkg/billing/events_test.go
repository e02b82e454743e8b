package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v74"
)

func stripeEvent(id, eventType, payload string) stripe.Event {
	return stripe.Event{
		ID:   id,
		Type: eventType,
		Data: &stripe.EventData{Raw: json.RawMessage(payload)},
	}
}

func TestParseEventCheckoutCompleted(t *testing.T) {
	event := stripeEvent("evt_1", "checkout.session.completed", `{
		"id": "cs_123",
		"customer": "cus_123",
		"subscription": "sub_123",
		"client_reference_id": "42"
	}`)

	parsed, err := ParseEvent(event)
	require.NoError(t, err)

	checkout, ok := parsed.(CheckoutCompleted)
	require.True(t, ok)
	assert.Equal(t, "evt_1", checkout.EventID())
	assert.Equal(t, uint(42), checkout.OrganizationID)
	assert.Equal(t, "cus_123", checkout.CustomerID)
	assert.Equal(t, "sub_123", checkout.SubscriptionID)
}

func TestParseEventSubscriptionUpdated(t *testing.T) {
	event := stripeEvent("evt_2", "customer.subscription.updated", `{
		"id": "sub_123",
		"customer": "cus_123",
		"status": "past_due",
		"current_period_start": 1767225600,
		"current_period_end": 1769904000,
		"cancel_at_period_end": true,
		"items": {"data": [{"id": "si_123", "price": {"id": "price_pro_m"}}]}
	}`)

	parsed, err := ParseEvent(event)
	require.NoError(t, err)

	synced, ok := parsed.(SubscriptionSynced)
	require.True(t, ok)
	assert.Equal(t, "sub_123", synced.SubscriptionID)
	assert.Equal(t, "past_due", synced.ProviderStatus)
	assert.Equal(t, "price_pro_m", synced.PriceID)
	assert.Equal(t, "si_123", synced.ItemID)
	assert.True(t, synced.CancelAtPeriodEnd)
	assert.Equal(t, time.Unix(1767225600, 0), synced.PeriodStart)
	assert.Equal(t, time.Unix(1769904000, 0), synced.PeriodEnd)
}

func TestParseEventSubscriptionWithoutItems(t *testing.T) {
	event := stripeEvent("evt_3", "customer.subscription.created", `{
		"id": "sub_123",
		"customer": "cus_123",
		"status": "active",
		"items": {"data": []}
	}`)

	parsed, err := ParseEvent(event)
	require.NoError(t, err)

	synced := parsed.(SubscriptionSynced)
	assert.Empty(t, synced.PriceID)
}

func TestParseEventSubscriptionDeleted(t *testing.T) {
	event := stripeEvent("evt_4", "customer.subscription.deleted", `{"id": "sub_123"}`)

	parsed, err := ParseEvent(event)
	require.NoError(t, err)

	deleted, ok := parsed.(SubscriptionDeleted)
	require.True(t, ok)
	assert.Equal(t, "sub_123", deleted.SubscriptionID)
}

func TestParseEventInvoicePaymentSucceeded(t *testing.T) {
	event := stripeEvent("evt_5", "invoice.payment_succeeded", `{
		"subscription": "sub_123",
		"attempt_count": 3
	}`)

	parsed, err := ParseEvent(event)
	require.NoError(t, err)

	paid, ok := parsed.(InvoicePaid)
	require.True(t, ok)
	assert.Equal(t, "sub_123", paid.SubscriptionID)
	assert.Equal(t, int64(3), paid.AttemptCount)
}

func TestParseEventInvoicePaymentFailed(t *testing.T) {
	event := stripeEvent("evt_6", "invoice.payment_failed", `{
		"subscription": "sub_123",
		"attempt_count": 2,
		"amount_due": 2900,
		"currency": "gbp"
	}`)

	parsed, err := ParseEvent(event)
	require.NoError(t, err)

	failed, ok := parsed.(PaymentFailed)
	require.True(t, ok)
	assert.Equal(t, int64(2), failed.AttemptCount)
	assert.Equal(t, int64(2900), failed.AmountDue)
	assert.Equal(t, "gbp", failed.Currency)
}

func TestParseEventUnknownTypeIsIgnoredNotError(t *testing.T) {
	event := stripeEvent("evt_7", "payment_method.attached", `{"id": "pm_123"}`)

	parsed, err := ParseEvent(event)
	require.NoError(t, err)

	ignored, ok := parsed.(Ignored)
	require.True(t, ok)
	assert.Equal(t, "evt_7", ignored.EventID())
	assert.Equal(t, "payment_method.attached", ignored.Type)
}

func TestParseEventMalformedPayload(t *testing.T) {
	event := stripeEvent("evt_8", "checkout.session.completed", `{"id": `)

	_, err := ParseEvent(event)
	assert.Error(t, err)
}
