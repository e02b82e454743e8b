package billing

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Provider is the billing-provider contract. Controllers depend on this
// interface so tests can substitute a fake.
type Provider interface {
	CreateCustomer(ctx context.Context, email, name string, organizationID uint) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string, organizationID uint) (CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (PortalSession, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	// RecordAPIUsage is best-effort: failures are logged, never surfaced.
	RecordAPIUsage(ctx context.Context, subscriptionItemID string, quantity int64)
}

// StripeProvider wraps an explicitly constructed Stripe client. No package
// global key is set anywhere.
type StripeProvider struct {
	client *client.API
	log    zerolog.Logger
}

func NewStripeProvider(secretKey string, log zerolog.Logger) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeProvider{client: sc, log: log}
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email, name string, organizationID uint) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata("organization_id", strconv.FormatUint(uint64(organizationID), 10))

	cust, err := p.client.Customers.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, customerID, priceID, successURL, cancelURL string, organizationID uint) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(customerID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(organizationID), 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	sess, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		return CheckoutSession{}, err
	}
	return CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (PortalSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := p.client.BillingPortalSessions.New(params)
	if err != nil {
		return PortalSession{}, err
	}
	return PortalSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := p.client.Subscriptions.Cancel(subscriptionID, params)
	return err
}

func (p *StripeProvider) RecordAPIUsage(ctx context.Context, subscriptionItemID string, quantity int64) {
	if subscriptionItemID == "" {
		return
	}

	params := &stripe.UsageRecordParams{
		SubscriptionItem: stripe.String(subscriptionItemID),
		Quantity:         stripe.Int64(quantity),
		Action:           stripe.String(stripe.UsageRecordActionIncrement),
	}
	params.Context = ctx

	if _, err := p.client.UsageRecords.New(params); err != nil {
		p.log.Error().Err(err).Str("subscription_item", subscriptionItemID).Msg("could not record API usage")
	}
}
