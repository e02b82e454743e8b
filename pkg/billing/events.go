package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v74"
)

// Event is the closed set of billing events this system reacts to. Each
// provider event type maps to exactly one variant; anything else becomes
// Ignored. The ingestor matches the set exhaustively, so adding a variant
// without a handler is a compile-visible gap, not a silent default.
type Event interface {
	EventID() string
	eventVariant()
}

// CheckoutCompleted binds the provider customer and subscription ids to the
// organization that started checkout.
type CheckoutCompleted struct {
	ID             string
	OrganizationID uint
	CustomerID     string
	SubscriptionID string
}

// SubscriptionSynced mirrors customer.subscription.created|updated: status,
// price, and period boundaries as the provider sees them.
type SubscriptionSynced struct {
	ID                string
	SubscriptionID    string
	CustomerID        string
	PriceID           string
	ItemID            string
	ProviderStatus    string
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

type SubscriptionDeleted struct {
	ID             string
	SubscriptionID string
}

// InvoicePaid carries the attempt count so recovery after failures can be
// distinguished from a routine renewal.
type InvoicePaid struct {
	ID             string
	SubscriptionID string
	AttemptCount   int64
}

type PaymentFailed struct {
	ID             string
	SubscriptionID string
	AttemptCount   int64
	AmountDue      int64
	Currency       string
}

// Ignored is an accepted, unprocessed event type. Forward compatibility:
// unknown types are never errors.
type Ignored struct {
	ID   string
	Type string
}

func (e CheckoutCompleted) EventID() string   { return e.ID }
func (e SubscriptionSynced) EventID() string  { return e.ID }
func (e SubscriptionDeleted) EventID() string { return e.ID }
func (e InvoicePaid) EventID() string         { return e.ID }
func (e PaymentFailed) EventID() string       { return e.ID }
func (e Ignored) EventID() string             { return e.ID }

func (CheckoutCompleted) eventVariant()   {}
func (SubscriptionSynced) eventVariant()  {}
func (SubscriptionDeleted) eventVariant() {}
func (InvoicePaid) eventVariant()         {}
func (PaymentFailed) eventVariant()       {}
func (Ignored) eventVariant()             {}

// ParseEvent converts a verified provider event into a typed variant.
func ParseEvent(event stripe.Event) (Event, error) {
	switch event.Type {
	case "checkout.session.completed":
		var data struct {
			ID                string `json:"id"`
			Customer          string `json:"customer"`
			Subscription      string `json:"subscription"`
			ClientReferenceID string `json:"client_reference_id"`
		}
		if err := json.Unmarshal(event.Data.Raw, &data); err != nil {
			return nil, fmt.Errorf("malformed checkout.session.completed payload: %w", err)
		}
		orgID, _ := strconv.ParseUint(data.ClientReferenceID, 10, 64)
		return CheckoutCompleted{
			ID:             event.ID,
			OrganizationID: uint(orgID),
			CustomerID:     data.Customer,
			SubscriptionID: data.Subscription,
		}, nil

	case "customer.subscription.created", "customer.subscription.updated":
		var data struct {
			ID                 string `json:"id"`
			Customer           string `json:"customer"`
			Status             string `json:"status"`
			CurrentPeriodStart int64  `json:"current_period_start"`
			CurrentPeriodEnd   int64  `json:"current_period_end"`
			CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
			Items              struct {
				Data []struct {
					ID    string `json:"id"`
					Price struct {
						ID string `json:"id"`
					} `json:"price"`
				} `json:"data"`
			} `json:"items"`
		}
		if err := json.Unmarshal(event.Data.Raw, &data); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", event.Type, err)
		}
		priceID, itemID := "", ""
		if len(data.Items.Data) > 0 {
			itemID = data.Items.Data[0].ID
			priceID = data.Items.Data[0].Price.ID
		}
		return SubscriptionSynced{
			ID:                event.ID,
			SubscriptionID:    data.ID,
			CustomerID:        data.Customer,
			PriceID:           priceID,
			ItemID:            itemID,
			ProviderStatus:    data.Status,
			PeriodStart:       time.Unix(data.CurrentPeriodStart, 0),
			PeriodEnd:         time.Unix(data.CurrentPeriodEnd, 0),
			CancelAtPeriodEnd: data.CancelAtPeriodEnd,
		}, nil

	case "customer.subscription.deleted":
		var data struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data.Raw, &data); err != nil {
			return nil, fmt.Errorf("malformed customer.subscription.deleted payload: %w", err)
		}
		return SubscriptionDeleted{ID: event.ID, SubscriptionID: data.ID}, nil

	case "invoice.payment_succeeded":
		var data struct {
			Subscription string `json:"subscription"`
			AttemptCount int64  `json:"attempt_count"`
		}
		if err := json.Unmarshal(event.Data.Raw, &data); err != nil {
			return nil, fmt.Errorf("malformed invoice.payment_succeeded payload: %w", err)
		}
		return InvoicePaid{
			ID:             event.ID,
			SubscriptionID: data.Subscription,
			AttemptCount:   data.AttemptCount,
		}, nil

	case "invoice.payment_failed":
		var data struct {
			Subscription string `json:"subscription"`
			AttemptCount int64  `json:"attempt_count"`
			AmountDue    int64  `json:"amount_due"`
			Currency     string `json:"currency"`
		}
		if err := json.Unmarshal(event.Data.Raw, &data); err != nil {
			return nil, fmt.Errorf("malformed invoice.payment_failed payload: %w", err)
		}
		return PaymentFailed{
			ID:             event.ID,
			SubscriptionID: data.Subscription,
			AttemptCount:   data.AttemptCount,
			AmountDue:      data.AmountDue,
			Currency:       data.Currency,
		}, nil
	}

	return Ignored{ID: event.ID, Type: string(event.Type)}, nil
}
