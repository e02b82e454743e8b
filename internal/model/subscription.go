package model

import (
	"time"

	"gorm.io/gorm"
)

// Subscription statuses. ACTIVE and PAST_DUE are mutually recoverable;
// CANCELLED is terminal unless explicitly reactivated; UNPAID means the grace
// period elapsed without recovery.
const (
	StatusTrialing  = "TRIALING"
	StatusActive    = "ACTIVE"
	StatusPastDue   = "PAST_DUE"
	StatusCancelled = "CANCELLED"
	StatusUnpaid    = "UNPAID"
)

// Subscription links an organization to its plan and mirrors provider state.
// One per organization, created at signup, never hard-deleted.
type Subscription struct {
	gorm.Model
	OrganizationID uint   `json:"organization_id" gorm:"uniqueIndex;not null"`
	PlanID         uint   `json:"plan_id" gorm:"not null"`
	Status         string `json:"status" gorm:"default:'TRIALING';not null"`

	StripeCustomerID     string `json:"-" gorm:"index"`
	StripeSubscriptionID string `json:"-" gorm:"index"`
	// Subscription item id, needed for metered usage records.
	StripeSubscriptionItemID string `json:"-"`

	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end" gorm:"default:false"`

	// Dunning state, driven by invoice webhook events.
	FailedPaymentCount  int        `json:"-" gorm:"default:0"`
	LastPaymentFailedAt *time.Time `json:"-"`
	GraceDeadline       *time.Time `json:"-"`

	Organization Organization `json:"-" gorm:"foreignKey:OrganizationID"`
	Plan         Plan         `json:"plan" gorm:"foreignKey:PlanID"`
}
