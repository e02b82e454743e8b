package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Plan is a catalog row. Seeded administratively from pkg/plan, shared by many
// subscriptions, never owned by one. Limit columns use -1 for unlimited.
type Plan struct {
	gorm.Model
	Tier         string         `json:"tier" gorm:"uniqueIndex;not null"`
	Name         string         `json:"name" gorm:"not null"`
	Description  string         `json:"description"`
	PriceMonthly float64        `json:"price_monthly" gorm:"not null"`
	PriceYearly  float64        `json:"price_yearly" gorm:"not null"`
	Features     datatypes.JSON `json:"features"`

	MaxRestaurants int `json:"max_restaurants" gorm:"not null"`
	MaxProducts    int `json:"max_products" gorm:"not null"`
	MaxAPICalls    int `json:"max_api_calls" gorm:"not null"`

	StripePriceMonthlyID string `json:"-"`
	StripePriceYearlyID  string `json:"-"`

	Subscriptions []Subscription `json:"-"`
}
