package model

import (
	"gorm.io/gorm"
)

// Organization is the tenant boundary. Every row a request can touch is
// scoped by OrganizationID.
type Organization struct {
	gorm.Model
	Name   string `json:"name" gorm:"not null"`
	Slug   string `json:"slug" gorm:"uniqueIndex;not null"`
	APIKey string `json:"-" gorm:"uniqueIndex;not null"`

	Users        []User        `json:"-"`
	Restaurants  []Restaurant  `json:"-"`
	Subscription *Subscription `json:"-"`
}
