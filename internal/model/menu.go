package model

import (
	"gorm.io/gorm"
)

type Menu struct {
	gorm.Model
	RestaurantID uint   `json:"restaurant_id" gorm:"index;not null"`
	Name         string `json:"name" gorm:"not null"`
	Description  string `json:"description"`
	Active       bool   `json:"active" gorm:"default:true"`

	Restaurant Restaurant `json:"-" gorm:"foreignKey:RestaurantID"`
	Products   []Product  `json:"products,omitempty"`
}
