package model

import (
	"math"

	"gorm.io/gorm"
)

// Product carries net price plus tax rate. OrganizationID is denormalized so
// usage counting and tenant checks never need a join through menus.
type Product struct {
	gorm.Model
	OrganizationID uint    `json:"organization_id" gorm:"index;not null"`
	MenuID         uint    `json:"menu_id" gorm:"index;not null"`
	Name           string  `json:"name" gorm:"not null"`
	SKU            string  `json:"sku" gorm:"index"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	Price          float64 `json:"price" gorm:"not null"`
	TaxRate        float64 `json:"tax_rate" gorm:"default:0"`
	PhotoURL       string  `json:"photo_url"`
	Available      bool    `json:"available" gorm:"default:true"`

	Menu Menu `json:"-" gorm:"foreignKey:MenuID"`
}

// PriceWithTax returns the gross price rounded to the nearest penny.
func (p *Product) PriceWithTax() float64 {
	gross := p.Price * (1 + p.TaxRate/100)
	return math.Round(gross*100) / 100
}
