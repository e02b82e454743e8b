package model

import (
	"gorm.io/gorm"
)

type Restaurant struct {
	gorm.Model
	OrganizationID uint   `json:"organization_id" gorm:"index;not null"`
	Name           string `json:"name" gorm:"not null"`
	Slug           string `json:"slug" gorm:"uniqueIndex;not null"`
	Address        string `json:"address"`
	Phone          string `json:"phone"`
	Timezone       string `json:"timezone" gorm:"default:'Europe/London'"`

	Organization Organization `json:"-" gorm:"foreignKey:OrganizationID"`
	Menus        []Menu       `json:"menus,omitempty"`
}
