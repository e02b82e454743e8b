package model

import (
	"strings"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	OrganizationID uint   `json:"organization_id" gorm:"index;not null"`
	Email          string `json:"email" gorm:"uniqueIndex;not null"`
	Password       string `json:"-" gorm:"not null"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Role           string `json:"role" gorm:"default:'owner'"`

	Organization Organization `json:"-" gorm:"foreignKey:OrganizationID"`
}

func (u *User) GetFullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) GetPublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":              u.ID,
		"email":           u.Email,
		"full_name":       u.GetFullName(),
		"role":            u.Role,
		"organization_id": u.OrganizationID,
	}
}
