package models

import "gorm.io/gorm"

// AddressType distinguishes billing from shipping addresses.
type AddressType string

const (
	AddressBilling  AddressType = "B"
	AddressShipping AddressType = "S"
)

// Address is a billing or shipping address owned by a single user.
type Address struct {
	gorm.Model
	UserID           string      `json:"user_id" gorm:"type:varchar(36);not null;index"`
	StreetAddress    string      `json:"street_address" gorm:"type:varchar(100);not null"`
	ApartmentAddress string      `json:"apartment_address" gorm:"type:varchar(100)"`
	Country          string      `json:"country" gorm:"type:varchar(2);not null"`
	Zip              string      `json:"zip" gorm:"type:varchar(100);not null"`
	AddressType      AddressType `json:"address_type" gorm:"type:varchar(1);not null;index"`
	Default          bool        `json:"default" gorm:"column:is_default;not null"`
}
