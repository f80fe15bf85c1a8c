package models

import "time"

// User represents a user of the store.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)" validate:"omitempty,uuid"`
	Username  string    `json:"username" gorm:"uniqueIndex;type:varchar(100)" validate:"required,min=3,max=100"`
	Email     string    `json:"email" gorm:"uniqueIndex;type:varchar(255)" validate:"required,email"`
	Password  string    `json:"password,omitempty" gorm:"type:varchar(255)" validate:"required,min=6"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserProfile caches the payment processor identity of a user.
type UserProfile struct {
	ID                  uint   `json:"id" gorm:"primaryKey"`
	UserID              string `json:"user_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	ProcessorCustomerID string `json:"-" gorm:"type:varchar(50)"`
	OneClickPurchasing  bool   `json:"one_click_purchasing" gorm:"not null"`
}
