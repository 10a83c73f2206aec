package model

import "time"

type UserType string

const (
	UserTypeClient   UserType = "client"
	UserTypeDriver   UserType = "driver"
	UserTypeBusiness UserType = "business"
	UserTypeAdmin    UserType = "admin"
)

// User is managed by the external auth service; this backend only reads
// it as a foreign-key target and for notification routing.
type User struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	Email     string   `gorm:"size:255;uniqueIndex" json:"email"`
	Phone     string   `gorm:"size:15" json:"phone"`
	FirstName string   `gorm:"size:100" json:"first_name"`
	LastName  string   `gorm:"size:100" json:"last_name"`
	UserType  UserType `gorm:"size:20" json:"user_type"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Address struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index" json:"user_id"`
	Label  string `gorm:"size:100" json:"label"`
	Street string `gorm:"size:255" json:"street"`
	City   string `gorm:"size:100" json:"city"`
	Notes  string `gorm:"type:text" json:"notes"`

	CreatedAt time.Time `json:"created_at"`
}
