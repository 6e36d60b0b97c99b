package domain

import (
	"time"

	"gorm.io/datatypes"
)

type User struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	Username    string            `gorm:"size:150;not null" json:"username"`
	Email       string            `gorm:"size:255" json:"email"`
	Password    string            `gorm:"size:255;not null" json:"-"`
	FirstName   string            `gorm:"size:150" json:"first_name"`
	LastName    string            `gorm:"size:150" json:"last_name"`
	IsSuperuser bool              `gorm:"not null;default:false" json:"is_superuser"`
	IsActive    bool              `gorm:"not null;default:true" json:"is_active"`
	Config      datatypes.JSONMap `json:"config"`
	Timestamps
	SoftDelete
}

func (User) TableName() string { return "users" }

// Token is an API token presented as "Authorization: Token <key>".
type Token struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	UserID    uint      `gorm:"index;not null" json:"user"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

func (Token) TableName() string { return "auth_token" }
