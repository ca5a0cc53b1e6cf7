package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Presence values persisted for a user. The hub is the only writer.
const (
	UserStatusOnline  = "online"
	UserStatusOffline = "offline"
)

type User struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Username     string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	DisplayName  string    `gorm:"type:varchar(100)" json:"display_name"`
	PasswordHash string    `gorm:"type:varchar(100);not null" json:"-"`
	Status       string    `gorm:"type:varchar(20);default:offline" json:"status"`
	LastSeenAt   time.Time `json:"last_seen_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// Name returns the name shown to other participants.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
