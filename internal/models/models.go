package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           string    `gorm:"type:uuid;primaryKey"      json:"_id"`
	Email        string    `gorm:"uniqueIndex;not null"      json:"email"`
	PasswordHash string    `gorm:"default:''"                json:"-"`
	Name         string    `gorm:"default:''"                json:"name"`
	IsVerified   bool      `gorm:"not null;default:false"    json:"isVerified"`
	GoogleID     *string   `gorm:"uniqueIndex"               json:"-"`
	CreatedAt    time.Time `                                 json:"createdAt"`
	UpdatedAt    time.Time `                                 json:"updatedAt"`

	RefreshTokens []RefreshToken `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// HasPassword is false for identities created through an external provider.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// RefreshToken is one entry of a user's list of currently valid refresh
// credentials. Only the sha256 of the signed token is stored.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    string    `gorm:"type:uuid;index;not null"`
	TokenHash string    `gorm:"uniqueIndex;not null"`
	JTI       string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
	CreatedAt time.Time
}
