package models

import (
	"time"

	"gorm.io/gorm"
)

type UserType string

const (
	UserTypeMember UserType = "member"
)

// Profile is a registered member. ID is the auth provider's user id.
type Profile struct {
	ID                string   `gorm:"primaryKey;size:64" json:"id"`
	Email             string   `gorm:"size:320;index" json:"email,omitempty"`
	DisplayName       string   `gorm:"size:120;not null" json:"display_name"`
	Username          *string  `gorm:"size:64;uniqueIndex" json:"username,omitempty"`
	SearchName        string   `gorm:"size:240;index" json:"-"` // ASCII-folded, lowercased display name
	Bio               string   `gorm:"type:text" json:"bio"`
	Points            int64    `gorm:"not null" json:"points"`
	ReferralCode      string   `gorm:"size:16;uniqueIndex;not null" json:"referral_code"`
	ReferredBy        *string  `gorm:"size:64;index" json:"referred_by,omitempty"` // Profile.ID, set once at creation
	UserType          UserType `gorm:"size:16;not null" json:"user_type"`
	IsAdmin           bool     `gorm:"not null" json:"is_admin"`
	IsProfileComplete bool     `gorm:"not null" json:"is_profile_complete"`

	Timestamps
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.UserType == "" {
		p.UserType = UserTypeMember
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
