package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Supporter is a non-voting party, one per lowercased email. It may be referred by a
// Profile and, when a member with the same email exists, linked to that profile.
type Supporter struct {
	ID         string  `gorm:"primaryKey;size:36" json:"id"`
	Name       string  `gorm:"size:120;not null" json:"name"`
	Email      string  `gorm:"size:320;not null;uniqueIndex" json:"email"`
	Phone      *string `gorm:"size:32" json:"phone,omitempty"`
	ReferredBy *string `gorm:"size:64;index" json:"referred_by,omitempty"`
	ProfileID  *string `gorm:"size:64;index" json:"profile_id,omitempty"`

	Timestamps
}

func (s *Supporter) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
