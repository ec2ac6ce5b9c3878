package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Badge is an admin-managed catalog entry unlocked by a point threshold
type Badge struct {
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	Code           string `gorm:"size:100;uniqueIndex;not null" json:"code"` // slug, e.g. "community-voice"
	Name           string `gorm:"size:120;not null" json:"name"`
	Icon           string `gorm:"type:text" json:"icon"` // emoji or object store URL
	Description    string `gorm:"type:text" json:"description"`
	PointsRequired int64  `gorm:"not null;index" json:"points_required"`

	Timestamps
}

func (b *Badge) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// UserBadge: awarded instance, at most one per (profile, badge). Never revoked automatically.
type UserBadge struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ProfileID string    `gorm:"size:64;not null;uniqueIndex:idx_user_badges_profile_badge" json:"profile_id"`
	BadgeID   string    `gorm:"size:36;not null;uniqueIndex:idx_user_badges_profile_badge;index" json:"badge_id"`
	EarnedAt  time.Time `gorm:"not null" json:"earned_at"`

	Badge *Badge `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
}

func (ub *UserBadge) BeforeCreate(tx *gorm.DB) error {
	if ub.ID == "" {
		ub.ID = uuid.NewString()
	}
	if ub.EarnedAt.IsZero() {
		ub.EarnedAt = time.Now()
	}
	return nil
}
