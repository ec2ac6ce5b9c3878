package models

import (
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"
)

// ActivityCategory classifies a point mutation
type ActivityCategory string

const (
	ActivityReferralMember    ActivityCategory = "referral_member"
	ActivityReferralSupporter ActivityCategory = "referral_supporter"
	ActivityVoteCast          ActivityCategory = "vote_cast"
	ActivityProfileComplete   ActivityCategory = "profile_complete"
	ActivityWishFulfilled     ActivityCategory = "wish_fulfilled"
	ActivityAdminAdjustment   ActivityCategory = "admin_adjustment"
	ActivityBadgeEarned       ActivityCategory = "badge_earned"
)

// Activity is the append-only audit row written for every point mutation.
// The sum of Delta over a profile equals its point total.
type Activity struct {
	ID           string           `gorm:"primaryKey;size:36" json:"id"`
	ProfileID    string           `gorm:"size:64;not null;index" json:"profile_id"`
	Delta        int64            `gorm:"not null" json:"delta"`
	BalanceAfter int64            `gorm:"not null" json:"balance_after"`
	Category     ActivityCategory `gorm:"size:32;not null;index" json:"category"`
	Description  string           `gorm:"size:255" json:"description"`
	DedupeKey    *string          `gorm:"size:255;uniqueIndex" json:"-"` // "<profile>|<key>", NULL when not idempotent
	CreatedAt    time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		// xids sort by creation, which orders activities sharing a timestamp
		a.ID = xid.New().String()
	}
	return nil
}
