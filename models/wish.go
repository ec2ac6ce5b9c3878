package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WishStatus string

const (
	WishStatusOpen      WishStatus = "open"
	WishStatusFulfilled WishStatus = "fulfilled"
	WishStatusCancelled WishStatus = "cancelled"
)

// Wish is a member request that a helper can fulfil for admin-set points
type Wish struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	ProfileID     string     `gorm:"size:64;not null;index" json:"profile_id"` // author
	Title         string     `gorm:"size:200;not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	Status        WishStatus `gorm:"size:16;not null;index" json:"status"`
	FulfilledBy   *string    `gorm:"size:64;index" json:"fulfilled_by,omitempty"`
	PointsAwarded int64      `gorm:"not null" json:"points_awarded"`
	FulfilledAt   *time.Time `json:"fulfilled_at,omitempty"`

	Timestamps
}

func (w *Wish) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = WishStatusOpen
	}
	return nil
}
