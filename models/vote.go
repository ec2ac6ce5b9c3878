package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VoteStatus string

const (
	VoteStatusActive    VoteStatus = "active"
	VoteStatusCompleted VoteStatus = "completed"
	VoteStatusClosed    VoteStatus = "closed"
)

// Vote is a petition or question members can cast once
type Vote struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Status      VoteStatus `gorm:"size:16;not null;index" json:"status"`
	VoteCount   int64      `gorm:"not null" json:"vote_count"` // denormalized count of UserVotes
	CreatedBy   *string    `gorm:"size:64" json:"created_by,omitempty"`
	EndsAt      *time.Time `gorm:"index" json:"ends_at,omitempty"`

	Timestamps
}

func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.Status == "" {
		v.Status = VoteStatusActive
	}
	return nil
}

// UserVote records that a profile cast a vote. Unique per (profile, vote).
type UserVote struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ProfileID string    `gorm:"size:64;not null;uniqueIndex:idx_user_votes_profile_vote" json:"profile_id"`
	VoteID    string    `gorm:"size:36;not null;uniqueIndex:idx_user_votes_profile_vote;index" json:"vote_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (uv *UserVote) BeforeCreate(tx *gorm.DB) error {
	if uv.ID == "" {
		uv.ID = uuid.NewString()
	}
	return nil
}
