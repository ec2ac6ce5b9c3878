package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"community-platform/apperror"
	"community-platform/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VoteInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	EndsAt      *time.Time `json:"ends_at"`
}

// CastResult reports a cast vote and the voter's award, when accrual succeeded
type CastResult struct {
	Vote  *models.Vote `json:"vote"`
	Award *AwardResult `json:"award,omitempty"`
}

type VotingService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Log    *zap.Logger
}

func NewVotingService(db *gorm.DB, ledger *LedgerService, logger *zap.Logger) *VotingService {
	return &VotingService{DB: db, Ledger: ledger, Log: logger}
}

func (s *VotingService) CreateVote(ctx context.Context, createdBy string, in VoteInput) (*models.Vote, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if in.EndsAt != nil && !in.EndsAt.After(time.Now()) {
		return nil, apperror.ValidationFailed("ends_at", "ends_at must be in the future")
	}

	vote := &models.Vote{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      models.VoteStatusActive,
		EndsAt:      in.EndsAt,
	}
	if createdBy != "" {
		vote.CreatedBy = &createdBy
	}
	if err := s.DB.WithContext(ctx).Create(vote).Error; err != nil {
		return nil, fmt.Errorf("creating vote: %w", err)
	}
	s.Log.Info("vote created", zap.String("vote_id", vote.ID), zap.String("title", vote.Title))
	return vote, nil
}

func (s *VotingService) GetVote(ctx context.Context, id string) (*models.Vote, error) {
	var vote models.Vote
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("vote", id)
	}
	if err != nil {
		return nil, err
	}
	return &vote, nil
}

// ListVotes returns votes newest first, optionally filtered by status
func (s *VotingService) ListVotes(ctx context.Context, status models.VoteStatus) ([]models.Vote, error) {
	db := s.DB.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		if !validVoteStatus(status) {
			return nil, apperror.ValidationFailed("status", "unknown vote status")
		}
		db = db.Where("status = ?", status)
	}
	var votes []models.Vote
	return votes, db.Find(&votes).Error
}

// SetVoteStatus moves an active vote to completed or closed. Finished votes stay finished.
func (s *VotingService) SetVoteStatus(ctx context.Context, id string, status models.VoteStatus) (*models.Vote, error) {
	if status != models.VoteStatusCompleted && status != models.VoteStatusClosed {
		return nil, apperror.ValidationFailed("status", "status must be completed or closed")
	}
	res := s.DB.WithContext(ctx).Model(&models.Vote{}).
		Where("id = ? AND status = ?", id, models.VoteStatusActive).
		Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		vote, err := s.GetVote(ctx, id)
		if err != nil {
			return nil, err
		}
		if vote.Status == status {
			return vote, nil
		}
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("vote is already %s", vote.Status))
	}
	s.Log.Info("vote status changed", zap.String("vote_id", id), zap.String("status", string(status)))
	return s.GetVote(ctx, id)
}

// CastVote records the profile's vote and credits the voter. A profile votes at most once
// per vote; a repeat returns Conflict and awards nothing.
func (s *VotingService) CastVote(ctx context.Context, profileID, voteID string) (*CastResult, error) {
	var vote models.Vote
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var voter models.Profile
		err := tx.Select("id", "user_type").Where("id = ?", profileID).First(&voter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("profile", profileID)
		}
		if err != nil {
			return err
		}
		if voter.UserType != models.UserTypeMember {
			return apperror.Forbidden("only members can vote")
		}

		err = tx.Where("id = ?", voteID).First(&vote).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("vote", voteID)
		}
		if err != nil {
			return err
		}
		if vote.Status != models.VoteStatusActive {
			return apperror.ValidationFailed("vote", "vote is not active")
		}
		if vote.EndsAt != nil && !vote.EndsAt.After(time.Now()) {
			return apperror.ValidationFailed("vote", "vote has ended")
		}

		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&models.UserVote{ProfileID: profileID, VoteID: voteID})
		if ins.Error != nil {
			return fmt.Errorf("recording vote: %w", ins.Error)
		}
		if ins.RowsAffected == 0 {
			return apperror.Conflict("vote", voteID)
		}

		if err := tx.Model(&models.Vote{}).Where("id = ?", voteID).
			Update("vote_count", gorm.Expr("vote_count + 1")).Error; err != nil {
			return err
		}
		vote.VoteCount++
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("vote cast", zap.String("vote_id", voteID), zap.String("profile_id", profileID))

	award := s.Ledger.AwardQuietly(ctx, Award{
		ProfileID:   profileID,
		Delta:       s.Ledger.Weights.VoteCast,
		Category:    models.ActivityVoteCast,
		Description: "Voted on " + vote.Title,
		Key:         "vote:" + voteID,
	})
	return &CastResult{Vote: &vote, Award: award}, nil
}

// HasVoted reports whether the profile already cast the vote
func (s *VotingService) HasVoted(ctx context.Context, profileID, voteID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.UserVote{}).
		Where("profile_id = ? AND vote_id = ?", profileID, voteID).
		Count(&count).Error
	return count > 0, err
}

// CloseExpired completes every active vote whose end time has passed
func (s *VotingService) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Vote{}).
		Where("status = ? AND ends_at IS NOT NULL AND ends_at <= ?", models.VoteStatusActive, now).
		Update("status", models.VoteStatusCompleted)
	if res.Error != nil {
		return 0, fmt.Errorf("closing expired votes: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.Log.Info("expired votes completed", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

func validVoteStatus(status models.VoteStatus) bool {
	switch status {
	case models.VoteStatusActive, models.VoteStatusCompleted, models.VoteStatusClosed:
		return true
	}
	return false
}
