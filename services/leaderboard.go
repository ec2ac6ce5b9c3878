package services

import (
	"context"
	"errors"
	"fmt"

	"community-platform/apperror"
	"community-platform/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

// LeaderboardEntry is one ranked member
type LeaderboardEntry struct {
	Rank               int64   `json:"rank"`
	ProfileID          string  `json:"profile_id"`
	DisplayName        string  `json:"display_name"`
	Username           *string `json:"username,omitempty"`
	Points             int64   `json:"points"`
	MemberReferrals    int64   `json:"member_referrals"`
	SupporterReferrals int64   `json:"supporter_referrals"`
}

type Leaderboard struct {
	Entries      []LeaderboardEntry `json:"entries"`
	Viewer       *LeaderboardEntry  `json:"viewer,omitempty"`
	TotalMembers int64              `json:"total_members"`
}

// LeaderboardService ranks members by points. Ties are broken by join time, then id.
type LeaderboardService struct {
	DB        *gorm.DB
	Referrals *ReferralResolver
	Log       *zap.Logger
}

func NewLeaderboardService(db *gorm.DB, referrals *ReferralResolver, logger *zap.Logger) *LeaderboardService {
	return &LeaderboardService{DB: db, Referrals: referrals, Log: logger}
}

// Top returns the first limit members. When viewerID is set and falls outside the window
// its own entry is looked up separately.
func (s *LeaderboardService) Top(ctx context.Context, limit int, viewerID string) (*Leaderboard, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}

	var (
		profiles []models.Profile
		total    int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.DB.WithContext(gctx).
			Where("user_type = ?", models.UserTypeMember).
			Order("points DESC, created_at ASC, id ASC").
			Limit(limit).
			Find(&profiles).Error
	})
	g.Go(func() error {
		return s.DB.WithContext(gctx).Model(&models.Profile{}).
			Where("user_type = ?", models.UserTypeMember).
			Count(&total).Error
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading leaderboard: %w", err)
	}

	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	counts, err := s.Referrals.Counts(ctx, ids)
	if err != nil {
		return nil, err
	}

	board := &Leaderboard{
		Entries:      make([]LeaderboardEntry, len(profiles)),
		TotalMembers: total,
	}
	for i := range profiles {
		board.Entries[i] = newLeaderboardEntry(int64(i+1), &profiles[i], counts[profiles[i].ID])
		if profiles[i].ID == viewerID {
			board.Viewer = &board.Entries[i]
		}
	}

	if viewerID != "" && board.Viewer == nil {
		viewer, err := s.Entry(ctx, viewerID)
		switch {
		case err == nil:
			board.Viewer = viewer
		case errors.Is(err, apperror.ErrNotFound):
			// viewer without a profile yet
		default:
			return nil, err
		}
	}
	return board, nil
}

// Entry returns a single member's leaderboard row
func (s *LeaderboardService) Entry(ctx context.Context, profileID string) (*LeaderboardEntry, error) {
	var profile models.Profile
	err := s.DB.WithContext(ctx).Where("id = ?", profileID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("profile", profileID)
	}
	if err != nil {
		return nil, err
	}

	rank, err := s.rankOf(ctx, &profile)
	if err != nil {
		return nil, err
	}
	counts, err := s.Referrals.Counts(ctx, []string{profileID})
	if err != nil {
		return nil, err
	}
	entry := newLeaderboardEntry(rank, &profile, counts[profileID])
	return &entry, nil
}

// RankOf returns the 1-based position of the profile in the leaderboard ordering
func (s *LeaderboardService) RankOf(ctx context.Context, profileID string) (int64, error) {
	var profile models.Profile
	err := s.DB.WithContext(ctx).Select("id", "points", "created_at").Where("id = ?", profileID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, apperror.NotFound("profile", profileID)
	}
	if err != nil {
		return 0, err
	}
	return s.rankOf(ctx, &profile)
}

func (s *LeaderboardService) rankOf(ctx context.Context, p *models.Profile) (int64, error) {
	var ahead int64
	err := s.DB.WithContext(ctx).Model(&models.Profile{}).
		Where("user_type = ?", models.UserTypeMember).
		Where("points > ? OR (points = ? AND (created_at < ? OR (created_at = ? AND id < ?)))",
			p.Points, p.Points, p.CreatedAt, p.CreatedAt, p.ID).
		Count(&ahead).Error
	if err != nil {
		return 0, fmt.Errorf("ranking profile %s: %w", p.ID, err)
	}
	return ahead + 1, nil
}

func newLeaderboardEntry(rank int64, p *models.Profile, counts models.ReferralCounts) LeaderboardEntry {
	return LeaderboardEntry{
		Rank:               rank,
		ProfileID:          p.ID,
		DisplayName:        p.DisplayName,
		Username:           p.Username,
		Points:             p.Points,
		MemberReferrals:    counts.Members,
		SupporterReferrals: counts.Supporters,
	}
}
