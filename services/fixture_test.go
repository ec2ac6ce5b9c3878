package services

import (
	"context"
	"testing"
	"time"

	"community-platform/database"
	"community-platform/models"
	"community-platform/utils"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	ctx         context.Context
	db          *gorm.DB
	referrals   *ReferralResolver
	ledger      *LedgerService
	badges      *BadgeService
	board       *LeaderboardService
	membership  *MembershipService
	voting      *VotingService
	wishes      *WishService
	diagnostics *DiagnosticsService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	store, err := utils.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	referrals := NewReferralResolver(db, log)
	ledger := NewLedgerService(db, DefaultPointWeights, log)
	badges := NewBadgeService(db, store, log)
	board := NewLeaderboardService(db, referrals, log)

	return &fixture{
		ctx:         context.Background(),
		db:          db,
		referrals:   referrals,
		ledger:      ledger,
		badges:      badges,
		board:       board,
		membership:  NewMembershipService(db, referrals, ledger, badges, board, log),
		voting:      NewVotingService(db, ledger, log),
		wishes:      NewWishService(db, ledger, log),
		diagnostics: NewDiagnosticsService(db, ledger, log),
	}
}

// seedProfile inserts a profile directly, bypassing registration side effects
func (f *fixture) seedProfile(t *testing.T, id string, points int64, opts ...func(*models.Profile)) *models.Profile {
	t.Helper()
	p := &models.Profile{
		ID:           id,
		Email:        id + "@example.com",
		DisplayName:  "Member " + id,
		SearchName:   "member " + id,
		Points:       points,
		ReferralCode: GenerateReferralCode(),
	}
	for _, opt := range opts {
		opt(p)
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func withCode(code string) func(*models.Profile) {
	return func(p *models.Profile) { p.ReferralCode = code }
}

func withCreatedAt(ts time.Time) func(*models.Profile) {
	return func(p *models.Profile) { p.CreatedAt = ts }
}

func (f *fixture) seedBadge(t *testing.T, code string, required int64) *models.Badge {
	t.Helper()
	b := &models.Badge{Code: code, Name: code, PointsRequired: required}
	require.NoError(t, f.db.Create(b).Error)
	return b
}

func (f *fixture) points(t *testing.T, id string) int64 {
	t.Helper()
	total, err := currentPoints(f.db, id)
	require.NoError(t, err)
	return total
}

func (f *fixture) activityCount(t *testing.T, id string, category models.ActivityCategory) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.Activity{}).
		Where("profile_id = ? AND category = ?", id, category).Count(&n).Error)
	return n
}

func (f *fixture) badgeCodes(t *testing.T, id string) []string {
	t.Helper()
	ubs, err := f.badges.ListUserBadges(f.ctx, id)
	require.NoError(t, err)
	codes := make([]string, 0, len(ubs))
	for _, ub := range ubs {
		codes = append(codes, ub.Badge.Code)
	}
	return codes
}
