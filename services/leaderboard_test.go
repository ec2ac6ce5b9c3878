package services

import (
	"testing"
	"time"

	"community-platform/apperror"
	"community-platform/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBoard(t *testing.T, f *fixture) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.seedProfile(t, "d", 200, withCreatedAt(base.Add(4*time.Hour)))
	f.seedProfile(t, "a", 100, withCreatedAt(base))
	f.seedProfile(t, "b", 100, withCreatedAt(base.Add(time.Hour)))
	f.seedProfile(t, "c", 50, withCreatedAt(base))
	f.seedProfile(t, "f", 10, withCreatedAt(base))
	f.seedProfile(t, "e", 10, withCreatedAt(base))
	f.seedProfile(t, "guest", 900, func(p *models.Profile) { p.UserType = "guest" })

	d := "d"
	require.NoError(t, f.db.Create(&models.Supporter{Name: "S", Email: "s@example.com", ReferredBy: &d}).Error)
}

func TestLeaderboardOrdering(t *testing.T) {
	f := newFixture(t)
	seedBoard(t, f)

	board, err := f.board.Top(f.ctx, 0, "")
	require.NoError(t, err)
	assert.Equal(t, int64(6), board.TotalMembers)
	assert.Nil(t, board.Viewer)

	var ids []string
	for i, e := range board.Entries {
		ids = append(ids, e.ProfileID)
		assert.Equal(t, int64(i+1), e.Rank)
	}
	assert.Equal(t, []string{"d", "a", "b", "c", "e", "f"}, ids)
	assert.Equal(t, int64(1), board.Entries[0].SupporterReferrals)
}

func TestLeaderboardViewer(t *testing.T) {
	f := newFixture(t)
	seedBoard(t, f)

	board, err := f.board.Top(f.ctx, 2, "c")
	require.NoError(t, err)
	require.Len(t, board.Entries, 2)
	require.NotNil(t, board.Viewer)
	assert.Equal(t, "c", board.Viewer.ProfileID)
	assert.Equal(t, int64(4), board.Viewer.Rank)

	board, err = f.board.Top(f.ctx, 2, "a")
	require.NoError(t, err)
	require.NotNil(t, board.Viewer)
	assert.Equal(t, int64(2), board.Viewer.Rank)

	board, err = f.board.Top(f.ctx, 2, "nobody")
	require.NoError(t, err)
	assert.Nil(t, board.Viewer)
}

func TestRankOf(t *testing.T) {
	f := newFixture(t)
	seedBoard(t, f)

	for id, want := range map[string]int64{"d": 1, "a": 2, "b": 3, "c": 4, "e": 5, "f": 6} {
		rank, err := f.board.RankOf(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, rank, id)
	}

	_, err := f.board.RankOf(f.ctx, "nobody")
	assert.True(t, apperror.Is(err, apperror.ErrNotFound))
}

func TestRankFollowsAwards(t *testing.T) {
	f := newFixture(t)
	seedBoard(t, f)

	_, err := f.ledger.Award(f.ctx, Award{ProfileID: "f", Delta: 500, Category: models.ActivityAdminAdjustment})
	require.NoError(t, err)

	rank, err := f.board.RankOf(f.ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rank)
}
