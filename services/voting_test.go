package services

import (
	"sync"
	"testing"
	"time"

	"community-platform/apperror"
	"community-platform/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVoteValidation(t *testing.T) {
	f := newFixture(t)
	past := time.Now().Add(-time.Hour)

	_, err := f.voting.CreateVote(f.ctx, "admin", VoteInput{Title: "  "})
	assert.True(t, apperror.Is(err, apperror.ErrValidation))

	_, err = f.voting.CreateVote(f.ctx, "admin", VoteInput{Title: "Too late", EndsAt: &past})
	assert.True(t, apperror.Is(err, apperror.ErrValidation))

	vote, err := f.voting.CreateVote(f.ctx, "admin", VoteInput{Title: " New park bench ", Description: "Where?"})
	require.NoError(t, err)
	assert.Equal(t, "New park bench", vote.Title)
	assert.Equal(t, models.VoteStatusActive, vote.Status)
	assert.Equal(t, "admin", *vote.CreatedBy)
}

func TestCastVoteOncePerProfile(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, "alice", 0)
	vote, err := f.voting.CreateVote(f.ctx, "", VoteInput{Title: "Bench"})
	require.NoError(t, err)

	res, err := f.voting.CastVote(f.ctx, "alice", vote.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Vote.VoteCount)
	require.NotNil(t, res.Award)
	assert.True(t, res.Award.Applied)
	assert.Equal(t, int64(5), res.Award.Total)

	_, err = f.voting.CastVote(f.ctx, "alice", vote.ID)
	assert.True(t, apperror.Is(err, apperror.ErrConflict))

	stored, err := f.voting.GetVote(f.ctx, vote.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.VoteCount)
	assert.Equal(t, int64(5), f.points(t, "alice"))
	assert.Equal(t, int64(1), f.activityCount(t, "alice", models.ActivityVoteCast))

	voted, err := f.voting.HasVoted(f.ctx, "alice", vote.ID)
	require.NoError(t, err)
	assert.True(t, voted)
}

func TestCastVoteConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, "alice", 0)
	vote, err := f.voting.CreateVote(f.ctx, "", VoteInput{Title: "Bench"})
	require.NoError(t, err)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.voting.CastVote(f.ctx, "alice", vote.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(5), f.points(t, "alice"))
}

func TestCastVoteRejections(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, "alice", 0)
	f.seedProfile(t, "guest", 0, func(p *models.Profile) { p.UserType = "guest" })

	closed, err := f.voting.CreateVote(f.ctx, "", VoteInput{Title: "Closed"})
	require.NoError(t, err)
	_, err = f.voting.SetVoteStatus(f.ctx, closed.ID, models.VoteStatusClosed)
	require.NoError(t, err)

	ended := &models.Vote{Title: "Ended", EndsAt: ptrTime(time.Now().Add(-time.Minute))}
	require.NoError(t, f.db.Create(ended).Error)

	open, err := f.voting.CreateVote(f.ctx, "", VoteInput{Title: "Open"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		profile string
		vote    string
		target  error
	}{
		{"closed vote", "alice", closed.ID, apperror.ErrValidation},
		{"ended vote", "alice", ended.ID, apperror.ErrValidation},
		{"unknown vote", "alice", "missing", apperror.ErrNotFound},
		{"unknown profile", "ghost", open.ID, apperror.ErrNotFound},
		{"non member", "guest", open.ID, apperror.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.voting.CastVote(f.ctx, tt.profile, tt.vote)
			assert.True(t, apperror.Is(err, tt.target), "got %v", err)
		})
	}
	assert.Equal(t, int64(0), f.points(t, "alice"))
}

func TestSetVoteStatus(t *testing.T) {
	f := newFixture(t)
	vote, err := f.voting.CreateVote(f.ctx, "", VoteInput{Title: "Bench"})
	require.NoError(t, err)

	_, err = f.voting.SetVoteStatus(f.ctx, vote.ID, models.VoteStatusActive)
	assert.True(t, apperror.Is(err, apperror.ErrValidation))

	done, err := f.voting.SetVoteStatus(f.ctx, vote.ID, models.VoteStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.VoteStatusCompleted, done.Status)

	again, err := f.voting.SetVoteStatus(f.ctx, vote.ID, models.VoteStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.VoteStatusCompleted, again.Status)

	_, err = f.voting.SetVoteStatus(f.ctx, vote.ID, models.VoteStatusClosed)
	assert.True(t, apperror.Is(err, apperror.ErrValidation))

	_, err = f.voting.SetVoteStatus(f.ctx, "missing", models.VoteStatusClosed)
	assert.True(t, apperror.Is(err, apperror.ErrNotFound))
}

func TestCloseExpiredAndList(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	require.NoError(t, f.db.Create(&models.Vote{Title: "Expired", EndsAt: ptrTime(now.Add(-time.Hour))}).Error)
	require.NoError(t, f.db.Create(&models.Vote{Title: "Running", EndsAt: ptrTime(now.Add(time.Hour))}).Error)
	require.NoError(t, f.db.Create(&models.Vote{Title: "Open ended"}).Error)

	n, err := f.voting.CloseExpired(f.ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	active, err := f.voting.ListVotes(f.ctx, models.VoteStatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	completed, err := f.voting.ListVotes(f.ctx, models.VoteStatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "Expired", completed[0].Title)

	_, err = f.voting.ListVotes(f.ctx, "bogus")
	assert.True(t, apperror.Is(err, apperror.ErrValidation))

	n, err = f.voting.CloseExpired(f.ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func ptrTime(t time.Time) *time.Time { return &t }
