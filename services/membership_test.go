package services

import (
	"testing"

	"community-platform/apperror"
	"community-platform/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func TestRegisterMemberWithReferralCode(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, "alice", 0, withCode("AB12CD34"))

	bob, err := f.membership.RegisterMember(f.ctx, MemberSignup{
		UserID:       "bob",
		Email:        "Bob@Example.com",
		DisplayName:  "  Bob   Builder ",
		ReferralCode: "AB12CD34",
	})
	require.NoError(t, err)

	require.NotNil(t, bob.ReferredBy)
	assert.Equal(t, "alice", *bob.ReferredBy)
	assert.Equal(t, "Bob Builder", bob.DisplayName)
	assert.Equal(t, "bob@example.com", bob.Email)
	assert.Regexp(t, `^[0-9A-F]{8}$`, bob.ReferralCode)
	assert.NotEqual(t, "AB12CD34", bob.ReferralCode)

	assert.Equal(t, int64(20), f.points(t, "alice"))
	assert.Equal(t, int64(1), f.activityCount(t, "alice", models.ActivityReferralMember))
	assert.Equal(t, int64(0), f.points(t, "bob"))
}

func TestRegisterMemberWithUnknownCode(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, "alice", 0, withCode("AB12CD34"))

	bob, err := f.membership.RegisterMember(f.ctx, MemberSignup{
		UserID: "bob", DisplayName: "Bob", ReferralCode: "NOPE0000",
	})
	require.NoError(t, err)
	assert.Nil(t, bob.ReferredBy)
	assert.Equal(t, int64(0), f.points(t, "alice"))
}

func TestRegisterMemberConflictsAndValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.membership.RegisterMember(f.ctx, MemberSignup{UserID: "alice", DisplayName: "Alice", Username: "alice"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		in     MemberSignup
		target error
	}{
		{"duplicate id", MemberSignup{UserID: "alice", DisplayName: "Alice again"}, apperror.ErrConflict},
		{"duplicate username", MemberSignup{UserID: "bob", DisplayName: "Bob", Username: "Alice"}, apperror.ErrConflict},
		{"missing user id", MemberSignup{DisplayName: "Bob"}, apperror.ErrValidation},
		{"missing display name", MemberSignup{UserID: "bob", DisplayName: "   "}, apperror.ErrValidation},
		{"bad username", MemberSignup{UserID: "bob", DisplayName: "Bob", Username: "no spaces allowed"}, apperror.ErrValidation},
		{"short username", MemberSignup{UserID: "bob", DisplayName: "Bob", Username: "ab"}, apperror.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.membership.RegisterMember(f.ctx, tt.in)
			assert.True(t, apperror.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestEnsureMemberNeverChangesAttribution(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, "alice", 0, withCode("AB12CD34"))
	f.seedProfile(t, "carol", 0, withCode("CAFEBABE"))

	bob, created, err := f.membership.EnsureMember(f.ctx, MemberSignup{UserID: "bob", DisplayName: "Bob", ReferralCode: "AB12CD34"})
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.membership.EnsureMember(f.ctx, MemberSignup{UserID: "bob", DisplayName: "Bob", ReferralCode: "CAFEBABE"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, bob.ReferralCode, again.ReferralCode)
	assert.Equal(t, "alice", *again.ReferredBy)

	assert.Equal(t, int64(20), f.points(t, "alice"))
	assert.Equal(t, int64(0), f.points(t, "carol"))
}

func TestRegisterSupporter(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, "alice", 0, withCode("AB12CD34"))
	f.seedProfile(t, "erin", 0, func(p *models.Profile) { p.Email = "erin@example.com" })

	s, err := f.membership.RegisterSupporter(f.ctx, SupporterSignup{
		Name: "Erin", Email: "ERIN@example.com", Phone: " +1 555 0100 ", ReferralCode: "AB12CD34",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", *s.ReferredBy)
	require.NotNil(t, s.ProfileID)
	assert.Equal(t, "erin", *s.ProfileID)
	assert.Equal(t, "+1 555 0100", *s.Phone)
	assert.Equal(t, int64(10), f.points(t, "alice"))

	_, err = f.membership.RegisterSupporter(f.ctx, SupporterSignup{Name: "Frank", Email: "not-an-email"})
	assert.True(t, apperror.Is(err, apperror.ErrValidation))
	_, err = f.membership.RegisterSupporter(f.ctx, SupporterSignup{Email: "frank@example.com"})
	assert.True(t, apperror.Is(err, apperror.ErrValidation))
}

func TestRegisterSupporterRepeatSignupCreditsOnce(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, "alice", 0, withCode("AB12CD34"))
	f.seedProfile(t, "bob", 0, withCode("ZZ99YY88"))

	first, err := f.membership.RegisterSupporter(f.ctx, SupporterSignup{
		Name: "Erin", Email: "erin@example.com", ReferralCode: "AB12CD34",
	})
	require.NoError(t, err)

	for _, in := range []SupporterSignup{
		{Name: "Erin", Email: "erin@example.com", ReferralCode: "AB12CD34"},
		{Name: "Erin Again", Email: " ERIN@Example.com ", ReferralCode: "AB12CD34"},
		{Name: "Erin", Email: "erin@example.com", ReferralCode: "ZZ99YY88"},
	} {
		again, err := f.membership.RegisterSupporter(f.ctx, in)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "alice", *again.ReferredBy)
	}

	assert.Equal(t, int64(10), f.points(t, "alice"))
	assert.Equal(t, int64(0), f.points(t, "bob"))

	var count int64
	require.NoError(t, f.db.Model(&models.Supporter{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	err = f.db.Create(&models.Supporter{Name: "Erin", Email: "erin@example.com"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestProfileCompletionAwardedOnce(t *testing.T) {
	f := newFixture(t)
	_, err := f.membership.RegisterMember(f.ctx, MemberSignup{UserID: "bob", DisplayName: "Bob"})
	require.NoError(t, err)

	p, err := f.membership.UpdateProfile(f.ctx, "bob", ProfileUpdate{Username: strPtr("bob-the-builder")})
	require.NoError(t, err)
	assert.False(t, p.IsProfileComplete)
	assert.Equal(t, int64(0), f.points(t, "bob"))

	p, err = f.membership.UpdateProfile(f.ctx, "bob", ProfileUpdate{Bio: strPtr("I build things")})
	require.NoError(t, err)
	assert.True(t, p.IsProfileComplete)
	assert.Equal(t, int64(50), p.Points)

	// clearing and refilling the bio does not pay out again
	_, err = f.membership.UpdateProfile(f.ctx, "bob", ProfileUpdate{Bio: strPtr("")})
	require.NoError(t, err)
	p, err = f.membership.UpdateProfile(f.ctx, "bob", ProfileUpdate{Bio: strPtr("Back again")})
	require.NoError(t, err)
	assert.Equal(t, int64(50), p.Points)
	assert.Equal(t, int64(1), f.activityCount(t, "bob", models.ActivityProfileComplete))
}

func TestUpdateProfileUsernameConflict(t *testing.T) {
	f := newFixture(t)
	_, err := f.membership.RegisterMember(f.ctx, MemberSignup{UserID: "alice", DisplayName: "Alice", Username: "alice"})
	require.NoError(t, err)
	_, err = f.membership.RegisterMember(f.ctx, MemberSignup{UserID: "bob", DisplayName: "Bob"})
	require.NoError(t, err)

	_, err = f.membership.UpdateProfile(f.ctx, "bob", ProfileUpdate{Username: strPtr("alice")})
	assert.True(t, apperror.Is(err, apperror.ErrConflict))

	// keeping your own username is fine
	_, err = f.membership.UpdateProfile(f.ctx, "alice", ProfileUpdate{Username: strPtr("alice")})
	assert.NoError(t, err)

	_, err = f.membership.UpdateProfile(f.ctx, "ghost", ProfileUpdate{Bio: strPtr("x")})
	assert.True(t, apperror.Is(err, apperror.ErrNotFound))
}

func TestGetProfileView(t *testing.T) {
	f := newFixture(t)
	f.seedBadge(t, "fifty", 50)
	f.seedProfile(t, "alice", 0, withCode("AB12CD34"))
	f.seedProfile(t, "zed", 500)
	_, err := f.membership.RegisterMember(f.ctx, MemberSignup{UserID: "bob", DisplayName: "Bob", ReferralCode: "AB12CD34"})
	require.NoError(t, err)
	_, err = f.ledger.Award(f.ctx, Award{ProfileID: "alice", Delta: 30, Category: models.ActivityAdminAdjustment})
	require.NoError(t, err)

	view, err := f.membership.GetProfileView(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(50), view.Profile.Points)
	assert.Equal(t, int64(1), view.Referrals.Members)
	assert.Equal(t, int64(2), view.Rank)
	require.Len(t, view.Badges, 1)
	assert.Equal(t, "fifty", view.Badges[0].Badge.Code)

	_, err = f.membership.GetProfileView(f.ctx, "ghost")
	assert.True(t, apperror.Is(err, apperror.ErrNotFound))
}

func TestSearchProfilesFoldsDiacritics(t *testing.T) {
	f := newFixture(t)
	_, err := f.membership.RegisterMember(f.ctx, MemberSignup{UserID: "z1", DisplayName: "Zoë Łukasz", Username: "zoe"})
	require.NoError(t, err)
	_, err = f.membership.RegisterMember(f.ctx, MemberSignup{UserID: "b1", DisplayName: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)

	found, err := f.membership.SearchProfiles(f.ctx, "lukasz", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "z1", found[0].ID)

	found, err = f.membership.SearchProfiles(f.ctx, "EXAMPLE.COM", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b1", found[0].ID)

	all, err := f.membership.SearchProfiles(f.ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSetAdmin(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, "alice", 0)

	ok, err := f.membership.IsAdmin(f.ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.membership.SetAdmin(f.ctx, "alice", true))
	ok, err = f.membership.IsAdmin(f.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.True(t, apperror.Is(f.membership.SetAdmin(f.ctx, "ghost", true), apperror.ErrNotFound))
	ok, err = f.membership.IsAdmin(f.ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}
