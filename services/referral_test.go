package services

import (
	"regexp"
	"testing"
	"time"

	"community-platform/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReferralCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9A-F]{8}$`)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code := GenerateReferralCode()
		assert.Regexp(t, pattern, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	f.seedProfile(t, "alice", 0, withCode("AB12CD34"))

	tests := []struct {
		name   string
		code   string
		wantID string
	}{
		{"exact match", "AB12CD34", "alice"},
		{"empty code", "", ""},
		{"unknown code", "FFFFFFFF", ""},
		{"case sensitive", "ab12cd34", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.referrals.Resolve(f.ctx, tt.code)
			require.NoError(t, err)
			if tt.wantID == "" {
				assert.Nil(t, p)
				assert.Nil(t, f.referrals.ResolveID(f.ctx, tt.code))
				return
			}
			require.NotNil(t, p)
			assert.Equal(t, tt.wantID, p.ID)
			assert.Equal(t, tt.wantID, *f.referrals.ResolveID(f.ctx, tt.code))
		})
	}
}

func TestCountsAndEdges(t *testing.T) {
	f := newFixture(t)
	alice := "alice"
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	f.seedProfile(t, alice, 0)
	f.seedProfile(t, "bob", 0, func(p *models.Profile) { p.ReferredBy = &alice }, withCreatedAt(base))
	f.seedProfile(t, "carol", 0, func(p *models.Profile) { p.ReferredBy = &alice }, withCreatedAt(base.Add(2*time.Hour)))
	require.NoError(t, f.db.Create(&models.Supporter{
		Name: "Dave", Email: "dave@example.com", ReferredBy: &alice,
		Timestamps: models.Timestamps{CreatedAt: base.Add(time.Hour)},
	}).Error)

	counts, err := f.referrals.Counts(f.ctx, []string{alice, "bob"})
	require.NoError(t, err)
	assert.Equal(t, models.ReferralCounts{Members: 2, Supporters: 1}, counts[alice])
	assert.Equal(t, models.ReferralCounts{}, counts["bob"])

	edges, err := f.referrals.Edges(f.ctx, alice)
	require.NoError(t, err)
	require.Len(t, edges, 3)
	assert.Equal(t, "carol", edges[0].ReferredID)
	assert.Equal(t, models.ReferralKindSupporter, edges[1].Kind)
	assert.Equal(t, "Dave", edges[1].Name)
	assert.Equal(t, "bob", edges[2].ReferredID)
}
