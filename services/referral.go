package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"community-platform/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	referralCodeLength   = 8
	referralCodeAttempts = 5
)

// ReferralResolver turns a referral code into the referring profile at creation time.
type ReferralResolver struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewReferralResolver(db *gorm.DB, logger *zap.Logger) *ReferralResolver {
	return &ReferralResolver{DB: db, Log: logger}
}

// Resolve returns the profile owning code, or nil when code is empty or unknown.
// The match is exact and case-sensitive. A miss is not an error.
func (r *ReferralResolver) Resolve(ctx context.Context, code string) (*models.Profile, error) {
	if code == "" {
		return nil, nil
	}
	var referrer models.Profile
	err := r.DB.WithContext(ctx).Where("referral_code = ?", code).First(&referrer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.Log.Info("referral code not found, continuing without attribution", zap.String("code", code))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving referral code: %w", err)
	}
	return &referrer, nil
}

// ResolveID is Resolve degraded to an optional id: any failure means no attribution.
func (r *ReferralResolver) ResolveID(ctx context.Context, code string) *string {
	referrer, err := r.Resolve(ctx, code)
	if err != nil {
		r.Log.Warn("referral lookup failed, continuing without attribution",
			zap.String("code", code), zap.Error(err))
		return nil
	}
	if referrer == nil {
		return nil
	}
	id := referrer.ID
	return &id
}

// Counts aggregates referral edges pointing at the given profiles
func (r *ReferralResolver) Counts(ctx context.Context, profileIDs []string) (map[string]models.ReferralCounts, error) {
	counts := make(map[string]models.ReferralCounts, len(profileIDs))
	if len(profileIDs) == 0 {
		return counts, nil
	}

	type row struct {
		ReferredBy string
		N          int64
	}

	var members []row
	if err := r.DB.WithContext(ctx).Model(&models.Profile{}).
		Select("referred_by, COUNT(*) AS n").
		Where("referred_by IN ?", profileIDs).
		Group("referred_by").
		Scan(&members).Error; err != nil {
		return nil, fmt.Errorf("counting member referrals: %w", err)
	}
	var supporters []row
	if err := r.DB.WithContext(ctx).Model(&models.Supporter{}).
		Select("referred_by, COUNT(*) AS n").
		Where("referred_by IN ?", profileIDs).
		Group("referred_by").
		Scan(&supporters).Error; err != nil {
		return nil, fmt.Errorf("counting supporter referrals: %w", err)
	}

	for _, m := range members {
		c := counts[m.ReferredBy]
		c.Members = m.N
		counts[m.ReferredBy] = c
	}
	for _, s := range supporters {
		c := counts[s.ReferredBy]
		c.Supporters = s.N
		counts[s.ReferredBy] = c
	}
	return counts, nil
}

// Edges lists everyone the profile referred, newest first
func (r *ReferralResolver) Edges(ctx context.Context, profileID string) ([]models.ReferralEdge, error) {
	var members []models.Profile
	if err := r.DB.WithContext(ctx).
		Where("referred_by = ?", profileID).
		Order("created_at DESC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	var supporters []models.Supporter
	if err := r.DB.WithContext(ctx).
		Where("referred_by = ?", profileID).
		Order("created_at DESC").
		Find(&supporters).Error; err != nil {
		return nil, err
	}

	edges := make([]models.ReferralEdge, 0, len(members)+len(supporters))
	for _, m := range members {
		edges = append(edges, models.ReferralEdge{
			Kind: models.ReferralKindMember, ReferredID: m.ID, Name: m.DisplayName, CreatedAt: m.CreatedAt,
		})
	}
	for _, s := range supporters {
		edges = append(edges, models.ReferralEdge{
			Kind: models.ReferralKindSupporter, ReferredID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt,
		})
	}
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].CreatedAt.After(edges[j].CreatedAt)
	})
	return edges, nil
}

// GenerateReferralCode returns an 8 character uppercase hex token, e.g. "AB12CD34".
func GenerateReferralCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:referralCodeLength])
}
