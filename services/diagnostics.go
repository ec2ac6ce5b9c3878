package services

import (
	"context"
	"fmt"
	"time"

	"community-platform/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DanglingReferral is a referrer reference pointing at a profile that no longer exists
type DanglingReferral struct {
	Kind       models.ReferralKind `json:"kind"`
	ID         string              `json:"id"`
	ReferredBy string              `json:"referred_by"`
}

// MissingBadge is a badge whose threshold the profile meets but which was never awarded
type MissingBadge struct {
	ProfileID string `json:"profile_id"`
	BadgeID   string `json:"badge_id"`
	Points    int64  `json:"points"`
	Required  int64  `json:"points_required"`
}

// MissingCredit is a referral edge whose referrer never received the award
type MissingCredit struct {
	Kind       models.ReferralKind `json:"kind"`
	ReferredID string              `json:"referred_id"`
	Name       string              `json:"name"`
	ReferrerID string              `json:"referrer_id"`
}

// MissingBonus is a completed profile that never received the completion bonus
type MissingBonus struct {
	ProfileID string `json:"profile_id"`
	Name      string `json:"name"`
}

// UnlinkedSupporter is a supporter sharing its email with a member it is not linked to
type UnlinkedSupporter struct {
	SupporterID string `json:"supporter_id"`
	ProfileID   string `json:"profile_id"`
}

// PointDrift is a profile whose total differs from the sum of its activity deltas
type PointDrift struct {
	ProfileID   string `json:"profile_id"`
	Points      int64  `json:"points"`
	ActivitySum int64  `json:"activity_sum"`
}

type DiagnosticsReport struct {
	GeneratedAt        time.Time           `json:"generated_at"`
	DanglingReferrals  []DanglingReferral  `json:"dangling_referrals"`
	MissingBadges      []MissingBadge      `json:"missing_badges"`
	MissingCredits     []MissingCredit     `json:"missing_credits"`
	MissingBonuses     []MissingBonus      `json:"missing_bonuses"`
	UnlinkedSupporters []UnlinkedSupporter `json:"unlinked_supporters"`
	PointDrift         []PointDrift        `json:"point_drift"`
}

// Clean reports whether no issue of any kind was found
func (r *DiagnosticsReport) Clean() bool {
	return len(r.DanglingReferrals) == 0 && len(r.MissingBadges) == 0 && len(r.MissingCredits) == 0 &&
		len(r.MissingBonuses) == 0 && len(r.UnlinkedSupporters) == 0 && len(r.PointDrift) == 0
}

type RepairReport struct {
	ReferencesCleared int64 `json:"references_cleared"`
	CreditsApplied    int   `json:"credits_applied"`
	BonusesApplied    int   `json:"bonuses_applied"`
	SupportersLinked  int64 `json:"supporters_linked"`
	BadgesAwarded     int   `json:"badges_awarded"`
	// drift is reported, never rewritten
	DriftRemaining int `json:"drift_remaining"`
}

// DiagnosticsService finds and repairs referential drift between profiles, supporters,
// activities and badges.
type DiagnosticsService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Log    *zap.Logger
}

func NewDiagnosticsService(db *gorm.DB, ledger *LedgerService, logger *zap.Logger) *DiagnosticsService {
	return &DiagnosticsService{DB: db, Ledger: ledger, Log: logger}
}

func (s *DiagnosticsService) Diagnose(ctx context.Context) (*DiagnosticsReport, error) {
	report := &DiagnosticsReport{GeneratedAt: time.Now().UTC()}
	var err error

	if report.DanglingReferrals, err = s.danglingReferrals(ctx); err != nil {
		return nil, fmt.Errorf("checking referrer references: %w", err)
	}
	if report.MissingBadges, err = s.missingBadges(ctx); err != nil {
		return nil, fmt.Errorf("checking badges: %w", err)
	}
	if report.MissingCredits, err = s.missingCredits(ctx); err != nil {
		return nil, fmt.Errorf("checking referral credits: %w", err)
	}
	if report.MissingBonuses, err = s.missingBonuses(ctx); err != nil {
		return nil, fmt.Errorf("checking completion bonuses: %w", err)
	}
	if report.UnlinkedSupporters, err = s.unlinkedSupporters(ctx); err != nil {
		return nil, fmt.Errorf("checking supporter links: %w", err)
	}
	if report.PointDrift, err = s.pointDrift(ctx); err != nil {
		return nil, fmt.Errorf("checking point totals: %w", err)
	}
	return report, nil
}

// Repair fixes everything Diagnose finds except point drift. Running it again on a
// repaired store changes nothing.
func (s *DiagnosticsService) Repair(ctx context.Context) (*RepairReport, error) {
	out := &RepairReport{}
	db := s.DB.WithContext(ctx)

	// dangling references first so they are never credited below
	res := db.Model(&models.Profile{}).
		Where("referred_by IS NOT NULL AND referred_by NOT IN (?)", db.Model(&models.Profile{}).Select("id")).
		Update("referred_by", nil)
	if res.Error != nil {
		return nil, fmt.Errorf("clearing dangling member referrers: %w", res.Error)
	}
	out.ReferencesCleared += res.RowsAffected
	res = db.Model(&models.Supporter{}).
		Where("referred_by IS NOT NULL AND referred_by NOT IN (?)", db.Model(&models.Profile{}).Select("id")).
		Update("referred_by", nil)
	if res.Error != nil {
		return nil, fmt.Errorf("clearing dangling supporter referrers: %w", res.Error)
	}
	out.ReferencesCleared += res.RowsAffected

	credits, err := s.missingCredits(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range credits {
		award := Award{ProfileID: c.ReferrerID}
		switch c.Kind {
		case models.ReferralKindMember:
			award.Delta = s.Ledger.Weights.MemberReferral
			award.Category = models.ActivityReferralMember
			award.Description = fmt.Sprintf("Referred member %s joined", c.Name)
			award.Key = "referral:member:" + c.ReferredID
		default:
			award.Delta = s.Ledger.Weights.SupporterReferral
			award.Category = models.ActivityReferralSupporter
			award.Description = fmt.Sprintf("Referred supporter %s joined", c.Name)
			award.Key = "referral:supporter:" + c.ReferredID
		}
		result, err := s.Ledger.Award(ctx, award)
		if err != nil {
			return nil, fmt.Errorf("re-applying referral credit for %s: %w", c.ReferredID, err)
		}
		if result.Applied {
			out.CreditsApplied++
			out.BadgesAwarded += len(result.NewBadges)
		}
	}

	bonuses, err := s.missingBonuses(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range bonuses {
		result, err := s.Ledger.Award(ctx, s.Ledger.completionAward(b.ProfileID))
		if err != nil {
			return nil, fmt.Errorf("re-applying completion bonus for %s: %w", b.ProfileID, err)
		}
		if result.Applied {
			out.BonusesApplied++
			out.BadgesAwarded += len(result.NewBadges)
		}
	}

	unlinked, err := s.unlinkedSupporters(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range unlinked {
		res := db.Model(&models.Supporter{}).
			Where("id = ? AND profile_id IS NULL", u.SupporterID).
			Update("profile_id", u.ProfileID)
		if res.Error != nil {
			return nil, fmt.Errorf("linking supporter %s: %w", u.SupporterID, res.Error)
		}
		out.SupportersLinked += res.RowsAffected
	}

	missing, err := s.missingBadges(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, m := range missing {
		if seen[m.ProfileID] {
			continue
		}
		seen[m.ProfileID] = true
		awarded, err := s.Ledger.EvaluateBadges(ctx, m.ProfileID)
		if err != nil {
			return nil, fmt.Errorf("awarding missing badges for %s: %w", m.ProfileID, err)
		}
		out.BadgesAwarded += len(awarded)
	}

	drift, err := s.pointDrift(ctx)
	if err != nil {
		return nil, err
	}
	out.DriftRemaining = len(drift)

	s.Log.Info("diagnostics repair finished",
		zap.Int64("references_cleared", out.ReferencesCleared),
		zap.Int("credits_applied", out.CreditsApplied),
		zap.Int("bonuses_applied", out.BonusesApplied),
		zap.Int64("supporters_linked", out.SupportersLinked),
		zap.Int("badges_awarded", out.BadgesAwarded),
		zap.Int("drift_remaining", out.DriftRemaining),
	)
	return out, nil
}

func (s *DiagnosticsService) danglingReferrals(ctx context.Context) ([]DanglingReferral, error) {
	db := s.DB.WithContext(ctx)
	var out []DanglingReferral

	var profiles []models.Profile
	if err := db.Select("id", "referred_by").
		Where("referred_by IS NOT NULL AND referred_by NOT IN (?)", db.Model(&models.Profile{}).Select("id")).
		Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out = append(out, DanglingReferral{Kind: models.ReferralKindMember, ID: p.ID, ReferredBy: *p.ReferredBy})
	}

	var supporters []models.Supporter
	if err := db.Select("id", "referred_by").
		Where("referred_by IS NOT NULL AND referred_by NOT IN (?)", db.Model(&models.Profile{}).Select("id")).
		Find(&supporters).Error; err != nil {
		return nil, err
	}
	for _, sp := range supporters {
		out = append(out, DanglingReferral{Kind: models.ReferralKindSupporter, ID: sp.ID, ReferredBy: *sp.ReferredBy})
	}
	return out, nil
}

func (s *DiagnosticsService) missingBadges(ctx context.Context) ([]MissingBadge, error) {
	var out []MissingBadge
	err := s.DB.WithContext(ctx).Raw(`
		SELECT p.id AS profile_id, b.id AS badge_id, p.points AS points, b.points_required AS required
		FROM profiles p
		JOIN badges b ON b.points_required <= p.points
		LEFT JOIN user_badges ub ON ub.profile_id = p.id AND ub.badge_id = b.id
		WHERE ub.id IS NULL
		ORDER BY p.id, b.points_required`).
		Scan(&out).Error
	return out, err
}

func (s *DiagnosticsService) missingCredits(ctx context.Context) ([]MissingCredit, error) {
	var members []MissingCredit
	if err := s.DB.WithContext(ctx).Raw(`
		SELECT p.id AS referred_id, p.display_name AS name, p.referred_by AS referrer_id
		FROM profiles p
		JOIN profiles r ON r.id = p.referred_by
		WHERE NOT EXISTS (
			SELECT 1 FROM activities a
			WHERE a.dedupe_key = p.referred_by || '|referral:member:' || p.id
		)
		ORDER BY p.created_at`).
		Scan(&members).Error; err != nil {
		return nil, err
	}
	for i := range members {
		members[i].Kind = models.ReferralKindMember
	}

	var supporters []MissingCredit
	if err := s.DB.WithContext(ctx).Raw(`
		SELECT s.id AS referred_id, s.name AS name, s.referred_by AS referrer_id
		FROM supporters s
		JOIN profiles r ON r.id = s.referred_by
		WHERE NOT EXISTS (
			SELECT 1 FROM activities a
			WHERE a.dedupe_key = s.referred_by || '|referral:supporter:' || s.id
		)
		ORDER BY s.created_at`).
		Scan(&supporters).Error; err != nil {
		return nil, err
	}
	for i := range supporters {
		supporters[i].Kind = models.ReferralKindSupporter
	}
	return append(members, supporters...), nil
}

func (s *DiagnosticsService) missingBonuses(ctx context.Context) ([]MissingBonus, error) {
	var out []MissingBonus
	err := s.DB.WithContext(ctx).Raw(`
		SELECT p.id AS profile_id, p.display_name AS name
		FROM profiles p
		WHERE p.is_profile_complete = ? AND NOT EXISTS (
			SELECT 1 FROM activities a
			WHERE a.dedupe_key = p.id || '|profile_complete'
		)
		ORDER BY p.id`, true).
		Scan(&out).Error
	return out, err
}

func (s *DiagnosticsService) unlinkedSupporters(ctx context.Context) ([]UnlinkedSupporter, error) {
	var out []UnlinkedSupporter
	err := s.DB.WithContext(ctx).Raw(`
		SELECT s.id AS supporter_id, MIN(p.id) AS profile_id
		FROM supporters s
		JOIN profiles p ON LOWER(p.email) = LOWER(s.email)
		WHERE s.profile_id IS NULL AND p.email <> ''
		GROUP BY s.id
		ORDER BY s.id`).
		Scan(&out).Error
	return out, err
}

func (s *DiagnosticsService) pointDrift(ctx context.Context) ([]PointDrift, error) {
	var out []PointDrift
	err := s.DB.WithContext(ctx).Raw(`
		SELECT p.id AS profile_id, p.points AS points, COALESCE(SUM(a.delta), 0) AS activity_sum
		FROM profiles p
		LEFT JOIN activities a ON a.profile_id = p.id
		GROUP BY p.id, p.points
		HAVING p.points <> COALESCE(SUM(a.delta), 0)
		ORDER BY p.id`).
		Scan(&out).Error
	return out, err
}
