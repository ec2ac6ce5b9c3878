package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"community-platform/apperror"
	"community-platform/config"
	"community-platform/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PointWeights define the fixed award table
type PointWeights struct {
	MemberReferral    int64
	SupporterReferral int64
	VoteCast          int64
	ProfileComplete   int64
}

var DefaultPointWeights = PointWeights{
	MemberReferral:    20,
	SupporterReferral: 10,
	VoteCast:          5,
	ProfileComplete:   50,
}

// WeightsFromConfig builds the award table from configuration
func WeightsFromConfig(cfg config.PointsConfig) PointWeights {
	return PointWeights{
		MemberReferral:    cfg.MemberReferral,
		SupporterReferral: cfg.SupporterReferral,
		VoteCast:          cfg.VoteCast,
		ProfileComplete:   cfg.ProfileComplete,
	}
}

// Award describes one point mutation. Key, when set, makes the award idempotent per
// recipient: a second award with the same key is skipped.
type Award struct {
	ProfileID   string
	Delta       int64
	Category    models.ActivityCategory
	Description string
	Key         string
}

// AwardResult reports the outcome of Award
type AwardResult struct {
	Total     int64          `json:"total"`
	Applied   bool           `json:"applied"`
	NewBadges []models.Badge `json:"new_badges,omitempty"`
}

var errAlreadyApplied = errors.New("award already applied")

// LedgerService is the single entry point for point mutations and badge accrual.
type LedgerService struct {
	DB      *gorm.DB
	Weights PointWeights
	Log     *zap.Logger
}

func NewLedgerService(db *gorm.DB, weights PointWeights, logger *zap.Logger) *LedgerService {
	return &LedgerService{DB: db, Weights: weights, Log: logger}
}

func dedupeKey(profileID, key string) *string {
	if key == "" {
		return nil
	}
	k := profileID + "|" + key
	return &k
}

// Award atomically applies a point delta, appends the audit activity and materialises
// every badge whose threshold the new total meets, all in one transaction.
func (s *LedgerService) Award(ctx context.Context, a Award) (*AwardResult, error) {
	if a.ProfileID == "" {
		return nil, apperror.ValidationFailed("profile_id", "profile_id is required")
	}
	if a.Category == "" {
		return nil, apperror.ValidationFailed("category", "category is required")
	}

	result := &AwardResult{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// store-side increment; concurrent awards serialise on the row lock
		res := tx.Model(&models.Profile{}).
			Where("id = ? AND points + ? >= 0", a.ProfileID, a.Delta).
			Update("points", gorm.Expr("points + ?", a.Delta))
		if res.Error != nil {
			return fmt.Errorf("incrementing points for %s: %w", a.ProfileID, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Profile{}).Where("id = ?", a.ProfileID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return apperror.NotFound("profile", a.ProfileID)
			}
			return apperror.ValidationFailed("delta", "point total cannot drop below zero")
		}

		total, err := currentPoints(tx, a.ProfileID)
		if err != nil {
			return err
		}

		activity := models.Activity{
			ProfileID:    a.ProfileID,
			Delta:        a.Delta,
			BalanceAfter: total,
			Category:     a.Category,
			Description:  a.Description,
			DedupeKey:    dedupeKey(a.ProfileID, a.Key),
		}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&activity)
		if ins.Error != nil {
			return fmt.Errorf("recording activity: %w", ins.Error)
		}
		if ins.RowsAffected == 0 {
			// rolls back the increment above
			return errAlreadyApplied
		}

		newBadges, err := evaluateBadges(tx, a.ProfileID, total)
		if err != nil {
			return err
		}

		result.Total = total
		result.Applied = true
		result.NewBadges = newBadges
		return nil
	})

	if errors.Is(err, errAlreadyApplied) {
		total, err := currentPoints(s.DB.WithContext(ctx), a.ProfileID)
		if err != nil {
			return nil, err
		}
		s.Log.Debug("award skipped, key already applied",
			zap.String("profile_id", a.ProfileID), zap.String("key", a.Key))
		return &AwardResult{Total: total, Applied: false}, nil
	}
	if err != nil {
		return nil, err
	}

	s.Log.Info("points awarded",
		zap.String("profile_id", a.ProfileID),
		zap.Int64("delta", a.Delta),
		zap.Int64("total", result.Total),
		zap.String("category", string(a.Category)),
		zap.Int("new_badges", len(result.NewBadges)),
	)
	return result, nil
}

// AwardQuietly runs Award for a side effect of a primary action: failures are logged and
// swallowed so the primary action still succeeds.
func (s *LedgerService) AwardQuietly(ctx context.Context, a Award) *AwardResult {
	res, err := s.Award(ctx, a)
	if err != nil {
		s.Log.Warn("point accrual failed",
			zap.String("profile_id", a.ProfileID),
			zap.String("category", string(a.Category)),
			zap.String("key", a.Key),
			zap.Error(err),
		)
		return nil
	}
	return res
}

// completionAward is the one-time bonus for a completed profile
func (s *LedgerService) completionAward(profileID string) Award {
	return Award{
		ProfileID:   profileID,
		Delta:       s.Weights.ProfileComplete,
		Category:    models.ActivityProfileComplete,
		Description: "Profile completed",
		Key:         "profile_complete",
	}
}

// Grant applies a manual admin adjustment. Negative deltas are allowed down to zero.
func (s *LedgerService) Grant(ctx context.Context, profileID string, delta int64, reason, key string) (*AwardResult, error) {
	if delta == 0 {
		return nil, apperror.ValidationFailed("delta", "delta must not be zero")
	}
	if reason == "" {
		reason = "Admin adjustment"
	}
	if key != "" {
		key = "admin:" + key
	}
	return s.Award(ctx, Award{
		ProfileID:   profileID,
		Delta:       delta,
		Category:    models.ActivityAdminAdjustment,
		Description: reason,
		Key:         key,
	})
}

// EvaluateBadges inserts every missing badge the profile's current total qualifies for.
// Safe to run any number of times.
func (s *LedgerService) EvaluateBadges(ctx context.Context, profileID string) ([]models.Badge, error) {
	var awarded []models.Badge
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		total, err := currentPoints(tx, profileID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.NotFound("profile", profileID)
		}
		if err != nil {
			return err
		}
		awarded, err = evaluateBadges(tx, profileID, total)
		return err
	})
	if err != nil {
		return nil, err
	}
	return awarded, nil
}

// ReconcileBadges runs badge evaluation for every profile that qualifies for at least one
// badge and returns how many badges were newly awarded.
func (s *LedgerService) ReconcileBadges(ctx context.Context) (int, error) {
	var minRequired sql.NullInt64
	if err := s.DB.WithContext(ctx).Model(&models.Badge{}).
		Select("MIN(points_required)").Scan(&minRequired).Error; err != nil {
		return 0, err
	}
	if !minRequired.Valid {
		return 0, nil
	}

	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.Profile{}).
		Where("points >= ?", minRequired.Int64).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	awarded := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return awarded, err
		}
		badges, err := s.EvaluateBadges(ctx, id)
		if err != nil {
			s.Log.Warn("badge reconciliation failed", zap.String("profile_id", id), zap.Error(err))
			continue
		}
		awarded += len(badges)
	}
	if awarded > 0 {
		s.Log.Info("badge reconciliation awarded missing badges", zap.Int("count", awarded))
	}
	return awarded, nil
}

func currentPoints(db *gorm.DB, profileID string) (int64, error) {
	var p models.Profile
	if err := db.Select("id", "points").Where("id = ?", profileID).First(&p).Error; err != nil {
		return 0, err
	}
	return p.Points, nil
}

// evaluateBadges: for each badge b with b.threshold <= total and no UserBadge(profile, b),
// insert UserBadge(profile, b, now). Returns the badges inserted by this call.
func evaluateBadges(tx *gorm.DB, profileID string, total int64) ([]models.Badge, error) {
	var eligible []models.Badge
	if err := tx.Where("points_required <= ?", total).
		Order("points_required ASC").
		Find(&eligible).Error; err != nil {
		return nil, fmt.Errorf("loading eligible badges: %w", err)
	}

	var awarded []models.Badge
	now := time.Now()
	for _, b := range eligible {
		ub := models.UserBadge{ProfileID: profileID, BadgeID: b.ID, EarnedAt: now}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ub)
		if res.Error != nil {
			return nil, fmt.Errorf("awarding badge %s: %w", b.Code, res.Error)
		}
		if res.RowsAffected == 0 {
			continue
		}
		activity := models.Activity{
			ProfileID:    profileID,
			Delta:        0,
			BalanceAfter: total,
			Category:     models.ActivityBadgeEarned,
			Description:  "Badge earned: " + b.Name,
			DedupeKey:    dedupeKey(profileID, "badge:"+b.ID),
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&activity).Error; err != nil {
			return nil, fmt.Errorf("recording badge activity: %w", err)
		}
		awarded = append(awarded, b)
	}
	return awarded, nil
}

// ListActivities returns a page of the profile's activity feed, newest first
func (s *LedgerService) ListActivities(ctx context.Context, profileID string, page, size int) ([]models.Activity, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	if err := s.DB.WithContext(ctx).Model(&models.Activity{}).
		Where("profile_id = ?", profileID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var activities []models.Activity
	err := s.DB.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&activities).Error
	return activities, total, err
}

// ActivityCursor marks the last activity delivered to a reader. Activities are ordered by
// (CreatedAt, ID).
type ActivityCursor struct {
	CreatedAt time.Time
	ID        string
}

// ActivitiesAfter returns the profile's activities ordered after cursor, oldest first
func (s *LedgerService) ActivitiesAfter(ctx context.Context, profileID string, cursor ActivityCursor) ([]models.Activity, error) {
	var activities []models.Activity
	err := s.DB.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Where("created_at > ? OR (created_at = ? AND id > ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID).
		Order("created_at ASC").Order("id ASC").
		Find(&activities).Error
	return activities, err
}
