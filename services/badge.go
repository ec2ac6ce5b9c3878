package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"community-platform/apperror"
	"community-platform/config"
	"community-platform/models"
	"community-platform/utils"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BadgeInput is the admin payload for creating or editing a catalog entry
type BadgeInput struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	Icon           string `json:"icon"`
	Description    string `json:"description"`
	PointsRequired int64  `json:"points_required"`
}

type BadgeService struct {
	DB    *gorm.DB
	Store utils.ObjectStore
	Log   *zap.Logger
}

func NewBadgeService(db *gorm.DB, store utils.ObjectStore, logger *zap.Logger) *BadgeService {
	return &BadgeService{DB: db, Store: store, Log: logger}
}

func (in BadgeInput) normalize() (BadgeInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, apperror.ValidationFailed("name", "name is required")
	}
	if in.PointsRequired < 0 {
		return in, apperror.ValidationFailed("points_required", "points_required must not be negative")
	}
	in.Code = slug.Make(strings.TrimSpace(in.Code))
	if in.Code == "" {
		in.Code = slug.Make(in.Name)
	}
	if in.Code == "" {
		return in, apperror.ValidationFailed("code", "code could not be derived from name")
	}
	in.Icon = strings.TrimSpace(in.Icon)
	in.Description = strings.TrimSpace(in.Description)
	return in, nil
}

// CreateBadge adds a catalog entry. Profiles already past the threshold receive it on
// their next award or the next reconciliation sweep.
func (s *BadgeService) CreateBadge(ctx context.Context, in BadgeInput) (*models.Badge, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	badge := &models.Badge{
		Code:           in.Code,
		Name:           in.Name,
		Icon:           in.Icon,
		Description:    in.Description,
		PointsRequired: in.PointsRequired,
	}
	err = s.DB.WithContext(ctx).Create(badge).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperror.Conflict("badge", in.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("creating badge: %w", err)
	}
	s.Log.Info("badge created", zap.String("code", badge.Code), zap.Int64("points_required", badge.PointsRequired))
	return badge, nil
}

func (s *BadgeService) GetBadge(ctx context.Context, id string) (*models.Badge, error) {
	var badge models.Badge
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&badge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("badge", id)
	}
	if err != nil {
		return nil, err
	}
	return &badge, nil
}

// UpdateBadge replaces the editable fields of a badge. Raising a threshold never revokes
// badges already earned.
func (s *BadgeService) UpdateBadge(ctx context.Context, id string, in BadgeInput) (*models.Badge, error) {
	badge, err := s.GetBadge(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Code == "" {
		in.Code = badge.Code
	}
	in, err = in.normalize()
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Model(badge).Updates(map[string]any{
		"code":            in.Code,
		"name":            in.Name,
		"icon":            in.Icon,
		"description":     in.Description,
		"points_required": in.PointsRequired,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperror.Conflict("badge", in.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("updating badge %s: %w", id, err)
	}
	return s.GetBadge(ctx, id)
}

// DeleteBadge removes a catalog entry together with its awarded instances
func (s *BadgeService) DeleteBadge(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("badge_id = ?", id).Delete(&models.UserBadge{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Badge{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.NotFound("badge", id)
		}
		return nil
	})
}

// ListBadges returns the catalog ordered by threshold
func (s *BadgeService) ListBadges(ctx context.Context) ([]models.Badge, error) {
	var badges []models.Badge
	err := s.DB.WithContext(ctx).Order("points_required ASC, name ASC").Find(&badges).Error
	return badges, err
}

// ListUserBadges returns the badges a profile earned, with their catalog entry
func (s *BadgeService) ListUserBadges(ctx context.Context, profileID string) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := s.DB.WithContext(ctx).
		Preload("Badge").
		Where("profile_id = ?", profileID).
		Order("earned_at ASC").
		Find(&userBadges).Error
	return userBadges, err
}

// SeedBadges upserts a catalog by code; existing entries are updated in place.
func (s *BadgeService) SeedBadges(ctx context.Context, catalog *config.BadgeCatalog) (int, error) {
	if catalog == nil || len(catalog.Badges) == 0 {
		return 0, nil
	}

	badges := make([]models.Badge, 0, len(catalog.Badges))
	for _, seed := range catalog.Badges {
		in, err := BadgeInput{
			Code:           seed.Code,
			Name:           seed.Name,
			Icon:           seed.Icon,
			Description:    seed.Description,
			PointsRequired: seed.PointsRequired,
		}.normalize()
		if err != nil {
			return 0, fmt.Errorf("badge %q: %w", seed.Name, err)
		}
		badges = append(badges, models.Badge{
			ID:             uuid.NewString(),
			Code:           in.Code,
			Name:           in.Name,
			Icon:           in.Icon,
			Description:    in.Description,
			PointsRequired: in.PointsRequired,
		})
	}

	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "icon", "description", "points_required", "updated_at"}),
	}).Create(&badges).Error; err != nil {
		return 0, fmt.Errorf("seeding badges: %w", err)
	}

	s.Log.Info("badge catalog seeded", zap.Int("count", len(badges)))
	return len(badges), nil
}

// UploadIcon stores an icon image and points the badge at its public URL. An icon
// previously uploaded to the store is removed.
func (s *BadgeService) UploadIcon(ctx context.Context, id, filename, contentType string, body io.Reader) (*models.Badge, error) {
	badge, err := s.GetBadge(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperror.ValidationFailed("icon", "icon must be an image")
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".png"
	}
	key := "badges/" + badge.Code + "-" + uuid.NewString()[:8] + strings.ToLower(ext)

	url, err := s.Store.Put(ctx, key, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("uploading badge icon: %w", err)
	}
	previous := badge.Icon
	if err := s.DB.WithContext(ctx).Model(badge).Update("icon", url).Error; err != nil {
		return nil, err
	}
	badge.Icon = url

	if oldKey, ok := s.Store.KeyFor(previous); ok {
		if err := s.Store.Delete(ctx, oldKey); err != nil {
			s.Log.Warn("removing replaced badge icon failed",
				zap.String("badge_id", badge.ID), zap.String("key", oldKey), zap.Error(err))
		}
	}
	return badge, nil
}
