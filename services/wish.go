package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"community-platform/apperror"
	"community-platform/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type WishInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type WishService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Log    *zap.Logger
}

func NewWishService(db *gorm.DB, ledger *LedgerService, logger *zap.Logger) *WishService {
	return &WishService{DB: db, Ledger: ledger, Log: logger}
}

func (s *WishService) CreateWish(ctx context.Context, profileID string, in WishInput) (*models.Wish, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", profileID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, apperror.NotFound("profile", profileID)
	}

	wish := &models.Wish{
		ProfileID:   profileID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      models.WishStatusOpen,
	}
	if err := s.DB.WithContext(ctx).Create(wish).Error; err != nil {
		return nil, fmt.Errorf("creating wish: %w", err)
	}
	return wish, nil
}

func (s *WishService) GetWish(ctx context.Context, id string) (*models.Wish, error) {
	var wish models.Wish
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&wish).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("wish", id)
	}
	if err != nil {
		return nil, err
	}
	return &wish, nil
}

// ListWishes returns wishes newest first, optionally filtered by status
func (s *WishService) ListWishes(ctx context.Context, status models.WishStatus) ([]models.Wish, error) {
	db := s.DB.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		switch status {
		case models.WishStatusOpen, models.WishStatusFulfilled, models.WishStatusCancelled:
		default:
			return nil, apperror.ValidationFailed("status", "unknown wish status")
		}
		db = db.Where("status = ?", status)
	}
	var wishes []models.Wish
	return wishes, db.Find(&wishes).Error
}

// CancelWish withdraws an open wish. Only its author or an admin may cancel.
func (s *WishService) CancelWish(ctx context.Context, id, actorID string, actorIsAdmin bool) (*models.Wish, error) {
	wish, err := s.GetWish(ctx, id)
	if err != nil {
		return nil, err
	}
	if wish.ProfileID != actorID && !actorIsAdmin {
		return nil, apperror.Forbidden("only the author can cancel this wish")
	}

	res := s.DB.WithContext(ctx).Model(&models.Wish{}).
		Where("id = ? AND status = ?", id, models.WishStatusOpen).
		Update("status", models.WishStatusCancelled)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperror.ValidationFailed("status", "wish is no longer open")
	}
	return s.GetWish(ctx, id)
}

// FulfillWish marks an open wish fulfilled by helperID and credits the helper with points.
// The transition happens at most once, so the helper is credited at most once.
func (s *WishService) FulfillWish(ctx context.Context, id, helperID string, points int64) (*models.Wish, *AwardResult, error) {
	if helperID == "" {
		return nil, nil, apperror.ValidationFailed("helper_id", "helper_id is required")
	}
	if points < 0 {
		return nil, nil, apperror.ValidationFailed("points", "points must not be negative")
	}
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", helperID).Count(&count).Error; err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return nil, nil, apperror.NotFound("profile", helperID)
	}

	wish, err := s.GetWish(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	res := s.DB.WithContext(ctx).Model(&models.Wish{}).
		Where("id = ? AND status = ?", id, models.WishStatusOpen).
		Updates(map[string]any{
			"status":         models.WishStatusFulfilled,
			"fulfilled_by":   helperID,
			"points_awarded": points,
			"fulfilled_at":   now,
		})
	if res.Error != nil {
		return nil, nil, fmt.Errorf("fulfilling wish %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil, apperror.ValidationFailed("status", "wish is no longer open")
	}

	s.Log.Info("wish fulfilled",
		zap.String("wish_id", id), zap.String("helper_id", helperID), zap.Int64("points", points))

	var award *AwardResult
	if points > 0 {
		award = s.Ledger.AwardQuietly(ctx, Award{
			ProfileID:   helperID,
			Delta:       points,
			Category:    models.ActivityWishFulfilled,
			Description: "Fulfilled wish: " + wish.Title,
			Key:         "wish:" + id,
		})
	}

	wish, err = s.GetWish(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return wish, award, nil
}
