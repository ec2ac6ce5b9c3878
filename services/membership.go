package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"community-platform/apperror"
	"community-platform/models"

	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

const (
	maxDisplayNameLength = 120
	minUsernameLength    = 3
	maxUsernameLength    = 64
)

// MemberSignup is the intrinsic data of a new member plus the optional referral code it
// arrived with.
type MemberSignup struct {
	UserID       string `json:"-"`
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	Username     string `json:"username"`
	ReferralCode string `json:"referral_code"`
}

// SupporterSignup is the intrinsic data of a new supporter
type SupporterSignup struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	ReferralCode string `json:"referral_code"`
}

// ProfileUpdate carries optional profile edits; nil fields are left untouched
type ProfileUpdate struct {
	DisplayName *string `json:"display_name"`
	Username    *string `json:"username"`
	Bio         *string `json:"bio"`
}

// ProfileView is the read model of a profile page
type ProfileView struct {
	Profile   *models.Profile       `json:"profile"`
	Badges    []models.UserBadge    `json:"badges"`
	Referrals models.ReferralCounts `json:"referrals"`
	Rank      int64                 `json:"rank"`
}

type MembershipService struct {
	DB        *gorm.DB
	Referrals *ReferralResolver
	Ledger    *LedgerService
	Badges    *BadgeService
	Board     *LeaderboardService
	Log       *zap.Logger
}

func NewMembershipService(db *gorm.DB, referrals *ReferralResolver, ledger *LedgerService,
	badges *BadgeService, board *LeaderboardService, logger *zap.Logger) *MembershipService {
	return &MembershipService{
		DB:        db,
		Referrals: referrals,
		Ledger:    ledger,
		Badges:    badges,
		Board:     board,
		Log:       logger,
	}
}

// RegisterMember creates the profile for an authenticated user. A valid referral code
// attributes the new member to its owner, who is credited once; an unknown code is ignored.
func (s *MembershipService) RegisterMember(ctx context.Context, in MemberSignup) (*models.Profile, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, apperror.ValidationFailed("user_id", "user_id is required")
	}
	displayName, err := validateDisplayName(in.DisplayName)
	if err != nil {
		return nil, err
	}
	username, err := validateUsername(in.Username)
	if err != nil {
		return nil, err
	}
	email := normalizeEmail(in.Email)

	exists, err := s.profileExists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperror.Conflict("profile", userID)
	}
	if username != nil {
		taken, err := s.usernameTaken(ctx, *username, "")
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperror.Conflict("username", *username)
		}
	}

	profile := &models.Profile{
		ID:          userID,
		Email:       email,
		DisplayName: displayName,
		Username:    username,
		SearchName:  searchKey(displayName),
		UserType:    models.UserTypeMember,
		ReferredBy:  s.Referrals.ResolveID(ctx, in.ReferralCode),
	}
	if err := s.createWithReferralCode(ctx, profile); err != nil {
		return nil, err
	}

	s.Log.Info("member registered",
		zap.String("profile_id", profile.ID),
		zap.String("referral_code", profile.ReferralCode),
		zap.Bool("referred", profile.ReferredBy != nil),
	)

	if profile.ReferredBy != nil {
		s.Ledger.AwardQuietly(ctx, Award{
			ProfileID:   *profile.ReferredBy,
			Delta:       s.Ledger.Weights.MemberReferral,
			Category:    models.ActivityReferralMember,
			Description: fmt.Sprintf("Referred member %s joined", profile.DisplayName),
			Key:         "referral:member:" + profile.ID,
		})
	}
	return profile, nil
}

// EnsureMember returns the existing profile untouched, or registers a new one.
// Attribution never changes for an existing profile.
func (s *MembershipService) EnsureMember(ctx context.Context, in MemberSignup) (*models.Profile, bool, error) {
	existing, err := s.GetProfile(ctx, in.UserID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, false, err
	}

	profile, err := s.RegisterMember(ctx, in)
	if errors.Is(err, apperror.ErrConflict) {
		// lost a race with a concurrent registration of the same id
		if existing, getErr := s.GetProfile(ctx, in.UserID); getErr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return profile, true, nil
}

func (s *MembershipService) createWithReferralCode(ctx context.Context, profile *models.Profile) error {
	for attempt := 1; attempt <= referralCodeAttempts; attempt++ {
		profile.ReferralCode = GenerateReferralCode()
		err := s.DB.WithContext(ctx).Create(profile).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("creating profile %s: %w", profile.ID, err)
		}

		// find out which unique column collided
		if exists, checkErr := s.profileExists(ctx, profile.ID); checkErr == nil && exists {
			return apperror.Conflict("profile", profile.ID)
		}
		if profile.Username != nil {
			if taken, checkErr := s.usernameTaken(ctx, *profile.Username, ""); checkErr == nil && taken {
				return apperror.Conflict("username", *profile.Username)
			}
		}
		s.Log.Debug("referral code collision, regenerating",
			zap.String("code", profile.ReferralCode), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("could not allocate a unique referral code after %d attempts", referralCodeAttempts)
}

// RegisterSupporter records a supporter, attributing it to the owner of a valid referral
// code and linking it to the member with the same email when one exists. A repeat signup
// with a known email returns the stored supporter unchanged and credits nobody.
func (s *MembershipService) RegisterSupporter(ctx context.Context, in SupporterSignup) (*models.Supporter, error) {
	name := normalizeName(in.Name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return nil, apperror.ValidationFailed("name", "name is too long")
	}
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.ValidationFailed("email", "email is invalid")
	}

	if existing, err := s.supporterByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		s.Log.Info("supporter already registered", zap.String("supporter_id", existing.ID))
		return existing, nil
	}

	supporter := &models.Supporter{
		Name:       name,
		Email:      email,
		ReferredBy: s.Referrals.ResolveID(ctx, in.ReferralCode),
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		supporter.Phone = &phone
	}

	var member models.Profile
	err := s.DB.WithContext(ctx).Select("id").Where("LOWER(email) = ?", email).First(&member).Error
	switch {
	case err == nil:
		supporter.ProfileID = &member.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.Log.Warn("supporter profile link lookup failed", zap.Error(err))
	}

	if err := s.DB.WithContext(ctx).Create(supporter).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// a concurrent signup with the same email won; its referrer was credited there
			existing, lookupErr := s.supporterByEmail(ctx, email)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("creating supporter: %w", err)
	}

	s.Log.Info("supporter registered",
		zap.String("supporter_id", supporter.ID),
		zap.Bool("referred", supporter.ReferredBy != nil),
	)

	if supporter.ReferredBy != nil {
		s.Ledger.AwardQuietly(ctx, Award{
			ProfileID:   *supporter.ReferredBy,
			Delta:       s.Ledger.Weights.SupporterReferral,
			Category:    models.ActivityReferralSupporter,
			Description: fmt.Sprintf("Referred supporter %s joined", supporter.Name),
			Key:         "referral:supporter:" + supporter.ID,
		})
	}
	return supporter, nil
}

func (s *MembershipService) supporterByEmail(ctx context.Context, email string) (*models.Supporter, error) {
	var supporter models.Supporter
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&supporter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up supporter: %w", err)
	}
	return &supporter, nil
}

// UpdateProfile applies edits. The first time display name, username and bio are all
// present the profile is marked complete and the completion bonus is awarded.
func (s *MembershipService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.Profile, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if upd.DisplayName != nil {
		name, err := validateDisplayName(*upd.DisplayName)
		if err != nil {
			return nil, err
		}
		profile.DisplayName = name
		changes["display_name"] = name
		changes["search_name"] = searchKey(name)
	}
	if upd.Username != nil {
		username, err := validateUsername(*upd.Username)
		if err != nil {
			return nil, err
		}
		if username != nil {
			taken, err := s.usernameTaken(ctx, *username, userID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, apperror.Conflict("username", *username)
			}
		}
		profile.Username = username
		changes["username"] = username
	}
	if upd.Bio != nil {
		profile.Bio = strings.TrimSpace(*upd.Bio)
		changes["bio"] = profile.Bio
	}

	if len(changes) > 0 {
		err := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", userID).Updates(changes).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Conflict("username", fmt.Sprint(changes["username"]))
		}
		if err != nil {
			return nil, fmt.Errorf("updating profile %s: %w", userID, err)
		}
	}

	if !profile.IsProfileComplete && isComplete(profile) {
		// conditional flip: only one caller can move false -> true
		res := s.DB.WithContext(ctx).Model(&models.Profile{}).
			Where("id = ? AND is_profile_complete = ?", userID, false).
			Update("is_profile_complete", true)
		if res.Error != nil {
			return nil, fmt.Errorf("marking profile complete: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			// a failed award is re-applied by diagnostics repair
			s.Ledger.AwardQuietly(ctx, s.Ledger.completionAward(userID))
		}
	}

	return s.GetProfile(ctx, userID)
}

func isComplete(p *models.Profile) bool {
	return p.DisplayName != "" && p.Username != nil && *p.Username != "" && p.Bio != ""
}

func (s *MembershipService) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("profile", id)
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetProfileView assembles the profile page: badges, referral counts and rank
func (s *MembershipService) GetProfileView(ctx context.Context, id string) (*ProfileView, error) {
	profile, err := s.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	badges, err := s.Badges.ListUserBadges(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.Referrals.Counts(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	rank, err := s.Board.RankOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ProfileView{
		Profile:   profile,
		Badges:    badges,
		Referrals: counts[id],
		Rank:      rank,
	}, nil
}

// ListReferrals lists the members and supporters the profile referred
func (s *MembershipService) ListReferrals(ctx context.Context, id string) ([]models.ReferralEdge, error) {
	if _, err := s.GetProfile(ctx, id); err != nil {
		return nil, err
	}
	return s.Referrals.Edges(ctx, id)
}

// SearchProfiles matches the query against folded display names, usernames and emails.
func (s *MembershipService) SearchProfiles(ctx context.Context, query string, limit int) ([]models.Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&models.Profile{}).Order("points DESC").Limit(limit)

	if q := strings.TrimSpace(query); q != "" {
		term := "%" + searchKey(q) + "%"
		lowered := "%" + strings.ToLower(q) + "%"
		db = db.Where("search_name LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ?", term, lowered, lowered)
	}

	var profiles []models.Profile
	if err := db.Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("searching profiles: %w", err)
	}
	return profiles, nil
}

// SetAdmin grants or revokes the admin flag
func (s *MembershipService) SetAdmin(ctx context.Context, id string, admin bool) error {
	res := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Update("is_admin", admin)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("profile", id)
	}
	s.Log.Info("admin flag changed", zap.String("profile_id", id), zap.Bool("admin", admin))
	return nil
}

// IsAdmin reports the profile's admin flag; unknown profiles are not admins
func (s *MembershipService) IsAdmin(ctx context.Context, id string) (bool, error) {
	var profile models.Profile
	err := s.DB.WithContext(ctx).Select("id", "is_admin").Where("id = ?", id).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return profile.IsAdmin, nil
}

func (s *MembershipService) profileExists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *MembershipService) usernameTaken(ctx context.Context, username, exceptID string) (bool, error) {
	var count int64
	q := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("username = ?", username)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// normalizeName composes to NFC and collapses whitespace
func normalizeName(raw string) string {
	return strings.Join(strings.Fields(norm.NFC.String(raw)), " ")
}

func validateDisplayName(raw string) (string, error) {
	name := normalizeName(raw)
	if name == "" {
		return "", apperror.ValidationFailed("display_name", "display_name is required")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return "", apperror.ValidationFailed("display_name", "display_name is too long")
	}
	return name, nil
}

// validateUsername returns nil for an empty username (it is optional)
func validateUsername(raw string) (*string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	if username == "" {
		return nil, nil
	}
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d-%d characters", minUsernameLength, maxUsernameLength))
	}
	if !slug.IsSlug(username) {
		return nil, apperror.ValidationFailed("username", "username may only contain lowercase letters, digits and dashes")
	}
	return &username, nil
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// searchKey folds a display name to lowercase ASCII, e.g. "Zoë Łukasz" -> "zoe lukasz"
func searchKey(name string) string {
	return strings.ToLower(unidecode.Unidecode(name))
}
