package workers

import (
	"context"
	"strings"
	"sync"
	"time"

	"community-platform/apperror"
	"community-platform/models"
	"community-platform/services"

	"go.uber.org/zap"
)

// UserSource lists auth users changed since a point in time
type UserSource interface {
	UsersChangedSince(ctx context.Context, since time.Time) ([]AuthUser, error)
}

// MemberEnsurer creates the profile for a user that has none
type MemberEnsurer interface {
	EnsureMember(ctx context.Context, in services.MemberSignup) (*models.Profile, bool, error)
}

// AuthUserSyncWorker gives every auth user a profile, attributing it with the referral
// code captured at signup. Existing profiles are never modified.
type AuthUserSyncWorker struct {
	source   UserSource
	members  MemberEnsurer
	interval time.Duration
	log      *zap.Logger

	mu       sync.Mutex
	lastSeen time.Time
}

func NewAuthUserSyncWorker(source UserSource, members MemberEnsurer, interval time.Duration, log *zap.Logger) *AuthUserSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AuthUserSyncWorker{source: source, members: members, interval: interval, log: log}
}

// Run blocks until ctx is cancelled
func (w *AuthUserSyncWorker) Run(ctx context.Context) {
	w.log.Info("starting auth user sync worker", zap.Duration("interval", w.interval))
	// initial pass backfills from the beginning of time
	if _, err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("initial auth user sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Error("auth user sync failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("auth user sync worker stopped")
			return
		}
	}
}

// SyncOnce processes one batch and returns the number of profiles created
func (w *AuthUserSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	w.mu.Lock()
	since := w.lastSeen
	w.mu.Unlock()

	users, err := w.source.UsersChangedSince(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}

	var created, failed int
	latest := since
	for _, u := range users {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if u.UpdatedAt.After(latest) {
			latest = u.UpdatedAt
		}
		in := signupFromAuthUser(u)
		_, isNew, err := w.members.EnsureMember(ctx, in)
		if err != nil && in.Username != "" &&
			(apperror.Is(err, apperror.ErrValidation) || apperror.Is(err, apperror.ErrConflict)) {
			// unusable or taken username: register without one
			in.Username = ""
			_, isNew, err = w.members.EnsureMember(ctx, in)
		}
		if apperror.Is(err, apperror.ErrValidation) {
			w.log.Warn("skipping auth user with invalid data", zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		if err != nil {
			failed++
			w.log.Warn("could not ensure profile for auth user", zap.String("user_id", u.ID), zap.Error(err))
			continue
		}
		if isNew {
			created++
		}
	}

	// a failed user keeps the cursor where it was so it is retried next round
	if failed == 0 {
		w.mu.Lock()
		w.lastSeen = latest
		w.mu.Unlock()
	}

	w.log.Info("auth user sync batch processed",
		zap.Int("users", len(users)), zap.Int("created", created), zap.Int("failed", failed))
	return created, nil
}

func signupFromAuthUser(u AuthUser) services.MemberSignup {
	name := strings.TrimSpace(u.UserMetadata.DisplayName)
	if name == "" {
		name = strings.TrimSpace(u.UserMetadata.FullName)
	}
	if name == "" {
		name, _, _ = strings.Cut(u.Email, "@")
	}
	if name == "" {
		name = "member"
	}
	return services.MemberSignup{
		UserID:       u.ID,
		Email:        u.Email,
		DisplayName:  name,
		Username:     u.UserMetadata.Username,
		ReferralCode: strings.TrimSpace(u.UserMetadata.ReferralCode),
	}
}
