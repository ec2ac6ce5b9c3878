package handlers

import (
	"context"

	"community-platform/middleware"
	"community-platform/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Services bundles everything the HTTP layer calls into
type Services struct {
	Membership  *services.MembershipService
	Ledger      *services.LedgerService
	Leaderboard *services.LeaderboardService
	Badges      *services.BadgeService
	Voting      *services.VotingService
	Wishes      *services.WishService
	Diagnostics *services.DiagnosticsService
}

// AuthOptions configures how callers are identified
type AuthOptions struct {
	Verifier     *middleware.TokenVerifier
	GatewayToken string
}

// SetupRoutes installs request logging, identity resolution and every route group.
// Long-lived streams end when ctx is cancelled.
func SetupRoutes(ctx context.Context, app *fiber.App, svc *Services, auth AuthOptions, log *zap.Logger) {
	app.Use(middleware.RequestLogger(log))
	app.Use("/me/activities/stream", middleware.QueryToken())
	app.Use(middleware.Identity(auth.Verifier, auth.GatewayToken, log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupMemberRoutes(app, svc, log)
	SetupProgressionRoutes(ctx, app, svc, log)
	SetupVotingRoutes(app, svc)
	SetupWishRoutes(app, svc)
	SetupAdminRoutes(app, svc, log)
}
