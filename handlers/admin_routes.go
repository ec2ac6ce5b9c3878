package handlers

import (
	"strings"

	"community-platform/middleware"
	"community-platform/models"
	"community-platform/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type voteStatusRequest struct {
	Status models.VoteStatus `json:"status"`
}

type fulfillRequest struct {
	HelperID string `json:"helper_id"`
	Points   int64  `json:"points"`
}

type grantRequest struct {
	ProfileID string `json:"profile_id"`
	Delta     int64  `json:"delta"`
	Reason    string `json:"reason"`
	Key       string `json:"key"`
}

type adminFlagRequest struct {
	Admin bool `json:"admin"`
}

func SetupAdminRoutes(app *fiber.App, svc *Services, log *zap.Logger) {
	admin := app.Group("/admin", middleware.RequireUser(), middleware.RequireAdmin(svc.Membership, log))

	admin.Get("/badges", listBadges(svc.Badges))
	admin.Post("/badges", createBadge(svc.Badges))
	admin.Put("/badges/:id", updateBadge(svc.Badges))
	admin.Delete("/badges/:id", deleteBadge(svc.Badges))
	admin.Post("/badges/:id/icon", uploadBadgeIcon(svc.Badges))

	admin.Post("/votes", createVote(svc.Voting))
	admin.Patch("/votes/:id/status", setVoteStatus(svc.Voting))

	admin.Post("/wishes/:id/fulfill", fulfillWish(svc.Wishes))

	admin.Post("/points/grant", grantPoints(svc.Ledger))

	admin.Get("/profiles/search", searchProfiles(svc.Membership))
	admin.Put("/profiles/:id/admin", setAdminFlag(svc.Membership))

	admin.Get("/diagnostics", diagnose(svc.Diagnostics))
	admin.Post("/diagnostics/repair", repair(svc.Diagnostics))
}

func createBadge(badges *services.BadgeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in services.BadgeInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest("invalid request body")
		}
		badge, err := badges.CreateBadge(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(badge)
	}
}

func updateBadge(badges *services.BadgeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in services.BadgeInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest("invalid request body")
		}
		badge, err := badges.UpdateBadge(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return err
		}
		return c.JSON(badge)
	}
}

func deleteBadge(badges *services.BadgeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := badges.DeleteBadge(c.UserContext(), c.Params("id")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func uploadBadgeIcon(badges *services.BadgeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header, err := c.FormFile("icon")
		if err != nil {
			return badRequest("icon file is required")
		}
		file, err := header.Open()
		if err != nil {
			return err
		}
		defer file.Close()

		badge, err := badges.UploadIcon(c.UserContext(), c.Params("id"),
			header.Filename, header.Header.Get("Content-Type"), file)
		if err != nil {
			return err
		}
		return c.JSON(badge)
	}
}

func createVote(voting *services.VotingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in services.VoteInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest("invalid request body")
		}
		vote, err := voting.CreateVote(c.UserContext(), middleware.UserID(c), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(vote)
	}
}

func setVoteStatus(voting *services.VotingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req voteStatusRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest("invalid request body")
		}
		vote, err := voting.SetVoteStatus(c.UserContext(), c.Params("id"), req.Status)
		if err != nil {
			return err
		}
		return c.JSON(vote)
	}
}

func fulfillWish(wishes *services.WishService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req fulfillRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest("invalid request body")
		}
		wish, award, err := wishes.FulfillWish(c.UserContext(), c.Params("id"), req.HelperID, req.Points)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"wish": wish, "award": award})
	}
}

func grantPoints(ledger *services.LedgerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req grantRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest("invalid request body")
		}
		result, err := ledger.Grant(c.UserContext(), strings.TrimSpace(req.ProfileID), req.Delta, req.Reason, req.Key)
		if err != nil {
			return err
		}
		return c.JSON(result)
	}
}

func searchProfiles(membership *services.MembershipService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		profiles, err := membership.SearchProfiles(c.UserContext(), c.Query("q"), queryInt(c, "limit", 50))
		if err != nil {
			return err
		}
		return c.JSON(profiles)
	}
}

func setAdminFlag(membership *services.MembershipService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req adminFlagRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest("invalid request body")
		}
		if err := membership.SetAdmin(c.UserContext(), c.Params("id"), req.Admin); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func diagnose(diagnostics *services.DiagnosticsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := diagnostics.Diagnose(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(report)
	}
}

func repair(diagnostics *services.DiagnosticsService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := diagnostics.Repair(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(report)
	}
}
