package handlers

import (
	"strconv"

	"community-platform/middleware"
	"community-platform/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func SetupMemberRoutes(app *fiber.App, svc *Services, log *zap.Logger) {
	// public
	app.Post("/supporters", registerSupporter(svc.Membership))
	app.Get("/profiles/:id", publicProfile(svc.Membership))

	user := middleware.RequireUser()
	app.Post("/me/profile", user, registerMember(svc.Membership, log))
	app.Get("/me", user, currentProfile(svc.Membership))
	app.Patch("/me/profile", user, updateProfile(svc.Membership))
	app.Get("/me/referrals", user, myReferrals(svc.Membership))
}

func registerMember(membership *services.MembershipService, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in services.MemberSignup
		if err := c.BodyParser(&in); err != nil {
			return badRequest("invalid request body")
		}
		in.UserID = middleware.UserID(c)
		if in.Email == "" {
			in.Email = middleware.UserEmail(c)
		}

		profile, created, err := membership.EnsureMember(c.UserContext(), in)
		if err != nil {
			return err
		}
		if !created {
			log.Debug("profile already exists", zap.String("user_id", in.UserID))
			return c.JSON(profile)
		}
		return c.Status(fiber.StatusCreated).JSON(profile)
	}
}

func currentProfile(membership *services.MembershipService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := membership.GetProfileView(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(view)
	}
}

func updateProfile(membership *services.MembershipService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var upd services.ProfileUpdate
		if err := c.BodyParser(&upd); err != nil {
			return badRequest("invalid request body")
		}
		profile, err := membership.UpdateProfile(c.UserContext(), middleware.UserID(c), upd)
		if err != nil {
			return err
		}
		return c.JSON(profile)
	}
}

func myReferrals(membership *services.MembershipService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		edges, err := membership.ListReferrals(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"referrals": edges, "count": len(edges)})
	}
}

func publicProfile(membership *services.MembershipService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := membership.GetProfileView(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		// contact details stay private
		profile := *view.Profile
		profile.Email = ""
		view.Profile = &profile
		return c.JSON(view)
	}
}

func registerSupporter(membership *services.MembershipService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in services.SupporterSignup
		if err := c.BodyParser(&in); err != nil {
			return badRequest("invalid request body")
		}
		if in.ReferralCode == "" {
			in.ReferralCode = c.Query("ref")
		}
		supporter, err := membership.RegisterSupporter(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":       supporter.ID,
			"name":     supporter.Name,
			"referred": supporter.ReferredBy != nil,
		})
	}
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}
