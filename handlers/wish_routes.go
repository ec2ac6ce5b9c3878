package handlers

import (
	"slices"

	"community-platform/middleware"
	"community-platform/models"
	"community-platform/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWishRoutes(app *fiber.App, svc *Services) {
	app.Get("/wishes", listWishes(svc.Wishes))

	user := middleware.RequireUser()
	app.Post("/wishes", user, createWish(svc.Wishes))
	app.Post("/wishes/:id/cancel", user, cancelWish(svc.Wishes, svc.Membership))
}

func listWishes(wishes *services.WishService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := wishes.ListWishes(c.UserContext(), models.WishStatus(c.Query("status")))
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}

func createWish(wishes *services.WishService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in services.WishInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest("invalid request body")
		}
		wish, err := wishes.CreateWish(c.UserContext(), middleware.UserID(c), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(wish)
	}
}

func cancelWish(wishes *services.WishService, membership *services.MembershipService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		isAdmin := slices.Contains(middleware.UserRoles(c), middleware.RoleAdmin)
		if !isAdmin {
			var err error
			if isAdmin, err = membership.IsAdmin(c.UserContext(), userID); err != nil {
				return err
			}
		}
		wish, err := wishes.CancelWish(c.UserContext(), c.Params("id"), userID, isAdmin)
		if err != nil {
			return err
		}
		return c.JSON(wish)
	}
}
