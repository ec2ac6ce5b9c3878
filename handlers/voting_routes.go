package handlers

import (
	"community-platform/middleware"
	"community-platform/models"
	"community-platform/services"

	"github.com/gofiber/fiber/v2"
)

func SetupVotingRoutes(app *fiber.App, svc *Services) {
	app.Get("/votes", listVotes(svc.Voting))
	app.Get("/votes/:id", getVote(svc.Voting))
	app.Post("/votes/:id/cast", middleware.RequireUser(), castVote(svc.Voting))
}

func listVotes(voting *services.VotingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		votes, err := voting.ListVotes(c.UserContext(), models.VoteStatus(c.Query("status")))
		if err != nil {
			return err
		}
		return c.JSON(votes)
	}
}

func getVote(voting *services.VotingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		vote, err := voting.GetVote(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		resp := fiber.Map{"vote": vote}
		if userID := middleware.UserID(c); userID != "" {
			voted, err := voting.HasVoted(c.UserContext(), userID, vote.ID)
			if err != nil {
				return err
			}
			resp["has_voted"] = voted
		}
		return c.JSON(resp)
	}
}

func castVote(voting *services.VotingService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := voting.CastVote(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	}
}
