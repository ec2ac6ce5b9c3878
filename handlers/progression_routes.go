package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"community-platform/middleware"
	"community-platform/models"
	"community-platform/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var (
	streamPollInterval = 2 * time.Second
	streamHeartbeat    = 15 * time.Second
)

func SetupProgressionRoutes(ctx context.Context, app *fiber.App, svc *Services, log *zap.Logger) {
	app.Get("/leaderboard", leaderboard(svc.Leaderboard))
	app.Get("/badges", listBadges(svc.Badges))

	user := middleware.RequireUser()
	app.Get("/me/badges", user, myBadges(svc.Badges))
	app.Get("/me/activities", user, myActivities(svc.Ledger))
	app.Get("/me/activities/stream", user, streamActivities(ctx, svc.Ledger, log))
}

func leaderboard(board *services.LeaderboardService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := board.Top(c.UserContext(), queryInt(c, "limit", 10), middleware.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(result)
	}
}

func listBadges(badges *services.BadgeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := badges.ListBadges(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}

func myBadges(badges *services.BadgeService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		list, err := badges.ListUserBadges(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}

func myActivities(ledger *services.LedgerService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := queryInt(c, "page", 1)
		size := queryInt(c, "size", 20)
		activities, total, err := ledger.ListActivities(c.UserContext(), middleware.UserID(c), page, size)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"activities":  activities,
			"page":        page,
			"size":        size,
			"total_items": total,
		})
	}
}

// streamActivities pushes new activities to the caller as server-sent events until the
// client goes away or base is cancelled on shutdown.
func streamActivities(base context.Context, ledger *services.LedgerService, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		// the stream outlives the handler and the request context
		ctx, cancel := context.WithCancel(base)
		cursor := services.ActivityCursor{CreatedAt: time.Now()}

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer cancel()

			poll := time.NewTicker(streamPollInterval)
			defer poll.Stop()
			lastWrite := time.Now()

			w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for {
				select {
				case <-ctx.Done():
					log.Debug("activity stream stopped", zap.String("user_id", userID))
					return
				case <-poll.C:
				}

				activities, err := ledger.ActivitiesAfter(ctx, userID, cursor)
				if err != nil {
					log.Warn("activity stream query failed", zap.String("user_id", userID), zap.Error(err))
					continue
				}
				if len(activities) > 0 {
					last := activities[len(activities)-1]
					cursor = services.ActivityCursor{CreatedAt: last.CreatedAt, ID: last.ID}
					if err := writeActivityEvents(w, activities); err != nil {
						return
					}
				} else if time.Since(lastWrite) >= streamHeartbeat {
					w.WriteString(": ping\n\n")
				} else {
					continue
				}

				// a failed flush means the client went away
				if err := w.Flush(); err != nil {
					log.Debug("activity stream closed", zap.String("user_id", userID))
					return
				}
				lastWrite = time.Now()
			}
		})
		return nil
	}
}

func writeActivityEvents(w io.Writer, activities []models.Activity) error {
	for _, a := range activities {
		payload, err := json.Marshal(a)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "id: %s\nevent: activity\ndata: %s\n\n", a.ID, payload); err != nil {
			return err
		}
	}
	return nil
}
