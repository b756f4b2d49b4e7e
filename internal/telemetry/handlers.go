package telemetry

import (
	"errors"
	"strconv"

	"backend-ollana/internal/messaging"
	"backend-ollana/internal/shared/apierr"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts dead-letter inspection and replay.
func RegisterRoutes(r fiber.Router, store *DeadLetterStore, replayer *Replayer, authMiddleware fiber.Handler) {
	r.Get("/dead-letters", authMiddleware, func(c *fiber.Ctx) error {
		pending := c.QueryBool("pending", false)
		limit := c.QueryInt("limit", 100)
		list, err := store.List(c.Context(), pending, limit)
		if err != nil {
			return apierr.Internal(err)
		}
		return c.JSON(fiber.Map{"deadLetters": list})
	})

	r.Post("/dead-letters/:id/replay", authMiddleware, func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return apierr.BadRequest("invalid dead letter id")
		}
		dl, err := replayer.Replay(c.Context(), id)
		if err != nil {
			return apiError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(dl)
	})
}

func apiError(err error) error {
	switch {
	case errors.Is(err, ErrDeadLetterNotFound):
		return apierr.NotFound(err.Error())
	case errors.Is(err, ErrAlreadyReplayed):
		return apierr.New(fiber.StatusConflict, "ALREADY_REPLAYED", err.Error())
	case messaging.IsOpen(err):
		return apierr.New(fiber.StatusServiceUnavailable, "BROKER_UNAVAILABLE", err.Error())
	default:
		return apierr.Internal(err)
	}
}
