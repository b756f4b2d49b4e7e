package tracking

import (
	"errors"
	"strconv"

	"backend-ollana/internal/catalog"
	"backend-ollana/internal/history"
	"backend-ollana/internal/shared/apierr"
	"backend-ollana/internal/users"
	"backend-ollana/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the session routes. authMiddleware must set the
// "user_id" local.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/me/mountain/:mountainId/path/:pathId", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		mountainID, errM := strconv.ParseInt(c.Params("mountainId"), 10, 64)
		pathID, errP := strconv.ParseInt(c.Params("pathId"), 10, 64)
		if errM != nil || errP != nil {
			return apierr.BadRequest("invalid mountain or path id")
		}
		rec, err := svc.LatestRecord(c.Context(), userID, mountainID, pathID)
		if err != nil {
			return apiError(err)
		}
		return c.JSON(rec)
	})

	r.Get("/friends", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		mountainID, pathID, err := mountainPathQuery(c)
		if err != nil {
			return err
		}
		friends, err := svc.Friends(c.Context(), userID, mountainID, pathID, c.Query("nickname"))
		if err != nil {
			return apiError(err)
		}
		return c.JSON(fiber.Map{"friends": friends})
	})

	r.Get("/options", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		mountainID, pathID, err := mountainPathQuery(c)
		if err != nil {
			return err
		}
		records, err := svc.OpponentRecords(c.Context(), userID, mountainID, pathID, c.Query("opponentId"))
		if err != nil {
			return apiError(err)
		}
		return c.JSON(fiber.Map{"records": records})
	})

	r.Get("/status", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		g, active, err := svc.Status(c.Context(), userID)
		if err != nil {
			return apiError(err)
		}
		if !active {
			return c.JSON(fiber.Map{"isTracking": false})
		}
		return c.JSON(fiber.Map{"isTracking": true, "session": g})
	})

	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		var req StartRequest
		if err := c.BodyParser(&req); err != nil {
			return apierr.BadRequest(err.Error())
		}
		if err := validation.Struct(req); err != nil {
			return apierr.New(fiber.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		}
		res, err := svc.Start(c.Context(), userID, req)
		if err != nil {
			return apiError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	r.Post("/finish", authMiddleware, func(c *fiber.Ctx) error {
		userID, err := currentUser(c)
		if err != nil {
			return err
		}
		var req FinishRequest
		if err := c.BodyParser(&req); err != nil {
			return apierr.BadRequest(err.Error())
		}
		if err := validation.Struct(req); err != nil {
			return apierr.New(fiber.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		}
		res, err := svc.Finish(c.Context(), userID, req)
		if err != nil {
			return apiError(err)
		}
		return c.JSON(res)
	})
}

func currentUser(c *fiber.Ctx) (string, error) {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing user")
	}
	return userID, nil
}

func mountainPathQuery(c *fiber.Ctx) (int64, int64, error) {
	mountainID, errM := strconv.ParseInt(c.Query("mountainId"), 10, 64)
	pathID, errP := strconv.ParseInt(c.Query("pathId"), 10, 64)
	if errM != nil || errP != nil {
		return 0, 0, apierr.BadRequest("mountainId and pathId required")
	}
	return mountainID, pathID, nil
}

func apiError(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyTracking):
		return apierr.New(fiber.StatusConflict, "ALREADY_TRACKING", err.Error())
	case errors.Is(err, ErrInvalidTracking):
		return apierr.New(fiber.StatusBadRequest, "INVALID_TRACKING", err.Error())
	case errors.Is(err, ErrCannotSaveBeforeSummit):
		return apierr.New(fiber.StatusBadRequest, "CANNOT_SAVE_BEFORE_SUMMIT", err.Error())
	case errors.Is(err, ErrOpponentPrivate):
		return apierr.New(fiber.StatusForbidden, "OPPONENT_PRIVATE", err.Error())
	case errors.Is(err, catalog.ErrNoNearbyMountain):
		return apierr.New(fiber.StatusNotFound, "NO_NEARBY_MOUNTAIN", err.Error())
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, catalog.ErrPathMismatch),
		errors.Is(err, users.ErrNotFound), errors.Is(err, history.ErrNotFound),
		errors.Is(err, ErrRecordMismatch):
		return apierr.NotFound(err.Error())
	default:
		return apierr.Internal(err)
	}
}
