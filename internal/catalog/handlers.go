package catalog

import (
	"errors"
	"strconv"

	"backend-ollana/internal/shared/apierr"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the read-only catalog lookups used before a session starts.
func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/mountains/nearby", authMiddleware, func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return apierr.BadRequest("lat and lng required")
		}
		res, err := svc.NearestWithPaths(c.Context(), lat, lng)
		if err != nil {
			return apiError(err)
		}
		return c.JSON(res)
	})

	r.Get("/search", authMiddleware, func(c *fiber.Ctx) error {
		name := c.Query("mtn")
		if name == "" {
			return apierr.BadRequest("mtn required")
		}
		res, err := svc.Suggest(c.Context(), name)
		if err != nil {
			return apiError(err)
		}
		return c.JSON(fiber.Map{"mountains": res})
	})

	r.Get("/search/list", authMiddleware, func(c *fiber.Ctx) error {
		name := c.Query("mtn")
		if name == "" {
			return apierr.BadRequest("mtn required")
		}
		res, err := svc.Search(c.Context(), name)
		if err != nil {
			return apiError(err)
		}
		return c.JSON(fiber.Map{"mountains": res})
	})

	r.Get("/search/mountain/:id", authMiddleware, func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return apierr.BadRequest("invalid mountain id")
		}
		res, err := svc.MountainWithPaths(c.Context(), id)
		if err != nil {
			return apiError(err)
		}
		return c.JSON(res)
	})
}

func apiError(err error) error {
	switch {
	case errors.Is(err, ErrNoNearbyMountain):
		return apierr.New(fiber.StatusNotFound, "NO_NEARBY_MOUNTAIN", err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPathMismatch):
		return apierr.NotFound(err.Error())
	default:
		return apierr.Internal(err)
	}
}
