package catalogue

import (
	"errors"

	catsvc "fit-atlas/internal/application/catalogue"
	"fit-atlas/internal/middleware"
	"fit-atlas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Handlers exposes the refresher to operators.
type Handlers struct {
	Refresher *catsvc.Refresher
}

// Status GET /api/v1/catalogue/status
func (h *Handlers) Status(c *fiber.Ctx) error {
	return response.Success(c, "Catalogue status", h.Refresher.Status(), nil)
}

// Refresh POST /api/v1/catalogue/refresh (admin key required)
func (h *Handlers) Refresh(c *fiber.Ctx) error {
	stats, err := h.Refresher.Refresh(c.UserContext())
	switch {
	case err == nil:
		return response.Success(c, "Catalogue refreshed", stats, nil)
	case errors.Is(err, catsvc.ErrRefreshInProgress):
		return response.Error(c, err.Error(), fiber.StatusConflict, nil)
	case errors.Is(err, catsvc.ErrNoSource):
		return response.Unavailable(c, err.Error())
	case errors.Is(err, catsvc.ErrEmptyCatalogue):
		return response.Refused(c, err.Error(), stats)
	}
	log.Error().Err(err).Str("trace_id", middleware.GetTraceID(c)).Msg("Catalogue refresh request failed")
	return response.Error(c, "Catalogue source failed", fiber.StatusBadGateway, fiber.Map{"reason": err.Error()})
}
