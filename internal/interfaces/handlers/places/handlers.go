package places

import (
	"net/url"

	"fit-atlas/internal/application/geo"
	"fit-atlas/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Handlers serves the place table.
type Handlers struct {
	Resolver *geo.Resolver
}

// List GET /api/v1/places
func (h *Handlers) List(c *fiber.Ctx) error {
	places := h.Resolver.Places()
	return response.Success(c, "Places", places, fiber.Map{"count": len(places)})
}

// Resolve GET /api/v1/places/:name
func (h *Handlers) Resolve(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return response.BadRequest(c, "Place name is not valid")
	}
	p, ok := h.Resolver.Lookup(name)
	if !ok {
		return response.NotFound(c, "Unknown place", fiber.Map{"name": name, "prefixes": []string{}})
	}
	return response.Success(c, "Place resolved", p, nil)
}
