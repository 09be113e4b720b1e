package bootstrap

import (
	"context"

	"fit-atlas/internal/config"
	"fit-atlas/internal/interfaces/router"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// New creates the Fiber app for serverless deployment (the api handler imports
// this package, not internal). The catalogue is loaded once at cold start; a
// failed load leaves /api/v1/query answering 503 until an operator refresh.
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	srv, err := router.CreateApp(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := srv.Refresher.Refresh(context.Background()); err != nil {
		log.Error().Err(err).Msg("Initial catalogue load failed")
	}
	return srv.App, nil
}
