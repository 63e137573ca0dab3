// Package main provides the Flowgate API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/persistence"
	"github.com/dukex/flowgate/pkg/registry"
	"github.com/dukex/flowgate/pkg/services"
	"github.com/dukex/flowgate/pkg/web"
	"github.com/dukex/flowgate/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	machine     *workflow.Machine
	gate        *approval.Gate
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	machine *workflow.Machine,
	gate *approval.Gate,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		registry:    registry,
		machine:     machine,
		gate:        gate,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		services.NewGraphs(a.persistence),
		services.NewRuns(a.machine, a.gate, a.logger),
		services.NewApprovals(a.gate),
		a.validate,
		a.registry,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowgate API")
	})

	handlers.Routes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
