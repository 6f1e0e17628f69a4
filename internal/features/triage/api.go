package triage

import (
	"go-helpdesk/internal/common/api"
	"go-helpdesk/internal/config"
	"go-helpdesk/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type TriageApi struct {
	controller *TriageController
	config     *config.Config
}

func NewTriageApi(controller *TriageController, config *config.Config) api.Route {
	return &TriageApi{
		controller: controller,
		config:     config,
	}
}

func (h *TriageApi) Setup(app *fiber.App) {
	group := app.Group("/api/triage",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.RequireRoles(h.config.SkipAuth, "admin", "agent"),
	)

	group.Get("/queue", h.controller.Queue)
	group.Get("/next", h.controller.Next)
}
