package automation

import (
	"go-helpdesk/internal/common/api"
	"go-helpdesk/internal/config"
	"go-helpdesk/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AutomationApi struct {
	controller *AutomationController
	config     *config.Config
}

func NewAutomationApi(controller *AutomationController, config *config.Config) api.Route {
	return &AutomationApi{
		controller: controller,
		config:     config,
	}
}

func (h *AutomationApi) Setup(app *fiber.App) {
	group := app.Group("/api/automation",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.RequireRoles(h.config.SkipAuth, "admin", "agent"),
	)

	group.Post("/rules", h.controller.CreateRule)
	group.Get("/rules", h.controller.ListRules)
	group.Get("/rules/:id", h.controller.GetRule)
	group.Put("/rules/:id", h.controller.UpdateRule)
	group.Patch("/rules/:id/active", h.controller.SetActive)
	group.Delete("/rules/:id", h.controller.DeleteRule)

	group.Get("/executions", h.controller.History)
	group.Get("/executions/stats", h.controller.Stats)
	group.Get("/executions/export", h.controller.ExportHistory)
}
