package ticket

import (
	"go-helpdesk/internal/common/api"
	"go-helpdesk/internal/config"
	"go-helpdesk/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type TicketApi struct {
	controller *TicketController
	config     *config.Config
}

func NewTicketApi(controller *TicketController, config *config.Config) api.Route {
	return &TicketApi{
		controller: controller,
		config:     config,
	}
}

func (h *TicketApi) Setup(app *fiber.App) {
	group := app.Group("/api/tickets", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Post("/", h.controller.Create)
	group.Get("/", h.controller.List)
	group.Get("/:id", h.controller.Get)
	group.Patch("/:id/status", h.controller.UpdateStatus)
	group.Patch("/:id/assign", h.controller.Assign)
	group.Post("/:id/messages", h.controller.AddMessage)
	group.Get("/:id/messages", h.controller.ListMessages)
}
