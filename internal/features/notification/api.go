package notification

import (
	"go-helpdesk/internal/common/api"
	"go-helpdesk/internal/config"
	"go-helpdesk/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type NotificationApi struct {
	controller *NotificationController
	config     *config.Config
}

func NewNotificationApi(controller *NotificationController, config *config.Config) api.Route {
	return &NotificationApi{
		controller: controller,
		config:     config,
	}
}

func (h *NotificationApi) Setup(app *fiber.App) {
	group := app.Group("/api/notifications", middleware.AuthMiddleware(h.config.SkipAuth))

	group.Get("/", h.controller.List)
	group.Get("/unread-count", h.controller.UnreadCount)
	group.Post("/read", h.controller.MarkRead)
	group.Post("/read-all", h.controller.MarkAllRead)

	app.Get("/api/ws/notifications",
		middleware.AuthMiddleware(h.config.SkipAuth),
		websocket.New(h.controller.HandleWebSocket),
	)
}
