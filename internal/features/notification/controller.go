package notification

import (
	"strconv"

	"go-helpdesk/pkg/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type NotificationController struct {
	repo   NotificationRepository
	hub    *Hub
	logger *zap.Logger
}

func NewNotificationController(repo NotificationRepository, hub *Hub, logger *zap.Logger) *NotificationController {
	return &NotificationController{
		repo:   repo,
		hub:    hub,
		logger: logger,
	}
}

func userIDFromLocals(locals interface{}) (primitive.ObjectID, bool) {
	claims, ok := locals.(*utils.UserClaims)
	if !ok {
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

// List godoc
func (c *NotificationController) List(ctx *fiber.Ctx) error {
	userID, ok := userIDFromLocals(ctx.Locals(utils.UserClaimsKey))
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing user claims"})
	}

	page, _ := strconv.ParseInt(ctx.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(ctx.Query("limit", "50"), 10, 64)

	notifications, total, err := c.repo.GetByUserID(ctx.Context(), userID, page, limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{
		"data":  notifications,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// UnreadCount godoc
func (c *NotificationController) UnreadCount(ctx *fiber.Ctx) error {
	userID, ok := userIDFromLocals(ctx.Locals(utils.UserClaimsKey))
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing user claims"})
	}

	count, err := c.repo.GetUnreadCount(ctx.Context(), userID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"count": count})
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

// MarkRead godoc
func (c *NotificationController) MarkRead(ctx *fiber.Ctx) error {
	userID, ok := userIDFromLocals(ctx.Locals(utils.UserClaimsKey))
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing user claims"})
	}

	var req markReadRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.IDs) == 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No notification IDs provided"})
	}

	ids := make([]primitive.ObjectID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid notification ID"})
		}
		ids = append(ids, id)
	}

	if err := c.repo.MarkAsRead(ctx.Context(), ids, userID); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"status": "success"})
}

// MarkAllRead godoc
func (c *NotificationController) MarkAllRead(ctx *fiber.Ctx) error {
	userID, ok := userIDFromLocals(ctx.Locals(utils.UserClaimsKey))
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing user claims"})
	}

	if err := c.repo.MarkAllAsRead(ctx.Context(), userID); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"status": "success"})
}

// HandleWebSocket registers the connection as a live session and blocks on
// the read loop until the client disconnects. Inbound frames are ignored;
// the socket is push-only.
func (c *NotificationController) HandleWebSocket(conn *websocket.Conn) {
	userID, ok := userIDFromLocals(conn.Locals(utils.UserClaimsKey))
	if !ok {
		conn.Close()
		return
	}

	session := c.hub.Register(userID, conn)
	defer c.hub.Unregister(session)

	c.logger.Info("websocket session opened",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID.Hex()),
	)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
