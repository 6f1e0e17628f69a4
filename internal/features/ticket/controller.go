package ticket

import (
	"errors"
	"strconv"
	"time"

	"go-helpdesk/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TicketController struct {
	service TicketService
}

func NewTicketController(service TicketService) *TicketController {
	return &TicketController{
		service: service,
	}
}

type createTicketRequest struct {
	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	Priority    TicketPriority `json:"priority"`
	CustomerID  string         `json:"customer_id"`
	SLADeadline *time.Time     `json:"sla_deadline"`
	Tags        []string       `json:"tags"`
}

// Create godoc
func (c *TicketController) Create(ctx *fiber.Ctx) error {
	var req createTicketRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Subject == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Subject is required"})
	}
	customerID, err := primitive.ObjectIDFromHex(req.CustomerID)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid customer ID"})
	}
	if req.Priority != "" && !KnownPriority(req.Priority) {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown priority"})
	}

	t := &Ticket{
		Subject:     req.Subject,
		Description: req.Description,
		Priority:    req.Priority,
		CustomerID:  customerID,
		SLADeadline: req.SLADeadline,
		Tags:        req.Tags,
	}
	if err := c.service.Create(ctx.Context(), t); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(t)
}

// Get godoc
func (c *TicketController) Get(ctx *fiber.Ctx) error {
	t, err := c.service.Get(ctx.Context(), ctx.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Ticket not found"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(t)
}

// List godoc
func (c *TicketController) List(ctx *fiber.Ctx) error {
	page, _ := strconv.ParseInt(ctx.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(ctx.Query("limit", "50"), 10, 64)

	filter := bson.M{}
	if status := ctx.Query("status"); status != "" {
		filter["status"] = TicketStatus(status)
	}
	if assignee := ctx.Query("assigned_to"); assignee != "" {
		if oid, err := primitive.ObjectIDFromHex(assignee); err == nil {
			filter["assigned_to"] = oid
		}
	}

	tickets, total, err := c.service.List(ctx.Context(), filter, page, limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{
		"data":  tickets,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

type updateStatusRequest struct {
	Status TicketStatus `json:"status"`
}

// UpdateStatus godoc
func (c *TicketController) UpdateStatus(ctx *fiber.Ctx) error {
	var req updateStatusRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	err := c.service.UpdateStatus(ctx.Context(), ctx.Params("id"), req.Status)
	switch {
	case errors.Is(err, ErrNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Ticket not found"})
	case errors.Is(err, ErrInvalidTransition):
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Invalid status transition"})
	case errors.Is(err, ErrVersionConflict):
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Ticket was modified concurrently"})
	case err != nil:
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"status": "success"})
}

type assignRequest struct {
	AgentID string `json:"agent_id"`
}

// Assign godoc
func (c *TicketController) Assign(ctx *fiber.Ctx) error {
	var req assignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := c.service.Assign(ctx.Context(), ctx.Params("id"), req.AgentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Ticket not found"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"status": "success"})
}

type addMessageRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal"`
}

// AddMessage godoc
func (c *TicketController) AddMessage(ctx *fiber.Ctx) error {
	var req addMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Body == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message body is required"})
	}

	claims, ok := ctx.Locals(utils.UserClaimsKey).(*utils.UserClaims)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing user claims"})
	}

	msg, err := c.service.AddMessage(ctx.Context(), ctx.Params("id"), claims.UserID, req.Body, req.Internal)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Ticket not found"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(msg)
}

// ListMessages godoc
func (c *TicketController) ListMessages(ctx *fiber.Ctx) error {
	limit, _ := strconv.ParseInt(ctx.Query("limit", "100"), 10, 64)

	messages, err := c.service.Messages(ctx.Context(), ctx.Params("id"), limit)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Ticket not found"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"data": messages})
}
