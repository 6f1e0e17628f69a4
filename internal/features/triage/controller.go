package triage

import (
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TriageController struct {
	service QueueService
}

func NewTriageController(service QueueService) *TriageController {
	return &TriageController{
		service: service,
	}
}

// Queue godoc
func (c *TriageController) Queue(ctx *fiber.Ctx) error {
	filter := bson.M{}
	if assignee := ctx.Query("assigned_to"); assignee != "" {
		if oid, err := primitive.ObjectIDFromHex(assignee); err == nil {
			filter["assigned_to"] = oid
		}
	}

	view, err := c.service.BuildQueue(ctx.Context(), filter)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(view)
}

// Next godoc
func (c *TriageController) Next(ctx *fiber.Ctx) error {
	next, err := c.service.Next(ctx.Context(), ctx.Query("exclude"))
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if next == nil {
		return ctx.Status(fiber.StatusNoContent).Send(nil)
	}
	return ctx.JSON(next)
}
