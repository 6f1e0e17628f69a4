package automation

import (
	"errors"
	"strconv"

	"go-helpdesk/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AutomationController struct {
	service RuleService
}

func NewAutomationController(service RuleService) *AutomationController {
	return &AutomationController{
		service: service,
	}
}

// CreateRule godoc
func (c *AutomationController) CreateRule(ctx *fiber.Ctx) error {
	var rule AutomationRule
	if err := ctx.BodyParser(&rule); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	rule.IsActive = true

	if claims, ok := ctx.Locals(utils.UserClaimsKey).(*utils.UserClaims); ok {
		if creatorID, err := primitive.ObjectIDFromHex(claims.UserID); err == nil {
			rule.CreatedByID = creatorID
		}
	}

	if err := c.service.CreateRule(ctx.Context(), &rule); err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": vErr.Error()})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusCreated).JSON(rule)
}

// GetRule godoc
func (c *AutomationController) GetRule(ctx *fiber.Ctx) error {
	rule, err := c.service.GetRule(ctx.Context(), ctx.Params("id"))
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Rule not found"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(rule)
}

// ListRules godoc
func (c *AutomationController) ListRules(ctx *fiber.Ctx) error {
	page, _ := strconv.ParseInt(ctx.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(ctx.Query("limit", "50"), 10, 64)

	rules, total, err := c.service.ListRules(ctx.Context(), page, limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{
		"data":  rules,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// UpdateRule godoc
func (c *AutomationController) UpdateRule(ctx *fiber.Ctx) error {
	var rule AutomationRule
	if err := ctx.BodyParser(&rule); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	err := c.service.UpdateRule(ctx.Context(), ctx.Params("id"), &rule)
	switch {
	case errors.Is(err, ErrRuleNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Rule not found"})
	case err != nil:
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": vErr.Error()})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"status": "success"})
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

// SetActive godoc
func (c *AutomationController) SetActive(ctx *fiber.Ctx) error {
	var req setActiveRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := c.service.SetRuleActive(ctx.Context(), ctx.Params("id"), req.Active); err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Rule not found"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"status": "success"})
}

// DeleteRule godoc
func (c *AutomationController) DeleteRule(ctx *fiber.Ctx) error {
	if err := c.service.DeleteRule(ctx.Context(), ctx.Params("id")); err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Rule not found"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"status": "success"})
}

// History godoc
func (c *AutomationController) History(ctx *fiber.Ctx) error {
	page, _ := strconv.ParseInt(ctx.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(ctx.Query("limit", "50"), 10, 64)

	records, total, err := c.service.History(ctx.Context(), ctx.Query("rule_id"), page, limit)
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid rule ID"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{
		"data":  records,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// Stats godoc
func (c *AutomationController) Stats(ctx *fiber.Ctx) error {
	limit, _ := strconv.ParseInt(ctx.Query("limit", "20"), 10, 64)

	stats, err := c.service.Stats(ctx.Context(), limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"data": stats})
}

// ExportHistory godoc
func (c *AutomationController) ExportHistory(ctx *fiber.Ctx) error {
	data, filename, err := c.service.ExportHistory(ctx.Context(), ctx.Query("rule_id"))
	if err != nil {
		if errors.Is(err, ErrRuleNotFound) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid rule ID"})
		}
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	ctx.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Set("Content-Disposition", "attachment; filename="+filename)
	return ctx.Send(data)
}
