package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type RuleService interface {
	CreateRule(ctx context.Context, rule *AutomationRule) error
	GetRule(ctx context.Context, id string) (*AutomationRule, error)
	ListRules(ctx context.Context, page, limit int64) ([]AutomationRule, int64, error)
	UpdateRule(ctx context.Context, id string, rule *AutomationRule) error
	SetRuleActive(ctx context.Context, id string, active bool) error
	DeleteRule(ctx context.Context, id string) error
	History(ctx context.Context, ruleID string, page, limit int64) ([]ExecutionRecord, int64, error)
	Stats(ctx context.Context, limit int64) ([]RuleStats, error)
	ExportHistory(ctx context.Context, ruleID string) ([]byte, string, error)
}

type RuleServiceImpl struct {
	rules      RuleRepository
	executions ExecutionRepository
	cache      *RuleCache
	logger     *zap.Logger
}

func NewRuleService(rules RuleRepository, executions ExecutionRepository, cache *RuleCache, logger *zap.Logger) RuleService {
	return &RuleServiceImpl{
		rules:      rules,
		executions: executions,
		cache:      cache,
		logger:     logger,
	}
}

func (s *RuleServiceImpl) CreateRule(ctx context.Context, rule *AutomationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return err
	}
	s.cache.Invalidate()
	s.logger.Info("automation rule created",
		zap.String("rule_id", rule.ID.Hex()),
		zap.String("name", rule.Name),
		zap.String("trigger", string(rule.Trigger)),
	)
	return nil
}

func (s *RuleServiceImpl) GetRule(ctx context.Context, id string) (*AutomationRule, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrRuleNotFound
	}
	return s.rules.FindByID(ctx, oid)
}

func (s *RuleServiceImpl) ListRules(ctx context.Context, page, limit int64) ([]AutomationRule, int64, error) {
	return s.rules.FindAll(ctx, page, limit)
}

func (s *RuleServiceImpl) UpdateRule(ctx context.Context, id string, rule *AutomationRule) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrRuleNotFound
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := s.rules.Update(ctx, oid, rule); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

func (s *RuleServiceImpl) SetRuleActive(ctx context.Context, id string, active bool) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrRuleNotFound
	}
	if err := s.rules.SetActive(ctx, oid, active); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

func (s *RuleServiceImpl) DeleteRule(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrRuleNotFound
	}
	if err := s.rules.Delete(ctx, oid); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

func (s *RuleServiceImpl) History(ctx context.Context, ruleID string, page, limit int64) ([]ExecutionRecord, int64, error) {
	var filter *primitive.ObjectID
	if ruleID != "" {
		oid, err := primitive.ObjectIDFromHex(ruleID)
		if err != nil {
			return nil, 0, ErrRuleNotFound
		}
		filter = &oid
	}
	return s.executions.History(ctx, filter, page, limit)
}

func (s *RuleServiceImpl) Stats(ctx context.Context, limit int64) ([]RuleStats, error) {
	return s.executions.Stats(ctx, limit)
}

// ExportHistory renders the execution history (optionally one rule's) as
// an xlsx workbook.
func (s *RuleServiceImpl) ExportHistory(ctx context.Context, ruleID string) ([]byte, string, error) {
	records, _, err := s.History(ctx, ruleID, 1, 200)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Executions"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, "", err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	headers := []string{"Rule ID", "Ticket ID", "Event ID", "Trigger", "Outcome", "Actions", "Executed At"}
	for i, col := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, record := range records {
		row := []interface{}{
			record.RuleID.Hex(),
			record.TicketID.Hex(),
			record.EventID,
			string(record.Trigger),
			string(record.Outcome),
			formatActionResults(record.Actions),
			record.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for colIdx, val := range row {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, val)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("executions_%s.xlsx", time.Now().Format("20060102_150405"))
	return buf.Bytes(), filename, nil
}

func formatActionResults(results []ActionResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Success {
			parts = append(parts, fmt.Sprintf("%s: ok", r.Kind))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", r.Kind, r.Error))
	}
	return strings.Join(parts, "; ")
}
