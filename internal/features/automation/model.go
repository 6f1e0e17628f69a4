package automation

import (
	"fmt"
	"time"

	"go-helpdesk/pkg/condition"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TriggerType string

const (
	TriggerTicketCreated     TriggerType = "TICKET_CREATED"
	TriggerStatusChanged     TriggerType = "STATUS_CHANGED"
	TriggerMessageReceived   TriggerType = "MESSAGE_RECEIVED"
	TriggerSLAWarning        TriggerType = "SLA_WARNING"
	TriggerSLABreach         TriggerType = "SLA_BREACH"
	TriggerUnassignedTimeout TriggerType = "UNASSIGNED_TIMEOUT"
)

func KnownTrigger(t TriggerType) bool {
	switch t {
	case TriggerTicketCreated, TriggerStatusChanged, TriggerMessageReceived,
		TriggerSLAWarning, TriggerSLABreach, TriggerUnassignedTimeout:
		return true
	}
	return false
}

// ActionKind is the closed set of things a rule can do. Adding a kind means
// adding a case to the executor switch and to validateAction.
type ActionKind string

const (
	ActionAssignAgent      ActionKind = "ASSIGN_AGENT"
	ActionSetPriority      ActionKind = "SET_PRIORITY"
	ActionSetStatus        ActionKind = "SET_STATUS"
	ActionAddTag           ActionKind = "ADD_TAG"
	ActionSendNotification ActionKind = "SEND_NOTIFICATION"
	ActionEscalate         ActionKind = "ESCALATE"
)

func KnownActionKind(k ActionKind) bool {
	switch k {
	case ActionAssignAgent, ActionSetPriority, ActionSetStatus, ActionAddTag,
		ActionSendNotification, ActionEscalate:
		return true
	}
	return false
}

// Recipient selectors for SEND_NOTIFICATION.
const (
	RecipientAssignedAgent = "assigned_agent"
	RecipientCustomer      = "customer"
	RecipientRole          = "role"
)

type RuleAction struct {
	Kind   ActionKind             `json:"kind" bson:"kind"`
	Params map[string]interface{} `json:"params,omitempty" bson:"params,omitempty"`
}

// stringParam returns the named param rendered as a string, empty when
// absent.
func (a RuleAction) stringParam(key string) string {
	v, ok := a.Params[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// AutomationRule is a business rule: when `trigger` fires and every
// condition matches the event snapshot, the actions run in list order.
// Lower priority runs first.
type AutomationRule struct {
	ID          primitive.ObjectID    `json:"id" bson:"_id,omitempty"`
	Name        string                `json:"name" bson:"name"`
	Description string                `json:"description,omitempty" bson:"description,omitempty"`
	Trigger     TriggerType           `json:"trigger" bson:"trigger"`
	Conditions  []condition.Condition `json:"conditions" bson:"conditions"`
	Actions     []RuleAction          `json:"actions" bson:"actions"`
	Priority    int                   `json:"priority" bson:"priority"`
	IsActive    bool                  `json:"is_active" bson:"is_active"`
	CreatedByID primitive.ObjectID    `json:"created_by_id,omitempty" bson:"created_by_id,omitempty"`
	CreatedAt   time.Time             `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at" bson:"updated_at"`
}

// ValidationError rejects a rule at save time; a rule that validates never
// reaches the executor with an unknown trigger, operator or action kind.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid rule: %s: %s", e.Field, e.Reason)
}

// Validate checks the rule against the closed trigger/operator/action sets
// and the kind-specific required params.
func (r *AutomationRule) Validate() error {
	if r.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if !KnownTrigger(r.Trigger) {
		return &ValidationError{Field: "trigger", Reason: fmt.Sprintf("unknown trigger %q", r.Trigger)}
	}
	if r.Priority < 0 {
		return &ValidationError{Field: "priority", Reason: "must not be negative"}
	}
	for i, c := range r.Conditions {
		if c.Field == "" {
			return &ValidationError{Field: fmt.Sprintf("conditions[%d].field", i), Reason: "required"}
		}
		if !condition.KnownOperator(c.Operator) {
			return &ValidationError{
				Field:  fmt.Sprintf("conditions[%d].operator", i),
				Reason: fmt.Sprintf("unknown operator %q", c.Operator),
			}
		}
	}
	if len(r.Actions) == 0 {
		return &ValidationError{Field: "actions", Reason: "at least one action required"}
	}
	for i, a := range r.Actions {
		if err := validateAction(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAction(i int, a RuleAction) error {
	field := func(key string) string { return fmt.Sprintf("actions[%d].params.%s", i, key) }

	switch a.Kind {
	case ActionAssignAgent:
		if _, err := primitive.ObjectIDFromHex(a.stringParam("agent_id")); err != nil {
			return &ValidationError{Field: field("agent_id"), Reason: "must be a valid user id"}
		}
	case ActionSetPriority:
		if a.stringParam("priority") == "" {
			return &ValidationError{Field: field("priority"), Reason: "required"}
		}
	case ActionSetStatus:
		if a.stringParam("status") == "" {
			return &ValidationError{Field: field("status"), Reason: "required"}
		}
	case ActionAddTag:
		if a.stringParam("tag") == "" {
			return &ValidationError{Field: field("tag"), Reason: "required"}
		}
	case ActionSendNotification:
		switch a.stringParam("recipient") {
		case RecipientAssignedAgent, RecipientCustomer:
		case RecipientRole:
			if a.stringParam("role") == "" {
				return &ValidationError{Field: field("role"), Reason: "required for role recipient"}
			}
		default:
			return &ValidationError{Field: field("recipient"), Reason: "must be assigned_agent, customer or role"}
		}
		if a.stringParam("title") == "" {
			return &ValidationError{Field: field("title"), Reason: "required"}
		}
	case ActionEscalate:
		// no params
	default:
		return &ValidationError{
			Field:  fmt.Sprintf("actions[%d].kind", i),
			Reason: fmt.Sprintf("unknown action kind %q", a.Kind),
		}
	}
	return nil
}

// Event is one occurrence of a trigger for one ticket. The ID makes
// redelivery detectable: execution records are keyed by (rule, event).
type Event struct {
	ID         string                 `json:"id" bson:"id"`
	Trigger    TriggerType            `json:"trigger" bson:"trigger"`
	TicketID   primitive.ObjectID     `json:"ticket_id" bson:"ticket_id"`
	Payload    map[string]interface{} `json:"payload,omitempty" bson:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at" bson:"occurred_at"`
}

type Outcome string

const (
	// OutcomePending marks the idempotency claim written before the
	// actions run; Finalize replaces it exactly once.
	OutcomePending Outcome = "PENDING"
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomePartial Outcome = "PARTIAL"
	OutcomeFailed  Outcome = "FAILED"
)

type ActionResult struct {
	Kind    ActionKind `json:"kind" bson:"kind"`
	Success bool       `json:"success" bson:"success"`
	Error   string     `json:"error,omitempty" bson:"error,omitempty"`
}

// ExecutionRecord is the audit entry of one rule's run for one event.
// Exactly one exists per (rule_id, event_id); once finalized it is never
// written again.
type ExecutionRecord struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RuleID      primitive.ObjectID `json:"rule_id" bson:"rule_id"`
	TicketID    primitive.ObjectID `json:"ticket_id" bson:"ticket_id"`
	EventID     string             `json:"event_id" bson:"event_id"`
	Trigger     TriggerType        `json:"trigger" bson:"trigger"`
	Outcome     Outcome            `json:"outcome" bson:"outcome"`
	Actions     []ActionResult     `json:"actions" bson:"actions"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	FinalizedAt *time.Time         `json:"finalized_at,omitempty" bson:"finalized_at,omitempty"`
}

// OutcomeOf folds per-action results into the record outcome.
func OutcomeOf(results []ActionResult) Outcome {
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	switch {
	case failed == 0:
		return OutcomeSuccess
	case failed == len(results):
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}
