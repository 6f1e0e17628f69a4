package automation

import (
	"testing"

	"go-helpdesk/pkg/condition"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func validRule() *AutomationRule {
	return &AutomationRule{
		Name:    "escalate urgent",
		Trigger: TriggerTicketCreated,
		Conditions: []condition.Condition{
			{Field: "priority", Operator: condition.OperatorEquals, Value: "urgent"},
		},
		Actions: []RuleAction{{Kind: ActionEscalate}},
	}
}

func TestRuleValidate(t *testing.T) {
	require.NoError(t, validRule().Validate())

	tests := []struct {
		name   string
		mutate func(r *AutomationRule)
		field  string
	}{
		{
			"missing name",
			func(r *AutomationRule) { r.Name = "" },
			"name",
		},
		{
			"unknown trigger",
			func(r *AutomationRule) { r.Trigger = "TICKET_EXPLODED" },
			"trigger",
		},
		{
			"negative priority",
			func(r *AutomationRule) { r.Priority = -1 },
			"priority",
		},
		{
			"unknown operator",
			func(r *AutomationRule) { r.Conditions[0].Operator = "MATCHES_REGEX" },
			"conditions[0].operator",
		},
		{
			"condition without field",
			func(r *AutomationRule) { r.Conditions[0].Field = "" },
			"conditions[0].field",
		},
		{
			"no actions",
			func(r *AutomationRule) { r.Actions = nil },
			"actions",
		},
		{
			"unknown action kind",
			func(r *AutomationRule) { r.Actions = []RuleAction{{Kind: "DELETE_TICKET"}} },
			"actions[0].kind",
		},
		{
			"assign without agent id",
			func(r *AutomationRule) { r.Actions = []RuleAction{{Kind: ActionAssignAgent}} },
			"actions[0].params.agent_id",
		},
		{
			"set priority without value",
			func(r *AutomationRule) { r.Actions = []RuleAction{{Kind: ActionSetPriority}} },
			"actions[0].params.priority",
		},
		{
			"notification with bad recipient",
			func(r *AutomationRule) {
				r.Actions = []RuleAction{{Kind: ActionSendNotification, Params: map[string]interface{}{
					"recipient": "everyone",
					"title":     "hi",
				}}}
			},
			"actions[0].params.recipient",
		},
		{
			"role recipient without role",
			func(r *AutomationRule) {
				r.Actions = []RuleAction{{Kind: ActionSendNotification, Params: map[string]interface{}{
					"recipient": "role",
					"title":     "hi",
				}}}
			},
			"actions[0].params.role",
		},
		{
			"notification without title",
			func(r *AutomationRule) {
				r.Actions = []RuleAction{{Kind: ActionSendNotification, Params: map[string]interface{}{
					"recipient": "customer",
				}}}
			},
			"actions[0].params.title",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rule := validRule()
			tc.mutate(rule)

			err := rule.Validate()
			require.Error(t, err)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestRuleValidateAcceptsAllKnownActionKinds(t *testing.T) {
	agentID := primitive.NewObjectID().Hex()
	rule := validRule()
	rule.Actions = []RuleAction{
		{Kind: ActionAssignAgent, Params: map[string]interface{}{"agent_id": agentID}},
		{Kind: ActionSetPriority, Params: map[string]interface{}{"priority": "high"}},
		{Kind: ActionSetStatus, Params: map[string]interface{}{"status": "in_progress"}},
		{Kind: ActionAddTag, Params: map[string]interface{}{"tag": "vip"}},
		{Kind: ActionSendNotification, Params: map[string]interface{}{"recipient": "customer", "title": "hello"}},
		{Kind: ActionEscalate},
	}
	assert.NoError(t, rule.Validate())
}
