package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-helpdesk/internal/features/notification"
	"go-helpdesk/internal/features/ticket"
	"go-helpdesk/internal/features/user"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Notifier is the slice of the fan-out the executor needs; satisfied by
// notification.Fanout.
type Notifier interface {
	Enqueue(req notification.Request) error
}

// ActionError wraps a single action's failure. The error is recorded on
// the ActionResult; it never aborts the remaining actions of the rule.
type ActionError struct {
	Kind ActionKind
	Err  error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s failed: %v", e.Kind, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// ActionExecutor applies a matched rule's actions to a ticket in list
// order. Each action succeeds or fails independently; a version conflict
// on the ticket is retried once against a re-read before it counts as a
// failure.
type ActionExecutor struct {
	tickets  ticket.TicketRepository
	users    user.UserRepository
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger
}

func NewActionExecutor(
	tickets ticket.TicketRepository,
	users user.UserRepository,
	notifier Notifier,
	timeout time.Duration,
	logger *zap.Logger,
) *ActionExecutor {
	return &ActionExecutor{
		tickets:  tickets,
		users:    users,
		notifier: notifier,
		timeout:  timeout,
		logger:   logger,
	}
}

// Execute runs every action of the rule against the ticket and returns one
// result per action, plus the ticket as the actions left it so the caller
// can hand the current state to the next rule.
func (e *ActionExecutor) Execute(ctx context.Context, rule *AutomationRule, t *ticket.Ticket, snapshot map[string]interface{}) ([]ActionResult, *ticket.Ticket) {
	cur := t
	results := make([]ActionResult, 0, len(rule.Actions))

	for _, action := range rule.Actions {
		actx, cancel := context.WithTimeout(ctx, e.timeout)
		err := e.execute(actx, action, &cur, snapshot)
		cancel()

		result := ActionResult{Kind: action.Kind, Success: err == nil}
		if err != nil {
			result.Error = err.Error()
			e.logger.Warn("rule action failed",
				zap.String("rule_id", rule.ID.Hex()),
				zap.String("ticket_id", cur.ID.Hex()),
				zap.String("action", string(action.Kind)),
				zap.Error(err),
			)
		}
		results = append(results, result)
	}
	return results, cur
}

func (e *ActionExecutor) execute(ctx context.Context, action RuleAction, cur **ticket.Ticket, snapshot map[string]interface{}) error {
	var err error
	switch action.Kind {
	case ActionAssignAgent:
		err = e.assignAgent(ctx, action, cur)
	case ActionSetPriority:
		err = e.setPriority(ctx, action, cur)
	case ActionSetStatus:
		err = e.setStatus(ctx, action, cur)
	case ActionAddTag:
		err = e.addTag(ctx, action, cur)
	case ActionSendNotification:
		err = e.sendNotification(ctx, action, *cur, snapshot)
	case ActionEscalate:
		err = e.escalate(ctx, cur)
	default:
		err = fmt.Errorf("unknown action kind %q", action.Kind)
	}
	if err != nil {
		return &ActionError{Kind: action.Kind, Err: err}
	}
	return nil
}

// mutate runs the store write once, and once more against a re-read
// ticket when the first attempt lost a version race.
func (e *ActionExecutor) mutate(ctx context.Context, cur **ticket.Ticket, write func(t *ticket.Ticket) error) error {
	err := write(*cur)
	if !errors.Is(err, ticket.ErrVersionConflict) {
		return err
	}

	fresh, readErr := e.tickets.FindByID(ctx, (*cur).ID)
	if readErr != nil {
		return fmt.Errorf("re-read after version conflict: %w", readErr)
	}
	*cur = fresh
	return write(fresh)
}

func (e *ActionExecutor) assignAgent(ctx context.Context, action RuleAction, cur **ticket.Ticket) error {
	agentID, err := primitive.ObjectIDFromHex(action.stringParam("agent_id"))
	if err != nil {
		return fmt.Errorf("invalid agent id: %w", err)
	}

	agent, err := e.users.FindByID(ctx, agentID)
	if errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("agent %s does not exist", agentID.Hex())
	}
	if err != nil {
		return err
	}
	if !agent.ActiveStaff() {
		return fmt.Errorf("agent %s is not an active staff account", agentID.Hex())
	}

	err = e.mutate(ctx, cur, func(t *ticket.Ticket) error {
		return e.tickets.UpdateFields(ctx, t.ID, t.Version, bson.M{"assigned_to": agentID})
	})
	if err != nil {
		return err
	}
	(*cur).AssignedTo = &agentID
	(*cur).Version++
	return nil
}

func (e *ActionExecutor) setPriority(ctx context.Context, action RuleAction, cur **ticket.Ticket) error {
	priority := ticket.TicketPriority(action.stringParam("priority"))
	if !ticket.KnownPriority(priority) {
		return fmt.Errorf("unknown priority %q", priority)
	}

	err := e.mutate(ctx, cur, func(t *ticket.Ticket) error {
		return e.tickets.UpdateFields(ctx, t.ID, t.Version, bson.M{"priority": priority})
	})
	if err != nil {
		return err
	}
	(*cur).Priority = priority
	(*cur).Version++
	return nil
}

func (e *ActionExecutor) setStatus(ctx context.Context, action RuleAction, cur **ticket.Ticket) error {
	status := ticket.TicketStatus(action.stringParam("status"))
	if !ticket.KnownStatus(status) {
		return fmt.Errorf("unknown status %q", status)
	}

	err := e.mutate(ctx, cur, func(t *ticket.Ticket) error {
		return e.tickets.UpdateStatus(ctx, t.ID, t.Version, t.Status, status)
	})
	if err != nil {
		return err
	}
	(*cur).Status = status
	(*cur).Version++
	return nil
}

func (e *ActionExecutor) addTag(ctx context.Context, action RuleAction, cur **ticket.Ticket) error {
	tag := action.stringParam("tag")

	err := e.mutate(ctx, cur, func(t *ticket.Ticket) error {
		return e.tickets.AddTag(ctx, t.ID, t.Version, tag)
	})
	if err != nil {
		return err
	}
	if !contains((*cur).Tags, tag) {
		(*cur).Tags = append((*cur).Tags, tag)
	}
	(*cur).Version++
	return nil
}

// escalate moves the ticket to escalated/urgent in a single store write.
func (e *ActionExecutor) escalate(ctx context.Context, cur **ticket.Ticket) error {
	err := e.mutate(ctx, cur, func(t *ticket.Ticket) error {
		if !ticket.ValidTransition(t.Status, ticket.TicketStatusEscalated) {
			return ticket.ErrInvalidTransition
		}
		return e.tickets.UpdateFields(ctx, t.ID, t.Version, bson.M{
			"status":   ticket.TicketStatusEscalated,
			"priority": ticket.TicketPriorityUrgent,
		})
	})
	if err != nil {
		return err
	}
	(*cur).Status = ticket.TicketStatusEscalated
	(*cur).Priority = ticket.TicketPriorityUrgent
	(*cur).Version++
	return nil
}

func (e *ActionExecutor) sendNotification(ctx context.Context, action RuleAction, t *ticket.Ticket, snapshot map[string]interface{}) error {
	recipients, err := e.resolveRecipients(ctx, action, t)
	if err != nil {
		return err
	}

	title := renderTemplate(action.stringParam("title"), snapshot)
	body := renderTemplate(action.stringParam("body"), snapshot)

	for _, recipientID := range recipients {
		req := notification.Request{
			RecipientID: recipientID,
			TicketID:    t.ID,
			Type:        notification.NotificationTypeRule,
			Title:       title,
			Body:        body,
		}
		// delivery problems are diagnostics, not action failures
		if err := e.notifier.Enqueue(req); err != nil {
			e.logger.Warn("notification enqueue failed",
				zap.String("ticket_id", t.ID.Hex()),
				zap.String("recipient_id", recipientID.Hex()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (e *ActionExecutor) resolveRecipients(ctx context.Context, action RuleAction, t *ticket.Ticket) ([]primitive.ObjectID, error) {
	switch action.stringParam("recipient") {
	case RecipientAssignedAgent:
		if t.AssignedTo == nil {
			return nil, errors.New("ticket has no assigned agent")
		}
		return []primitive.ObjectID{*t.AssignedTo}, nil

	case RecipientCustomer:
		return []primitive.ObjectID{t.CustomerID}, nil

	case RecipientRole:
		role := user.Role(action.stringParam("role"))
		accounts, err := e.users.FindActiveByRole(ctx, role)
		if err != nil {
			return nil, err
		}
		if len(accounts) == 0 {
			return nil, fmt.Errorf("no active users with role %q", role)
		}
		ids := make([]primitive.ObjectID, 0, len(accounts))
		for _, account := range accounts {
			ids = append(ids, account.ID)
		}
		return ids, nil

	default:
		return nil, fmt.Errorf("unknown recipient %q", action.stringParam("recipient"))
	}
}

// renderTemplate substitutes {{key}} placeholders with top-level snapshot
// values.
func renderTemplate(text string, snapshot map[string]interface{}) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	for key, value := range snapshot {
		text = strings.ReplaceAll(text, "{{"+key+"}}", fmt.Sprintf("%v", value))
	}
	return text
}

func contains(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
