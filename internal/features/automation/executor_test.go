package automation

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-helpdesk/internal/features/notification"
	"go-helpdesk/internal/features/ticket"
	"go-helpdesk/internal/features/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// fakeTicketStore is an in-memory TicketRepository with the same versioned
// CAS semantics as the mongo implementation. Setting conflicts rejects
// that many upcoming writes with ErrVersionConflict.
type fakeTicketStore struct {
	mu        sync.Mutex
	tickets   map[primitive.ObjectID]*ticket.Ticket
	conflicts int
	writes    int
}

func newFakeTicketStore(tickets ...*ticket.Ticket) *fakeTicketStore {
	s := &fakeTicketStore{tickets: make(map[primitive.ObjectID]*ticket.Ticket)}
	for _, t := range tickets {
		s.tickets[t.ID] = t
	}
	return s
}

func (s *fakeTicketStore) Create(_ context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = primitive.NewObjectID()
	s.tickets[t.ID] = t
	return nil
}

func (s *fakeTicketStore) FindByID(_ context.Context, id primitive.ObjectID) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *fakeTicketStore) FindAll(context.Context, bson.M, int64, int64) ([]ticket.Ticket, int64, error) {
	return nil, 0, nil
}

func (s *fakeTicketStore) cas(id primitive.ObjectID, version int64) (*ticket.Ticket, error) {
	t, ok := s.tickets[id]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	if s.conflicts > 0 {
		s.conflicts--
		return nil, ticket.ErrVersionConflict
	}
	if t.Version != version {
		return nil, ticket.ErrVersionConflict
	}
	return t, nil
}

func (s *fakeTicketStore) UpdateFields(_ context.Context, id primitive.ObjectID, version int64, set bson.M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.cas(id, version)
	if err != nil {
		return err
	}
	for key, value := range set {
		switch key {
		case "assigned_to":
			oid := value.(primitive.ObjectID)
			t.AssignedTo = &oid
		case "priority":
			t.Priority = value.(ticket.TicketPriority)
		case "status":
			t.Status = value.(ticket.TicketStatus)
		}
	}
	t.Version++
	s.writes++
	return nil
}

func (s *fakeTicketStore) UpdateStatus(_ context.Context, id primitive.ObjectID, version int64, from, to ticket.TicketStatus) error {
	if !ticket.ValidTransition(from, to) {
		return ticket.ErrInvalidTransition
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.cas(id, version)
	if err != nil {
		return err
	}
	t.Status = to
	t.Version++
	s.writes++
	return nil
}

func (s *fakeTicketStore) AddTag(_ context.Context, id primitive.ObjectID, version int64, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.cas(id, version)
	if err != nil {
		return err
	}
	if !contains(t.Tags, tag) {
		t.Tags = append(t.Tags, tag)
	}
	t.Version++
	s.writes++
	return nil
}

func (s *fakeTicketStore) FindOpenWithDeadline(context.Context) ([]ticket.Ticket, error) {
	return nil, nil
}

func (s *fakeTicketStore) FindUnassignedSince(context.Context, time.Time) ([]ticket.Ticket, error) {
	return nil, nil
}

func (s *fakeTicketStore) EnsureIndexes(context.Context) error { return nil }

type fakeUserRepo struct {
	users map[primitive.ObjectID]*user.User
}

func (r *fakeUserRepo) FindByID(_ context.Context, id primitive.ObjectID) (*user.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindActiveByRole(_ context.Context, role user.Role) ([]user.User, error) {
	var out []user.User
	for _, u := range r.users {
		if u.Role == role && u.Status == user.StatusActive {
			out = append(out, *u)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	requests []notification.Request
}

func (n *fakeNotifier) Enqueue(req notification.Request) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
	return nil
}

func openTicket() *ticket.Ticket {
	return &ticket.Ticket{
		ID:         primitive.NewObjectID(),
		Subject:    "Printer is on fire",
		Status:     ticket.TicketStatusOpen,
		Priority:   ticket.TicketPriorityMedium,
		CustomerID: primitive.NewObjectID(),
		CreatedAt:  time.Now().UTC(),
	}
}

func activeAgent() *user.User {
	return &user.User{
		ID:     primitive.NewObjectID(),
		Name:   "Sam Agent",
		Role:   user.RoleAgent,
		Status: user.StatusActive,
	}
}

func newTestExecutor(store *fakeTicketStore, users *fakeUserRepo, notifier *fakeNotifier) *ActionExecutor {
	if users == nil {
		users = &fakeUserRepo{users: map[primitive.ObjectID]*user.User{}}
	}
	if notifier == nil {
		notifier = &fakeNotifier{}
	}
	return NewActionExecutor(store, users, notifier, time.Second, zap.NewNop())
}

func TestExecutorContinuesAfterFailedAction(t *testing.T) {
	tk := openTicket()
	store := newFakeTicketStore(tk)
	executor := newTestExecutor(store, nil, nil)

	rule := &AutomationRule{
		ID: primitive.NewObjectID(),
		Actions: []RuleAction{
			{Kind: ActionAddTag, Params: map[string]interface{}{"tag": "vip"}},
			{Kind: ActionAssignAgent, Params: map[string]interface{}{"agent_id": primitive.NewObjectID().Hex()}},
			{Kind: ActionSetPriority, Params: map[string]interface{}{"priority": "high"}},
		},
	}

	results, final := executor.Execute(context.Background(), rule, tk, tk.Snapshot())

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success, "assigning a nonexistent agent must fail")
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].Success, "a failed action must not stop the rest of the rule")

	assert.Equal(t, OutcomePartial, OutcomeOf(results))
	assert.Equal(t, ticket.TicketPriorityHigh, final.Priority)
	assert.Equal(t, []string{"vip"}, final.Tags)
}

func TestExecutorAssignAgentRequiresActiveStaff(t *testing.T) {
	tk := openTicket()
	store := newFakeTicketStore(tk)

	inactive := activeAgent()
	inactive.Status = user.StatusInactive
	customer := &user.User{ID: primitive.NewObjectID(), Role: user.RoleCustomer, Status: user.StatusActive}
	agent := activeAgent()
	users := &fakeUserRepo{users: map[primitive.ObjectID]*user.User{
		inactive.ID: inactive,
		customer.ID: customer,
		agent.ID:    agent,
	}}
	executor := newTestExecutor(store, users, nil)

	for _, tc := range []struct {
		name    string
		agentID primitive.ObjectID
		ok      bool
	}{
		{"inactive agent", inactive.ID, false},
		{"customer account", customer.ID, false},
		{"active agent", agent.ID, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rule := &AutomationRule{
				ID: primitive.NewObjectID(),
				Actions: []RuleAction{
					{Kind: ActionAssignAgent, Params: map[string]interface{}{"agent_id": tc.agentID.Hex()}},
				},
			}
			results, _ := executor.Execute(context.Background(), rule, tk, tk.Snapshot())
			require.Len(t, results, 1)
			assert.Equal(t, tc.ok, results[0].Success)
		})
	}
}

func TestExecutorRetriesVersionConflictOnce(t *testing.T) {
	tk := openTicket()
	store := newFakeTicketStore(tk)
	store.conflicts = 1
	executor := newTestExecutor(store, nil, nil)

	rule := &AutomationRule{
		ID: primitive.NewObjectID(),
		Actions: []RuleAction{
			{Kind: ActionSetPriority, Params: map[string]interface{}{"priority": "urgent"}},
		},
	}

	results, final := executor.Execute(context.Background(), rule, tk, tk.Snapshot())
	require.Len(t, results, 1)
	assert.True(t, results[0].Success, "one conflict must be absorbed by the retry")
	assert.Equal(t, ticket.TicketPriorityUrgent, final.Priority)
}

func TestExecutorReportsRepeatedVersionConflict(t *testing.T) {
	tk := openTicket()
	store := newFakeTicketStore(tk)
	store.conflicts = 2
	executor := newTestExecutor(store, nil, nil)

	rule := &AutomationRule{
		ID: primitive.NewObjectID(),
		Actions: []RuleAction{
			{Kind: ActionSetPriority, Params: map[string]interface{}{"priority": "urgent"}},
		},
	}

	results, _ := executor.Execute(context.Background(), rule, tk, tk.Snapshot())
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "conflict")
}

func TestExecutorEscalate(t *testing.T) {
	tk := openTicket()
	store := newFakeTicketStore(tk)
	executor := newTestExecutor(store, nil, nil)

	rule := &AutomationRule{
		ID:      primitive.NewObjectID(),
		Actions: []RuleAction{{Kind: ActionEscalate}},
	}

	results, final := executor.Execute(context.Background(), rule, tk, tk.Snapshot())
	require.Len(t, results, 1)
	require.True(t, results[0].Success)
	assert.Equal(t, ticket.TicketStatusEscalated, final.Status)
	assert.Equal(t, ticket.TicketPriorityUrgent, final.Priority)

	s := store.tickets[tk.ID]
	assert.Equal(t, ticket.TicketStatusEscalated, s.Status)
	assert.Equal(t, ticket.TicketPriorityUrgent, s.Priority)
	assert.Equal(t, 1, store.writes, "escalate must be a single store write")
}

func TestExecutorSetStatusRejectsInvalidTransition(t *testing.T) {
	tk := openTicket()
	tk.Status = ticket.TicketStatusClosed
	store := newFakeTicketStore(tk)
	executor := newTestExecutor(store, nil, nil)

	rule := &AutomationRule{
		ID: primitive.NewObjectID(),
		Actions: []RuleAction{
			{Kind: ActionSetStatus, Params: map[string]interface{}{"status": "in_progress"}},
		},
	}

	results, final := executor.Execute(context.Background(), rule, tk, tk.Snapshot())
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, ticket.TicketStatusClosed, final.Status)
}

func TestExecutorSendNotificationRecipients(t *testing.T) {
	agent := activeAgent()
	admin := &user.User{ID: primitive.NewObjectID(), Role: user.RoleAdmin, Status: user.StatusActive}
	users := &fakeUserRepo{users: map[primitive.ObjectID]*user.User{
		agent.ID: agent,
		admin.ID: admin,
	}}

	t.Run("assigned agent", func(t *testing.T) {
		tk := openTicket()
		tk.AssignedTo = &agent.ID
		notifier := &fakeNotifier{}
		executor := newTestExecutor(newFakeTicketStore(tk), users, notifier)

		rule := &AutomationRule{
			ID: primitive.NewObjectID(),
			Actions: []RuleAction{
				{Kind: ActionSendNotification, Params: map[string]interface{}{
					"recipient": "assigned_agent",
					"title":     "Heads up on {{ticketNumber}}",
				}},
			},
		}
		results, _ := executor.Execute(context.Background(), rule, tk, tk.Snapshot())
		require.True(t, results[0].Success)
		require.Len(t, notifier.requests, 1)
		assert.Equal(t, agent.ID, notifier.requests[0].RecipientID)
		assert.Equal(t, notification.NotificationTypeRule, notifier.requests[0].Type)
	})

	t.Run("no assignee fails the action", func(t *testing.T) {
		tk := openTicket()
		notifier := &fakeNotifier{}
		executor := newTestExecutor(newFakeTicketStore(tk), users, notifier)

		rule := &AutomationRule{
			ID: primitive.NewObjectID(),
			Actions: []RuleAction{
				{Kind: ActionSendNotification, Params: map[string]interface{}{
					"recipient": "assigned_agent",
					"title":     "Heads up",
				}},
			},
		}
		results, _ := executor.Execute(context.Background(), rule, tk, tk.Snapshot())
		assert.False(t, results[0].Success)
		assert.Empty(t, notifier.requests)
	})

	t.Run("customer", func(t *testing.T) {
		tk := openTicket()
		notifier := &fakeNotifier{}
		executor := newTestExecutor(newFakeTicketStore(tk), users, notifier)

		rule := &AutomationRule{
			ID: primitive.NewObjectID(),
			Actions: []RuleAction{
				{Kind: ActionSendNotification, Params: map[string]interface{}{
					"recipient": "customer",
					"title":     "We are on it",
				}},
			},
		}
		results, _ := executor.Execute(context.Background(), rule, tk, tk.Snapshot())
		require.True(t, results[0].Success)
		require.Len(t, notifier.requests, 1)
		assert.Equal(t, tk.CustomerID, notifier.requests[0].RecipientID)
	})

	t.Run("role broadcast", func(t *testing.T) {
		tk := openTicket()
		notifier := &fakeNotifier{}
		executor := newTestExecutor(newFakeTicketStore(tk), users, notifier)

		rule := &AutomationRule{
			ID: primitive.NewObjectID(),
			Actions: []RuleAction{
				{Kind: ActionSendNotification, Params: map[string]interface{}{
					"recipient": "role",
					"role":      "admin",
					"title":     "Escalation",
				}},
			},
		}
		results, _ := executor.Execute(context.Background(), rule, tk, tk.Snapshot())
		require.True(t, results[0].Success)
		require.Len(t, notifier.requests, 1)
		assert.Equal(t, admin.ID, notifier.requests[0].RecipientID)
	})
}

func TestRenderTemplate(t *testing.T) {
	snapshot := map[string]interface{}{
		"ticketNumber": "TKT-000042",
		"priority":     "high",
	}
	out := renderTemplate("Ticket {{ticketNumber}} is now {{priority}}", snapshot)
	assert.Equal(t, "Ticket TKT-000042 is now high", out)

	assert.Equal(t, "plain text", renderTemplate("plain text", snapshot))
}

func TestOutcomeOf(t *testing.T) {
	ok := ActionResult{Success: true}
	bad := ActionResult{Success: false}

	assert.Equal(t, OutcomeSuccess, OutcomeOf([]ActionResult{ok, ok}))
	assert.Equal(t, OutcomePartial, OutcomeOf([]ActionResult{ok, bad}))
	assert.Equal(t, OutcomeFailed, OutcomeOf([]ActionResult{bad, bad}))
	assert.Equal(t, OutcomeSuccess, OutcomeOf(nil))
}
