package sla

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-helpdesk/internal/features/automation"
	"go-helpdesk/internal/features/ticket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// memTicketStore mimics the mongo ticket store's CAS and sweep queries.
type memTicketStore struct {
	mu      sync.Mutex
	tickets map[primitive.ObjectID]*ticket.Ticket
}

func newMemTicketStore(tickets ...*ticket.Ticket) *memTicketStore {
	s := &memTicketStore{tickets: make(map[primitive.ObjectID]*ticket.Ticket)}
	for _, t := range tickets {
		if t.ID.IsZero() {
			t.ID = primitive.NewObjectID()
		}
		s.tickets[t.ID] = t
	}
	return s
}

func (s *memTicketStore) Create(_ context.Context, t *ticket.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = primitive.NewObjectID()
	s.tickets[t.ID] = t
	return nil
}

func (s *memTicketStore) FindByID(_ context.Context, id primitive.ObjectID) (*ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *memTicketStore) FindAll(context.Context, bson.M, int64, int64) ([]ticket.Ticket, int64, error) {
	return nil, 0, nil
}

func (s *memTicketStore) UpdateFields(_ context.Context, id primitive.ObjectID, version int64, set bson.M) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return ticket.ErrNotFound
	}
	if t.Version != version {
		return ticket.ErrVersionConflict
	}
	for key, value := range set {
		switch key {
		case "sla_breached":
			t.SLABreached = value.(bool)
		case "sla_warned_for":
			ts := value.(time.Time)
			t.SLAWarnedFor = &ts
		case "unassigned_notified_at":
			ts := value.(time.Time)
			t.UnassignedNotifiedAt = &ts
		}
	}
	t.Version++
	return nil
}

func (s *memTicketStore) UpdateStatus(_ context.Context, id primitive.ObjectID, version int64, from, to ticket.TicketStatus) error {
	return s.UpdateFields(context.Background(), id, version, bson.M{})
}

func (s *memTicketStore) AddTag(_ context.Context, id primitive.ObjectID, version int64, tag string) error {
	return s.UpdateFields(context.Background(), id, version, bson.M{})
}

func (s *memTicketStore) FindOpenWithDeadline(context.Context) ([]ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ticket.Ticket
	for _, t := range s.tickets {
		if t.SLADeadline == nil {
			continue
		}
		if t.Status == ticket.TicketStatusResolved || t.Status == ticket.TicketStatusClosed {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *memTicketStore) FindUnassignedSince(_ context.Context, cutoff time.Time) ([]ticket.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ticket.Ticket
	for _, t := range s.tickets {
		if t.AssignedTo != nil || t.UnassignedNotifiedAt != nil {
			continue
		}
		if t.Status == ticket.TicketStatusResolved || t.Status == ticket.TicketStatusClosed {
			continue
		}
		if t.CreatedAt.After(cutoff) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *memTicketStore) EnsureIndexes(context.Context) error { return nil }

type captureSink struct {
	mu     sync.Mutex
	events []automation.Event
}

func (c *captureSink) Submit(event automation.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) byTrigger(trigger automation.TriggerType) []automation.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []automation.Event
	for _, e := range c.events {
		if e.Trigger == trigger {
			out = append(out, e)
		}
	}
	return out
}

func newTestMonitor(store *memTicketStore, sink *captureSink, now time.Time) *Monitor {
	m := NewMonitor(store, sink, time.Minute, time.Hour, 0, zap.NewNop())
	m.now = func() time.Time { return now }
	return m
}

func TestSweepEmitsOneWarningPerDeadline(t *testing.T) {
	now := time.Now().UTC()
	deadline := now.Add(30 * time.Minute)
	tk := &ticket.Ticket{
		Status:      ticket.TicketStatusOpen,
		SLADeadline: &deadline,
		CreatedAt:   now.Add(-2 * time.Hour),
	}
	store := newMemTicketStore(tk)
	sink := &captureSink{}
	m := newTestMonitor(store, sink, now)

	// sweep frequency must not multiply warnings
	m.Sweep(context.Background())
	m.Sweep(context.Background())
	m.Sweep(context.Background())

	warnings := sink.byTrigger(automation.TriggerSLAWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, tk.ID, warnings[0].TicketID)
	require.NotNil(t, store.tickets[tk.ID].SLAWarnedFor)
	assert.True(t, store.tickets[tk.ID].SLAWarnedFor.Equal(deadline))
}

func TestWarningRearmsWhenDeadlineMoves(t *testing.T) {
	now := time.Now().UTC()
	deadline := now.Add(30 * time.Minute)
	tk := &ticket.Ticket{
		Status:      ticket.TicketStatusOpen,
		SLADeadline: &deadline,
		CreatedAt:   now.Add(-2 * time.Hour),
	}
	store := newMemTicketStore(tk)
	sink := &captureSink{}
	m := newTestMonitor(store, sink, now)

	m.Sweep(context.Background())
	require.Len(t, sink.byTrigger(automation.TriggerSLAWarning), 1)

	// the deadline is renegotiated; a fresh warning is owed for the new one
	moved := now.Add(45 * time.Minute)
	store.mu.Lock()
	store.tickets[tk.ID].SLADeadline = &moved
	store.mu.Unlock()

	m.Sweep(context.Background())
	assert.Len(t, sink.byTrigger(automation.TriggerSLAWarning), 2)
}

func TestSweepEmitsOneBreachPerDeadline(t *testing.T) {
	now := time.Now().UTC()
	deadline := now.Add(-5 * time.Minute)
	tk := &ticket.Ticket{
		Status:      ticket.TicketStatusOpen,
		SLADeadline: &deadline,
		CreatedAt:   now.Add(-24 * time.Hour),
	}
	store := newMemTicketStore(tk)
	sink := &captureSink{}
	m := newTestMonitor(store, sink, now)

	m.Sweep(context.Background())
	m.Sweep(context.Background())

	breaches := sink.byTrigger(automation.TriggerSLABreach)
	require.Len(t, breaches, 1)
	assert.Equal(t, tk.ID, breaches[0].TicketID)
	assert.True(t, store.tickets[tk.ID].SLABreached)
	assert.Empty(t, sink.byTrigger(automation.TriggerSLAWarning),
		"a breached deadline emits the breach, not a late warning")
}

func TestSweepIgnoresTicketsOutsideWarningWindow(t *testing.T) {
	now := time.Now().UTC()
	deadline := now.Add(6 * time.Hour)
	tk := &ticket.Ticket{
		Status:      ticket.TicketStatusOpen,
		SLADeadline: &deadline,
		CreatedAt:   now,
	}
	store := newMemTicketStore(tk)
	sink := &captureSink{}
	m := newTestMonitor(store, sink, now)

	m.Sweep(context.Background())
	assert.Empty(t, sink.events)
}

func TestSweepEmitsUnassignedTimeoutOnce(t *testing.T) {
	now := time.Now().UTC()
	tk := &ticket.Ticket{
		Status:    ticket.TicketStatusOpen,
		CreatedAt: now.Add(-2 * time.Hour),
	}
	store := newMemTicketStore(tk)
	sink := &captureSink{}
	m := NewMonitor(store, sink, time.Minute, time.Hour, time.Hour, zap.NewNop())
	m.now = func() time.Time { return now }

	m.Sweep(context.Background())
	m.Sweep(context.Background())

	events := sink.byTrigger(automation.TriggerUnassignedTimeout)
	require.Len(t, events, 1)
	assert.Equal(t, tk.ID, events[0].TicketID)
	assert.NotNil(t, store.tickets[tk.ID].UnassignedNotifiedAt)
}

func TestSweepSkipsAssignedAndFreshTickets(t *testing.T) {
	now := time.Now().UTC()
	agentID := primitive.NewObjectID()
	assigned := &ticket.Ticket{
		Status:     ticket.TicketStatusOpen,
		AssignedTo: &agentID,
		CreatedAt:  now.Add(-3 * time.Hour),
	}
	fresh := &ticket.Ticket{
		Status:    ticket.TicketStatusOpen,
		CreatedAt: now.Add(-10 * time.Minute),
	}
	store := newMemTicketStore(assigned, fresh)
	sink := &captureSink{}
	m := NewMonitor(store, sink, time.Minute, time.Hour, time.Hour, zap.NewNop())
	m.now = func() time.Time { return now }

	m.Sweep(context.Background())
	assert.Empty(t, sink.byTrigger(automation.TriggerUnassignedTimeout))
}
