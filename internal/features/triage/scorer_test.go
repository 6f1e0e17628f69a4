package triage

import (
	"testing"
	"time"

	"go-helpdesk/internal/features/ticket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func deadlineIn(now time.Time, d time.Duration) *time.Time {
	dl := now.Add(d)
	return &dl
}

func TestScoreComponents(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		ticket      ticket.Ticket
		wantTotal   int
		wantSection Section
	}{
		{
			name: "fresh medium ticket with far deadline",
			ticket: ticket.Ticket{
				Status:      ticket.TicketStatusOpen,
				Priority:    ticket.TicketPriorityMedium,
				CreatedAt:   now.Add(-2 * time.Hour),
				SLADeadline: deadlineIn(now, 22*time.Hour),
			},
			wantTotal:   27, // age 2 + priority 25
			wantSection: SectionToProcess,
		},
		{
			name: "deadline inside one hour",
			ticket: ticket.Ticket{
				Status:      ticket.TicketStatusOpen,
				Priority:    ticket.TicketPriorityLow,
				CreatedAt:   now,
				SLADeadline: deadlineIn(now, 30*time.Minute),
			},
			wantTotal:   150,
			wantSection: SectionToProcess,
		},
		{
			name: "deadline inside four hours",
			ticket: ticket.Ticket{
				Status:      ticket.TicketStatusOpen,
				Priority:    ticket.TicketPriorityLow,
				CreatedAt:   now,
				SLADeadline: deadlineIn(now, 2*time.Hour),
			},
			wantTotal:   100,
			wantSection: SectionToProcess,
		},
		{
			name: "deadline inside eight hours",
			ticket: ticket.Ticket{
				Status:      ticket.TicketStatusOpen,
				Priority:    ticket.TicketPriorityLow,
				CreatedAt:   now,
				SLADeadline: deadlineIn(now, 5*time.Hour),
			},
			wantTotal:   50,
			wantSection: SectionToProcess,
		},
		{
			name: "past deadline counts as breach even before the monitor flags it",
			ticket: ticket.Ticket{
				Status:      ticket.TicketStatusOpen,
				Priority:    ticket.TicketPriorityLow,
				CreatedAt:   now,
				SLADeadline: deadlineIn(now, -time.Minute),
			},
			wantTotal:   200,
			wantSection: SectionToProcess,
		},
		{
			name: "no deadline contributes nothing",
			ticket: ticket.Ticket{
				Status:    ticket.TicketStatusOpen,
				Priority:  ticket.TicketPriorityHigh,
				CreatedAt: now.Add(-3 * time.Hour),
			},
			wantTotal:   78, // age 3 + priority 75
			wantSection: SectionToProcess,
		},
		{
			name: "escalated bonus outranks urgent priority gap",
			ticket: ticket.Ticket{
				Status:    ticket.TicketStatusEscalated,
				Priority:  ticket.TicketPriorityHigh,
				CreatedAt: now,
			},
			wantTotal:   175, // priority 75 + escalated 100 > urgent 150
			wantSection: SectionToProcess,
		},
		{
			name: "urgent open ticket lands in the urgent section",
			ticket: ticket.Ticket{
				Status:    ticket.TicketStatusOpen,
				Priority:  ticket.TicketPriorityUrgent,
				CreatedAt: now,
			},
			wantTotal:   150,
			wantSection: SectionUrgent,
		},
		{
			name: "waiting customer section",
			ticket: ticket.Ticket{
				Status:    ticket.TicketStatusWaitingCustomer,
				Priority:  ticket.TicketPriorityUrgent,
				CreatedAt: now,
			},
			wantTotal:   150,
			wantSection: SectionWaitingCustomer,
		},
		{
			name: "resolved section",
			ticket: ticket.Ticket{
				Status:    ticket.TicketStatusResolved,
				Priority:  ticket.TicketPriorityHigh,
				CreatedAt: now,
			},
			wantTotal:   75,
			wantSection: SectionResolved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(&tt.ticket, now)
			assert.Equal(t, tt.wantTotal, got.Total)
			assert.Equal(t, tt.wantSection, got.Section)
		})
	}
}

func TestScoreBreachedAlwaysUrgent(t *testing.T) {
	now := time.Now()
	for _, priority := range []ticket.TicketPriority{
		ticket.TicketPriorityLow, ticket.TicketPriorityMedium,
		ticket.TicketPriorityHigh, ticket.TicketPriorityUrgent,
	} {
		tk := ticket.Ticket{
			Status:      ticket.TicketStatusInProgress,
			Priority:    priority,
			SLABreached: true,
			CreatedAt:   now,
		}
		got := Score(&tk, now)
		assert.GreaterOrEqual(t, got.Total, 200, string(priority))
		assert.Equal(t, SectionUrgent, got.Section, string(priority))
	}
}

func TestScoreAgeCapped(t *testing.T) {
	now := time.Now()
	tk := ticket.Ticket{
		Status:    ticket.TicketStatusOpen,
		Priority:  ticket.TicketPriorityLow,
		CreatedAt: now.Add(-130 * time.Hour),
	}
	assert.Equal(t, 100, Score(&tk, now).Total)
}

func TestSortByPriorityStableAndNonMutating(t *testing.T) {
	now := time.Now()
	a := ticket.Ticket{ID: primitive.NewObjectID(), TicketNumber: "TKT-000001", Status: ticket.TicketStatusOpen, Priority: ticket.TicketPriorityLow, CreatedAt: now}
	b := ticket.Ticket{ID: primitive.NewObjectID(), TicketNumber: "TKT-000002", Status: ticket.TicketStatusOpen, Priority: ticket.TicketPriorityUrgent, CreatedAt: now}
	c := ticket.Ticket{ID: primitive.NewObjectID(), TicketNumber: "TKT-000003", Status: ticket.TicketStatusOpen, Priority: ticket.TicketPriorityLow, CreatedAt: now}

	input := []ticket.Ticket{a, b, c}
	sorted := SortByPriority(input, now)

	require.Len(t, sorted, 3)
	assert.Equal(t, b.ID, sorted[0].ID)
	// a and c tie on score; original relative order is preserved.
	assert.Equal(t, a.ID, sorted[1].ID)
	assert.Equal(t, c.ID, sorted[2].ID)

	// Input untouched.
	assert.Equal(t, a.ID, input[0].ID)
	assert.Equal(t, b.ID, input[1].ID)
	assert.Equal(t, c.ID, input[2].ID)
}

func TestNextTicket(t *testing.T) {
	now := time.Now()
	urgent := ticket.Ticket{ID: primitive.NewObjectID(), Status: ticket.TicketStatusOpen, Priority: ticket.TicketPriorityUrgent, CreatedAt: now}
	medium := ticket.Ticket{ID: primitive.NewObjectID(), Status: ticket.TicketStatusOpen, Priority: ticket.TicketPriorityMedium, CreatedAt: now}
	resolved := ticket.Ticket{ID: primitive.NewObjectID(), Status: ticket.TicketStatusResolved, Priority: ticket.TicketPriorityUrgent, CreatedAt: now}
	closed := ticket.Ticket{ID: primitive.NewObjectID(), Status: ticket.TicketStatusClosed, Priority: ticket.TicketPriorityUrgent, CreatedAt: now}

	tickets := []ticket.Ticket{resolved, medium, urgent, closed}

	next := NextTicket(tickets, now, primitive.NilObjectID)
	require.NotNil(t, next)
	assert.Equal(t, urgent.ID, next.ID)

	// Excluding the top pick yields the runner-up, never resolved/closed.
	next = NextTicket(tickets, now, urgent.ID)
	require.NotNil(t, next)
	assert.Equal(t, medium.ID, next.ID)

	// No actionable candidates left.
	next = NextTicket([]ticket.Ticket{resolved, closed}, now, primitive.NilObjectID)
	assert.Nil(t, next)
}
