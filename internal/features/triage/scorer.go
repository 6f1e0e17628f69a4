package triage

import (
	"sort"
	"time"

	"go-helpdesk/internal/features/ticket"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Section is the queue bucket a ticket is displayed under.
type Section string

const (
	SectionUrgent          Section = "urgent"
	SectionToProcess       Section = "to_process"
	SectionWaitingCustomer Section = "waiting_customer"
	SectionResolved        Section = "resolved"
)

// Urgency score components. Priority dominates age but never an active
// breach; the escalated bonus exceeds the urgent/high gap so escalated
// tickets outrank same-priority peers.
const (
	scoreBreach          = 200
	scoreDeadlineUnder1h = 150
	scoreDeadlineUnder4h = 100
	scoreDeadlineUnder8h = 50

	ageCapHours = 100

	scorePriorityLow    = 0
	scorePriorityMedium = 25
	scorePriorityHigh   = 75
	scorePriorityUrgent = 150

	scoreEscalatedBonus = 100
)

// Result is the outcome of scoring one ticket.
type Result struct {
	Total   int     `json:"total"`
	Section Section `json:"section"`
}

// Score computes the urgency score and queue section for a ticket at the
// given instant. Pure: no I/O, safe on stale snapshots.
func Score(t *ticket.Ticket, now time.Time) Result {
	total := slaComponent(t, now) + ageComponent(t, now) + priorityComponent(t.Priority) + statusComponent(t.Status)
	return Result{Total: total, Section: classify(t)}
}

func slaComponent(t *ticket.Ticket, now time.Time) int {
	if t.SLABreached {
		return scoreBreach
	}
	if t.SLADeadline == nil {
		return 0
	}
	hoursToDeadline := t.SLADeadline.Sub(now).Hours()
	switch {
	case hoursToDeadline < 0:
		// Past deadline but not yet flagged by the monitor: breach-equivalent.
		return scoreBreach
	case hoursToDeadline < 1:
		return scoreDeadlineUnder1h
	case hoursToDeadline < 4:
		return scoreDeadlineUnder4h
	case hoursToDeadline < 8:
		return scoreDeadlineUnder8h
	default:
		return 0
	}
}

func ageComponent(t *ticket.Ticket, now time.Time) int {
	hours := int(now.Sub(t.CreatedAt).Hours())
	if hours < 0 {
		return 0
	}
	if hours > ageCapHours {
		return ageCapHours
	}
	return hours
}

func priorityComponent(p ticket.TicketPriority) int {
	switch p {
	case ticket.TicketPriorityUrgent:
		return scorePriorityUrgent
	case ticket.TicketPriorityHigh:
		return scorePriorityHigh
	case ticket.TicketPriorityMedium:
		return scorePriorityMedium
	default:
		return scorePriorityLow
	}
}

func statusComponent(s ticket.TicketStatus) int {
	if s == ticket.TicketStatusEscalated {
		return scoreEscalatedBonus
	}
	return 0
}

// classify picks the queue section; first matching rule wins.
func classify(t *ticket.Ticket) Section {
	switch {
	case t.SLABreached:
		return SectionUrgent
	case t.Priority == ticket.TicketPriorityUrgent && t.Status == ticket.TicketStatusOpen:
		return SectionUrgent
	case t.Status == ticket.TicketStatusWaitingCustomer:
		return SectionWaitingCustomer
	case t.Status == ticket.TicketStatusResolved || t.Status == ticket.TicketStatusClosed:
		return SectionResolved
	default:
		return SectionToProcess
	}
}

// SortByPriority returns a new slice ordered by descending urgency score.
// The sort is stable: tickets with equal scores keep their original
// relative order. The input slice is not modified.
func SortByPriority(tickets []ticket.Ticket, now time.Time) []ticket.Ticket {
	sorted := append([]ticket.Ticket(nil), tickets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return Score(&sorted[i], now).Total > Score(&sorted[j], now).Total
	})
	return sorted
}

// NextTicket returns the highest-scoring ticket that is still actionable:
// not resolved or closed, and not the excluded id. Pass
// primitive.NilObjectID to exclude nothing. Returns nil when no candidate
// exists.
func NextTicket(tickets []ticket.Ticket, now time.Time, excludeID primitive.ObjectID) *ticket.Ticket {
	var best *ticket.Ticket
	bestScore := 0
	for i := range tickets {
		t := &tickets[i]
		if t.Status == ticket.TicketStatusResolved || t.Status == ticket.TicketStatusClosed {
			continue
		}
		if t.ID == excludeID {
			continue
		}
		score := Score(t, now).Total
		if best == nil || score > bestScore {
			best = t
			bestScore = score
		}
	}
	return best
}
