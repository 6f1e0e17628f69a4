package ticket

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TicketStatus represents the status of a ticket
type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "open"
	TicketStatusInProgress      TicketStatus = "in_progress"
	TicketStatusWaitingCustomer TicketStatus = "waiting_customer"
	TicketStatusResolved        TicketStatus = "resolved"
	TicketStatusClosed          TicketStatus = "closed"
	TicketStatusEscalated       TicketStatus = "escalated"
	TicketStatusReopened        TicketStatus = "reopened"
)

// TicketPriority represents the priority level of a ticket
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// KnownStatus reports whether s is one of the defined ticket statuses.
func KnownStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusWaitingCustomer,
		TicketStatusResolved, TicketStatusClosed, TicketStatusEscalated,
		TicketStatusReopened:
		return true
	}
	return false
}

// KnownPriority reports whether p is one of the defined priorities.
func KnownPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// validTransitions is the status workflow enforced by the ticket store. A
// closed ticket must pass through reopened before any active status.
var validTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:            {TicketStatusInProgress, TicketStatusWaitingCustomer, TicketStatusEscalated, TicketStatusResolved, TicketStatusClosed},
	TicketStatusInProgress:      {TicketStatusOpen, TicketStatusWaitingCustomer, TicketStatusEscalated, TicketStatusResolved, TicketStatusClosed},
	TicketStatusWaitingCustomer: {TicketStatusOpen, TicketStatusInProgress, TicketStatusEscalated, TicketStatusResolved, TicketStatusClosed},
	TicketStatusEscalated:       {TicketStatusInProgress, TicketStatusWaitingCustomer, TicketStatusResolved, TicketStatusClosed},
	TicketStatusResolved:        {TicketStatusClosed, TicketStatusReopened},
	TicketStatusClosed:          {TicketStatusReopened},
	TicketStatusReopened:        {TicketStatusInProgress, TicketStatusWaitingCustomer, TicketStatusEscalated, TicketStatusResolved, TicketStatusClosed},
}

// ValidTransition reports whether a ticket may move from one status to
// another. Setting the same status again is allowed and a no-op.
func ValidTransition(from, to TicketStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Ticket represents a customer support ticket as the triage engine sees it.
// Status, priority, assignee and the SLA flags are the only fields the
// engine writes, always through the versioned store update.
type Ticket struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TicketNumber string             `json:"ticket_number" bson:"ticket_number"`
	Subject      string             `json:"subject" bson:"subject"`
	Description  string             `json:"description" bson:"description"`

	Status   TicketStatus   `json:"status" bson:"status"`
	Priority TicketPriority `json:"priority" bson:"priority"`

	// SLA tracking. SLAWarnedFor holds the deadline value a warning has
	// already been emitted for; it re-arms automatically when the
	// deadline changes.
	SLADeadline  *time.Time `json:"sla_deadline,omitempty" bson:"sla_deadline,omitempty"`
	SLABreached  bool       `json:"sla_breached" bson:"sla_breached"`
	SLAWarnedFor *time.Time `json:"sla_warned_for,omitempty" bson:"sla_warned_for,omitempty"`

	// UnassignedNotifiedAt stamps the one-shot UNASSIGNED_TIMEOUT emission.
	UnassignedNotifiedAt *time.Time `json:"unassigned_notified_at,omitempty" bson:"unassigned_notified_at,omitempty"`

	AssignedTo *primitive.ObjectID `json:"assigned_to,omitempty" bson:"assigned_to,omitempty"`
	CustomerID primitive.ObjectID  `json:"customer_id" bson:"customer_id"`

	Tags []string `json:"tags,omitempty" bson:"tags,omitempty"`

	// Version backs the store's compare-and-swap updates.
	Version int64 `json:"version" bson:"version"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Snapshot renders the ticket as the flat map rule conditions evaluate
// against. Keys mirror the JSON field names rule authors see.
func (t *Ticket) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"ticketNumber": t.TicketNumber,
		"subject":      t.Subject,
		"status":       string(t.Status),
		"priority":     string(t.Priority),
		"slaBreached":  t.SLABreached,
		"customerId":   t.CustomerID.Hex(),
		"tags":         append([]string(nil), t.Tags...),
		"createdAt":    t.CreatedAt,
	}
	if t.AssignedTo != nil {
		snap["assignedToId"] = t.AssignedTo.Hex()
	}
	if t.SLADeadline != nil {
		snap["slaDeadline"] = *t.SLADeadline
	}
	return snap
}

// Message is a single customer or agent message on a ticket. The engine
// only needs it as the payload of MESSAGE_RECEIVED events.
type Message struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	TicketID  primitive.ObjectID `json:"ticket_id" bson:"ticket_id"`
	AuthorID  primitive.ObjectID `json:"author_id" bson:"author_id"`
	Body      string             `json:"body" bson:"body"`
	Internal  bool               `json:"internal" bson:"internal"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}
