package notification

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationTypeInfo       NotificationType = "info"
	NotificationTypeAssignment NotificationType = "assignment"
	NotificationTypeEscalation NotificationType = "escalation"
	NotificationTypeSLA        NotificationType = "sla"
	NotificationTypeRule       NotificationType = "rule"
)

// Notification is the persisted inbox record. Persistence is the
// success-determining step of fan-out; live push is best-effort on top.
type Notification struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	TicketID  primitive.ObjectID `bson:"ticket_id,omitempty" json:"ticket_id,omitempty"`
	Title     string             `bson:"title" json:"title"`
	Message   string             `bson:"message" json:"message"`
	Type      NotificationType   `bson:"type" json:"type"`
	IsRead    bool               `bson:"is_read" json:"is_read"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	ReadAt    *time.Time         `bson:"read_at,omitempty" json:"read_at,omitempty"`
}

// Request is the transient value produced by the action executor or the
// SLA monitor. Each request becomes its own Notification record; two
// rules notifying the same user about the same ticket intentionally
// produce two records.
type Request struct {
	RecipientID primitive.ObjectID
	TicketID    primitive.ObjectID
	Type        NotificationType
	Title       string
	Body        string
}
