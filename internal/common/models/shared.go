package models

import "time"

// Log is the persisted shape of an application log line. Written by the
// async zap sink in internal/logger; queryable for support diagnostics.
type Log struct {
	Message      string    `bson:"message" json:"message"`
	Caller       string    `bson:"caller,omitempty" json:"caller,omitempty"`
	TicketID     string    `bson:"ticket_id,omitempty" json:"ticket_id,omitempty"`
	RuleID       string    `bson:"rule_id,omitempty" json:"rule_id,omitempty"`
	LogLevelID   int       `bson:"log_level_id" json:"log_level_id"`
	CreatedOnUtc time.Time `bson:"created_on_utc" json:"created_on_utc"`
}
