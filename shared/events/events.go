package events

import "time"

// Event types
const (
	AccountUpdated       = "account.updated"
	AccountDeactivated   = "account.deactivated"
	EmailChangeRequested = "account.email_change_requested"

	UserRetireMailings = "user.retire_mailings"
)

// Stream names
const (
	AccountEventsStream = "account.events"
	MailingEventsStream = "mailing.events"
)

// Reasons carried by AccountDeactivatedEvent.
const (
	DeactivatedByAdmin  = "admin"
	DeactivatedByLogout = "deactivate_logout"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type AccountUpdatedEvent struct {
	Username string   `json:"username"`
	Fields   []string `json:"fields"`
}

// AccountDeactivatedEvent is emitted once an account can no longer sign in.
// Other identity services subscribe to it to unlink and lock their own copy
// of the account.
type AccountDeactivatedEvent struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

type EmailChangeRequestedEvent struct {
	Username      string `json:"username"`
	CurrentEmail  string `json:"currentEmail"`
	NewEmail      string `json:"newEmail"`
	ActivationKey string `json:"activationKey"`
}

// RetireMailingsEvent asks external mailing integrations to unsubscribe the
// account from every list.
type RetireMailingsEvent struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Orgs     []string `json:"orgs"`
}
