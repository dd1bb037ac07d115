package cqrs

import (
	"github.com/eaglelearn/account-api/shared/mergepatch"
	"github.com/eaglelearn/account-api/shared/models"
)

// UpdateAccountCommand applies a merge patch to the account named Username.
type UpdateAccountCommand struct {
	Requester models.Caller
	Username  string
	Patch     mergepatch.Document
}

// DeactivateAccountCommand makes the account's password permanently unusable.
type DeactivateAccountCommand struct {
	Requester models.Caller
	Username  string
}

// RetireMailingsCommand opts a (possibly already retired) account out of all
// mailings. RetiredUsername must be the retired form of Username.
type RetireMailingsCommand struct {
	Username        string
	RetiredUsername string
}

// DeactivateLogoutCommand unlinks social logins, retires the email address,
// makes the password unusable and revokes outstanding tokens.
type DeactivateLogoutCommand struct {
	Requester models.Caller
	Username  string
}

// CreateAccountCommand seeds an account. Registration proper lives elsewhere;
// this exists for operators and local development.
type CreateAccountCommand struct {
	Username    string
	Email       string
	Password    string
	Name        string
	IsStaff     bool
	IsSuperuser bool
}
