package cqrs

import "github.com/eaglelearn/account-api/shared/models"

// GetAccountSettingsQuery fetches the settings of each named account as seen
// by Requester. An empty Usernames means the requester's own account.
type GetAccountSettingsQuery struct {
	Requester models.Caller
	Usernames []string
	View      string
}
