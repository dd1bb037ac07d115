package models

import (
	"time"

	"github.com/eaglelearn/account-api/shared/utils"
)

// Visibility levels a learner can choose for their profile.
const (
	PrivacyAllUsers = "all_users"
	PrivacyPrivate  = "private"
)

// ViewShared asks for the fields an account shares with other users, even
// when the caller could see more.
const ViewShared = "shared"

// Account is the write model: a user record plus its profile, as stored in
// the relational store.
type Account struct {
	ID                    string
	Username              string
	Email                 string
	PasswordHash          string
	IsActive              bool
	IsStaff               bool
	IsSuperuser           bool
	DateJoined            time.Time
	UpdatedAt             time.Time
	Profile               Profile
	LanguageProficiencies []LanguageProficiency
	SocialLinks           []SocialLink
}

// Profile holds the learner-editable part of an account. Nil pointers are
// stored as NULL.
type Profile struct {
	Name                   string
	Bio                    *string
	Country                *string
	Gender                 *string
	Goals                  *string
	Language               *string
	LevelOfEducation       *string
	MailingAddress         *string
	YearOfBirth            *int
	AccountPrivacy         *string
	ProfileImageUploadedAt *time.Time
}

type LanguageProficiency struct {
	Code string `json:"code" validate:"required,len=2,alpha,lowercase"`
}

type SocialLink struct {
	Platform   string `json:"platform" validate:"required,oneof=facebook twitter linkedin"`
	SocialLink string `json:"social_link" validate:"max=500"`
}

// OrgTagEmailOptIn is the org tag key holding an account's mailing
// preference for that organization. Values are "True" or "False".
const OrgTagEmailOptIn = "email-optin"

// OrgTag is a per-organization preference stored for an account.
type OrgTag struct {
	UserID string
	Org    string
	Key    string
	Value  string
}

// SocialAuth links an account to a third-party identity provider.
type SocialAuth struct {
	ID       string
	UserID   string
	Provider string
	UID      string
}

// PendingEmailChange is an email change awaiting confirmation.
type PendingEmailChange struct {
	UserID        string
	NewEmail      string
	ActivationKey string
	CreatedAt     time.Time
}

// Caller is the authenticated identity making a request.
type Caller struct {
	Username    string
	Email       string
	IsStaff     bool
	IsSuperuser bool
	Permissions []string
}

func (c Caller) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// IsOwner reports whether the caller is the account named username.
func (c Caller) IsOwner(username string) bool {
	return c.Username != "" && c.Username == username
}

// PermissionDeactivateUsers lets non-superusers deactivate other accounts.
const PermissionDeactivateUsers = "accounts.can_deactivate_users"

// View projects the account onto its read model.
func (a *Account) View() *AccountView {
	return &AccountView{
		ID:                     a.ID,
		Username:               a.Username,
		Email:                  a.Email,
		IsActive:               a.IsActive,
		HasUsablePassword:      utils.IsUsablePassword(a.PasswordHash),
		DateJoined:             a.DateJoined,
		Name:                   a.Profile.Name,
		Bio:                    a.Profile.Bio,
		Country:                a.Profile.Country,
		Gender:                 a.Profile.Gender,
		Goals:                  a.Profile.Goals,
		Language:               a.Profile.Language,
		LevelOfEducation:       a.Profile.LevelOfEducation,
		MailingAddress:         a.Profile.MailingAddress,
		YearOfBirth:            a.Profile.YearOfBirth,
		AccountPrivacy:         a.Profile.AccountPrivacy,
		ProfileImageUploadedAt: a.Profile.ProfileImageUploadedAt,
		LanguageProficiencies:  a.LanguageProficiencies,
		SocialLinks:            a.SocialLinks,
	}
}
