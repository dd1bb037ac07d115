package models

import "time"

// AccountView is the read-optimised projection of an account.
// It never carries the password hash and is what the Redis read model stores.
type AccountView struct {
	ID                     string                `json:"id"`
	Username               string                `json:"username"`
	Email                  string                `json:"email"`
	IsActive               bool                  `json:"isActive"`
	HasUsablePassword      bool                  `json:"hasUsablePassword"`
	DateJoined             time.Time             `json:"dateJoined"`
	Name                   string                `json:"name"`
	Bio                    *string               `json:"bio,omitempty"`
	Country                *string               `json:"country,omitempty"`
	Gender                 *string               `json:"gender,omitempty"`
	Goals                  *string               `json:"goals,omitempty"`
	Language               *string               `json:"language,omitempty"`
	LevelOfEducation       *string               `json:"levelOfEducation,omitempty"`
	MailingAddress         *string               `json:"mailingAddress,omitempty"`
	YearOfBirth            *int                  `json:"yearOfBirth,omitempty"`
	AccountPrivacy         *string               `json:"accountPrivacy,omitempty"`
	ProfileImageUploadedAt *time.Time            `json:"profileImageUploadedAt,omitempty"`
	LanguageProficiencies  []LanguageProficiency `json:"languageProficiencies"`
	SocialLinks            []SocialLink          `json:"socialLinks"`
}

// AccountSettings is the serialized field map returned to API callers. Its
// key set depends on who is asking.
type AccountSettings map[string]any

// AccountSettingsUpdate is the editable document a merge patch is applied to.
// Pointer fields are nullable; slices are replaced wholesale.
type AccountSettingsUpdate struct {
	Name                  *string               `json:"name" validate:"omitempty,min=1,max=255"`
	Email                 *string               `json:"email" validate:"omitempty,email,max=254"`
	Bio                   *string               `json:"bio" validate:"omitempty,max=300"`
	Country               *string               `json:"country" validate:"omitempty,iso3166_1_alpha2"`
	Gender                *string               `json:"gender" validate:"omitempty,oneof=f m o"`
	Goals                 *string               `json:"goals"`
	Language              *string               `json:"language" validate:"omitempty,max=255"`
	LanguageProficiencies []LanguageProficiency `json:"language_proficiencies" validate:"dive"`
	LevelOfEducation      *string               `json:"level_of_education" validate:"omitempty,oneof=p m b a hs jhs el none o"`
	MailingAddress        *string               `json:"mailing_address"`
	YearOfBirth           *int                  `json:"year_of_birth" validate:"omitempty,gte=1900,notfutureyear"`
	SocialLinks           []SocialLink          `json:"social_links" validate:"dive"`
	AccountPrivacy        *string               `json:"account_privacy" validate:"omitempty,oneof=all_users private"`
}

// EditableFields are the JSON names of AccountSettingsUpdate.
var EditableFields = []string{
	"name", "email", "bio", "country", "gender", "goals", "language", "language_proficiencies",
	"level_of_education", "mailing_address", "year_of_birth", "social_links", "account_privacy",
}

// NullableFields may be cleared by patching them to null.
var NullableFields = []string{
	"bio", "country", "gender", "goals", "language", "level_of_education",
	"mailing_address", "year_of_birth", "account_privacy",
}

// ReadOnlyFields are serialized but can never be patched.
var ReadOnlyFields = []string{
	"username", "date_joined", "is_active", "requires_parental_consent",
	"profile_image", "accomplishments_shared",
}
