// Package visibility decides which account fields a caller may see and
// serializes them.
package visibility

import (
	"time"

	"github.com/eaglelearn/account-api/shared/models"
)

// ParentalConsentAgeLimit is the age at or below which an account needs
// parental consent.
const ParentalConsentAgeLimit = 13

// PublicFields are visible to anyone who can see the account at all.
var PublicFields = []string{"username", "account_privacy", "profile_image"}

// SharedFields are visible to other users when the account is shared with
// all users.
var SharedFields = append(append([]string{}, PublicFields...),
	"country", "date_joined", "language_proficiencies", "bio", "social_links", "accomplishments_shared",
)

// FullFields are visible to the owner and to staff.
var FullFields = []string{
	"username", "email", "name", "bio", "country", "date_joined", "gender", "goals", "is_active",
	"language", "language_proficiencies", "level_of_education", "mailing_address", "profile_image",
	"requires_parental_consent", "social_links", "year_of_birth", "account_privacy",
	"accomplishments_shared",
}

type Config struct {
	DefaultPrivacy         string
	ProfileImageBaseURL    string
	ProfileImageDefaultURL string
	AccomplishmentsShared  bool
}

type Policy struct {
	cfg Config
	now func() time.Time
}

func NewPolicy(cfg Config) *Policy {
	if cfg.DefaultPrivacy == "" {
		cfg.DefaultPrivacy = models.PrivacyAllUsers
	}
	return &Policy{cfg: cfg, now: time.Now}
}

// Privacy returns the account's effective privacy setting.
func (p *Policy) Privacy(view *models.AccountView) string {
	if view.AccountPrivacy != nil && *view.AccountPrivacy != "" {
		return *view.AccountPrivacy
	}
	return p.cfg.DefaultPrivacy
}

func (p *Policy) RequiresParentalConsent(view *models.AccountView) bool {
	if view.YearOfBirth == nil {
		return true
	}
	return p.now().Year()-*view.YearOfBirth <= ParentalConsentAgeLimit
}

// VisibleFields lists the fields caller may see on view. The shared view lets
// owners and staff preview what other users see.
func (p *Policy) VisibleFields(view *models.AccountView, caller models.Caller, viewName string) []string {
	if viewName != models.ViewShared && (caller.IsOwner(view.Username) || caller.IsStaff || caller.IsSuperuser) {
		return FullFields
	}
	if p.RequiresParentalConsent(view) || p.Privacy(view) == models.PrivacyPrivate {
		return PublicFields
	}
	return SharedFields
}

// Settings serializes the fields of view that caller may see.
func (p *Policy) Settings(view *models.AccountView, caller models.Caller, viewName string) models.AccountSettings {
	all := p.serialize(view)
	visible := p.VisibleFields(view, caller, viewName)
	out := make(models.AccountSettings, len(visible))
	for _, f := range visible {
		out[f] = all[f]
	}
	return out
}

func (p *Policy) serialize(view *models.AccountView) map[string]any {
	proficiencies := view.LanguageProficiencies
	if proficiencies == nil {
		proficiencies = []models.LanguageProficiency{}
	}
	links := view.SocialLinks
	if links == nil {
		links = []models.SocialLink{}
	}
	return map[string]any{
		"username":                  view.Username,
		"email":                     view.Email,
		"name":                      view.Name,
		"bio":                       view.Bio,
		"country":                   view.Country,
		"date_joined":               view.DateJoined.UTC().Format(time.RFC3339),
		"gender":                    view.Gender,
		"goals":                     view.Goals,
		"is_active":                 view.IsActive,
		"language":                  view.Language,
		"language_proficiencies":    proficiencies,
		"level_of_education":        view.LevelOfEducation,
		"mailing_address":           view.MailingAddress,
		"profile_image":             p.ProfileImage(view.Username, view.ProfileImageUploadedAt),
		"requires_parental_consent": p.RequiresParentalConsent(view),
		"social_links":              links,
		"year_of_birth":             view.YearOfBirth,
		"account_privacy":           p.Privacy(view),
		"accomplishments_shared":    p.cfg.AccomplishmentsShared,
	}
}
