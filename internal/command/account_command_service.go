package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/eaglelearn/account-api/internal/query"
	"github.com/eaglelearn/account-api/internal/repository"
	"github.com/eaglelearn/account-api/shared/apperrors"
	"github.com/eaglelearn/account-api/shared/cqrs"
	"github.com/eaglelearn/account-api/shared/events"
	"github.com/eaglelearn/account-api/shared/mergepatch"
	"github.com/eaglelearn/account-api/shared/models"
	"github.com/eaglelearn/account-api/shared/retirement"
	"github.com/eaglelearn/account-api/shared/utils"
	"github.com/eaglelearn/account-api/shared/validation"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	msgNotEditable      = "This field is not editable via this API"
	msgEmailSendFailure = "Unable to send email activation link. Please try again later."
)

var accountOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "account_api_operations_total",
		Help: "Account mutations by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

// ViewInvalidator drops cached account views.
type ViewInvalidator interface {
	Invalidate(ctx context.Context, usernames ...string)
}

// TokenRevoker invalidates every token issued to a user up to a moment.
type TokenRevoker interface {
	Revoke(ctx context.Context, username string, at time.Time) error
}

type Dependencies struct {
	Store          *repository.Store
	Views          ViewInvalidator
	Queries        *query.AccountQueryService
	Publisher      events.StreamPublisher
	Revocations    TokenRevoker
	Retirement     *retirement.Hasher
	RetireMailings *events.Signal[events.RetireMailingsEvent]
}

// AccountCommandService applies every account mutation. Multi-step changes
// run in one transaction; caches are invalidated and events published only
// after commit.
type AccountCommandService struct {
	store          *repository.Store
	views          ViewInvalidator
	queries        *query.AccountQueryService
	publisher      events.StreamPublisher
	revocations    TokenRevoker
	retirement     *retirement.Hasher
	retireMailings *events.Signal[events.RetireMailingsEvent]
	schema         mergepatch.Schema
	now            func() time.Time
}

func NewAccountCommandService(deps Dependencies) *AccountCommandService {
	return &AccountCommandService{
		store:          deps.Store,
		views:          deps.Views,
		queries:        deps.Queries,
		publisher:      deps.Publisher,
		revocations:    deps.Revocations,
		retirement:     deps.Retirement,
		retireMailings: deps.RetireMailings,
		schema:         mergepatch.NewSchema(models.NullableFields...),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func observe(operation string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		outcome = "not_found"
	case errors.Is(err, apperrors.ErrUserNotAuthorized):
		outcome = "not_authorized"
	default:
		var verr *apperrors.AccountValidationError
		if errors.As(err, &verr) {
			outcome = "invalid"
		} else {
			outcome = "error"
		}
	}
	accountOperations.WithLabelValues(operation, outcome).Inc()
}

// UpdateAccount applies a merge patch to the requester's own account and
// returns the settings as read back inside the same transaction.
func (s *AccountCommandService) UpdateAccount(ctx context.Context, cmd cqrs.UpdateAccountCommand) (settings models.AccountSettings, err error) {
	defer func() { observe("update", err) }()

	if !cmd.Requester.IsOwner(cmd.Username) {
		return nil, apperrors.ErrUserNotAuthorized
	}

	var changed []string
	err = s.store.WithinTx(ctx, func(tx *repository.Tx) error {
		account, err := tx.Accounts.GetByUsername(ctx, cmd.Username)
		if err != nil {
			return err
		}

		changed, err = s.applyPatch(ctx, tx, account, cmd.Patch)
		if err != nil {
			return err
		}

		all, err := s.queries.WithLoader(tx.Accounts).GetAccountSettings(ctx, cqrs.GetAccountSettingsQuery{
			Requester: cmd.Requester,
			Usernames: []string{account.Username},
		})
		if err != nil {
			return err
		}
		settings = all[0]
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		s.views.Invalidate(ctx, cmd.Username)
		s.publish(ctx, events.AccountEventsStream, events.AccountUpdated, events.AccountUpdatedEvent{
			Username: cmd.Username,
			Fields:   changed,
		})
	}
	return settings, nil
}

// applyPatch validates patch against account and persists it. It returns the
// editable fields the patch touched.
func (s *AccountCommandService) applyPatch(ctx context.Context, tx *repository.Tx, account *models.Account, patch mergepatch.Document) ([]string, error) {
	verr := apperrors.NewAccountValidationError()

	for _, field := range models.ReadOnlyFields {
		if _, ok := patch[field]; ok {
			verr.Add(field, msgNotEditable, fmt.Sprintf("The '%s' field cannot be edited.", field))
		}
	}

	editable := mergepatch.Document{}
	for _, field := range models.EditableFields {
		if v, ok := patch[field]; ok {
			editable[field] = v
		}
	}
	touched := editable.Fields()
	sort.Strings(touched)

	current, err := editableDocument(account)
	if err != nil {
		return nil, err
	}
	merged, rejected := s.schema.Apply(current, editable)
	for _, field := range rejected {
		verr.AddMessage(field, "This field may not be null.")
	}

	var update models.AccountSettingsUpdate
	for field, decodeErr := range mergepatch.Decode(merged, &update, models.EditableFields) {
		verr.Add(field, decodeErr.Error(), fmt.Sprintf("The value supplied for '%s' is not valid.", field))
	}
	for _, fe := range validation.Validate(update) {
		if _, ok := editable[fe.Field]; ok {
			verr.AddMessage(fe.Field, fe.Message)
		}
	}

	if _, ok := editable["language_proficiencies"]; ok {
		if code, dup := duplicateProficiency(update.LanguageProficiencies); dup {
			verr.AddMessage("language_proficiencies", fmt.Sprintf("Duplicate language proficiency %q.", code))
		}
	}

	links := account.SocialLinks
	if _, ok := editable["social_links"]; ok {
		links, err = mergeSocialLinks(account.SocialLinks, update.SocialLinks)
		if err != nil {
			verr.AddMessage("social_links", err.Error())
		}
	}

	var newEmail string
	if _, ok := editable["email"]; ok && update.Email != nil {
		if _, invalid := verr.FieldErrors["email"]; !invalid {
			newEmail, err = s.checkNewEmail(ctx, tx, account, *update.Email, verr)
			if err != nil {
				return nil, err
			}
		}
	}

	if verr.HasErrors() {
		return nil, verr
	}

	now := s.now()
	if profile, ok := profileFromUpdate(account.Profile, update, editable); ok {
		if err := tx.Accounts.UpdateProfile(ctx, account.ID, profile, now); err != nil {
			return nil, err
		}
	}
	if _, ok := editable["language_proficiencies"]; ok {
		if err := tx.Accounts.ReplaceLanguageProficiencies(ctx, account.ID, update.LanguageProficiencies); err != nil {
			return nil, err
		}
	}
	if _, ok := editable["social_links"]; ok {
		if err := tx.Accounts.ReplaceSocialLinks(ctx, account.ID, links); err != nil {
			return nil, err
		}
	}
	if newEmail != "" {
		if err := s.requestEmailChange(ctx, tx, account, newEmail, now); err != nil {
			return nil, err
		}
	}
	return touched, nil
}

// checkNewEmail returns the address to confirm, or "" with a field error
// recorded on verr.
func (s *AccountCommandService) checkNewEmail(ctx context.Context, tx *repository.Tx, account *models.Account, email string, verr *apperrors.AccountValidationError) (string, error) {
	email = strings.TrimSpace(email)
	if strings.EqualFold(email, account.Email) {
		verr.AddMessage("email", "Old and new email addresses must be different")
		return "", nil
	}
	inUse, err := tx.Accounts.EmailInUse(ctx, email, account.ID)
	if err != nil {
		return "", err
	}
	if inUse {
		verr.AddMessage("email", fmt.Sprintf("It looks like %s belongs to an existing account. Try again with a different email address.", email))
		return "", nil
	}
	return email, nil
}

// requestEmailChange stores a pending change and asks for the confirmation
// mail. The visible address only changes once the link is followed.
func (s *AccountCommandService) requestEmailChange(ctx context.Context, tx *repository.Tx, account *models.Account, email string, now time.Time) error {
	change := models.PendingEmailChange{
		UserID:        account.ID,
		NewEmail:      email,
		ActivationKey: strings.ReplaceAll(uuid.NewString(), "-", ""),
		CreatedAt:     now,
	}
	if err := tx.PendingEmails.Upsert(ctx, change); err != nil {
		return err
	}
	err := s.publisher.Publish(ctx, events.MailingEventsStream, events.EmailChangeRequested, events.EmailChangeRequestedEvent{
		Username:      account.Username,
		CurrentEmail:  account.Email,
		NewEmail:      email,
		ActivationKey: change.ActivationKey,
	})
	if err != nil {
		return &apperrors.AccountUpdateError{
			DeveloperMessage: fmt.Sprintf("Error thrown from email change request: %v", err),
			UserMessage:      msgEmailSendFailure,
		}
	}
	return nil
}

// DeactivateAccount makes the account's password permanently unusable and
// returns its settings as the requester sees them.
func (s *AccountCommandService) DeactivateAccount(ctx context.Context, cmd cqrs.DeactivateAccountCommand) (settings models.AccountSettings, err error) {
	defer func() { observe("deactivate", err) }()

	accounts := s.store.Accounts()
	account, err := accounts.GetByUsername(ctx, cmd.Username)
	if err != nil {
		return nil, err
	}
	if err := accounts.SetPassword(ctx, account.ID, utils.UnusablePassword(), s.now()); err != nil {
		return nil, err
	}
	s.views.Invalidate(ctx, account.Username)
	s.publish(ctx, events.AccountEventsStream, events.AccountDeactivated, events.AccountDeactivatedEvent{
		Username: account.Username,
		Reason:   events.DeactivatedByAdmin,
	})

	all, err := s.queries.GetAccountSettings(ctx, cqrs.GetAccountSettingsQuery{
		Requester: cmd.Requester,
		Usernames: []string{account.Username},
	})
	if err != nil {
		return nil, err
	}
	return all[0], nil
}

// RetireMailings opts the account out of every organization's mailings and
// notifies mailing integrations. Nothing is persisted if any step fails.
func (s *AccountCommandService) RetireMailings(ctx context.Context, cmd cqrs.RetireMailingsCommand) (err error) {
	defer func() { observe("retire_mailings", err) }()

	if cmd.RetiredUsername == "" {
		return apperrors.ErrUserNotFound
	}
	candidates, ok := s.retirement.LookupCandidates(cmd.Username, cmd.RetiredUsername)
	if !ok {
		return apperrors.ErrUserNotFound
	}

	return s.store.WithinTx(ctx, func(tx *repository.Tx) error {
		account, err := tx.Accounts.FindFirst(ctx, candidates)
		if err != nil {
			return err
		}

		tags, err := tx.OrgTags.ListByKey(ctx, account.ID, models.OrgTagEmailOptIn)
		if err != nil {
			return err
		}
		orgs := make([]string, 0, len(tags))
		for _, tag := range tags {
			if err := updateEmailOptIn(ctx, tx.OrgTags, account.ID, tag.Org, false); err != nil {
				return err
			}
			orgs = append(orgs, tag.Org)
		}

		return s.retireMailings.Send(ctx, events.RetireMailingsEvent{
			Username: account.Username,
			Email:    account.Email,
			Orgs:     orgs,
		})
	})
}

// updateEmailOptIn records whether the user wants mail from org.
func updateEmailOptIn(ctx context.Context, tags *repository.OrgTagRepository, userID, org string, optIn bool) error {
	value := "False"
	if optIn {
		value = "True"
	}
	return tags.Upsert(ctx, models.OrgTag{
		UserID: userID,
		Org:    org,
		Key:    models.OrgTagEmailOptIn,
		Value:  value,
	})
}

// DeactivateLogout unlinks social logins, retires the email address, makes
// the password unusable and revokes the account's tokens in one transaction.
// The account.deactivated event published afterwards is where other identity
// systems hook in.
func (s *AccountCommandService) DeactivateLogout(ctx context.Context, cmd cqrs.DeactivateLogoutCommand) (err error) {
	defer func() { observe("deactivate_logout", err) }()

	if cmd.Username == "" {
		return apperrors.ErrUserNotFound
	}

	err = s.store.WithinTx(ctx, func(tx *repository.Tx) error {
		account, err := tx.Accounts.GetByUsername(ctx, cmd.Username)
		if err != nil {
			return err
		}
		now := s.now()

		removed, err := tx.SocialAuth.DeleteByUser(ctx, account.ID)
		if err != nil {
			return err
		}
		if removed > 0 {
			log.Printf("Unlinked %d social logins from %s", removed, account.Username)
		}

		if !retirement.IsRetiredEmail(account.Email) {
			if err := tx.Accounts.UpdateEmail(ctx, account.ID, s.retirement.RetiredEmail(account.Email), now); err != nil {
				return err
			}
		}
		if err := tx.PendingEmails.DeleteByUser(ctx, account.ID); err != nil {
			return err
		}
		if err := tx.Accounts.SetPassword(ctx, account.ID, utils.UnusablePassword(), now); err != nil {
			return err
		}
		return s.revocations.Revoke(ctx, account.Username, now)
	})
	if err != nil {
		return err
	}

	s.views.Invalidate(ctx, cmd.Username)
	s.publish(ctx, events.AccountEventsStream, events.AccountDeactivated, events.AccountDeactivatedEvent{
		Username: cmd.Username,
		Reason:   events.DeactivatedByLogout,
	})
	return nil
}

// CreateAccount seeds an account with an empty profile.
func (s *AccountCommandService) CreateAccount(ctx context.Context, cmd cqrs.CreateAccountCommand) (*models.Account, error) {
	passwordHash := utils.UnusablePassword()
	if cmd.Password != "" {
		hashed, err := utils.HashPassword(cmd.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = hashed
	}
	now := s.now()
	account := &models.Account{
		ID:           utils.GenerateID("usr"),
		Username:     cmd.Username,
		Email:        cmd.Email,
		PasswordHash: passwordHash,
		IsActive:     true,
		IsStaff:      cmd.IsStaff,
		IsSuperuser:  cmd.IsSuperuser,
		DateJoined:   now,
		UpdatedAt:    now,
		Profile:      models.Profile{Name: cmd.Name},
	}
	if err := s.store.Accounts().Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// HandleAccountEvent is the Redis stream subscriber handler. It drops cached
// views changed by any instance.
func (s *AccountCommandService) HandleAccountEvent(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.AccountUpdated:
		var data events.AccountUpdatedEvent
		if err := events.DecodeData(event, &data); err != nil {
			return err
		}
		s.views.Invalidate(ctx, data.Username)
	case events.AccountDeactivated:
		var data events.AccountDeactivatedEvent
		if err := events.DecodeData(event, &data); err != nil {
			return err
		}
		log.Printf("Account %s deactivated (%s)", data.Username, data.Reason)
		s.views.Invalidate(ctx, data.Username)
	}
	return nil
}

func (s *AccountCommandService) publish(ctx context.Context, stream, eventType string, data any) {
	if err := s.publisher.Publish(ctx, stream, eventType, data); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}

// editableDocument renders the editable fields of account as a decoded JSON
// object, the target a merge patch is applied to.
func editableDocument(account *models.Account) (map[string]any, error) {
	current := models.AccountSettingsUpdate{
		Name:                  &account.Profile.Name,
		Email:                 &account.Email,
		Bio:                   account.Profile.Bio,
		Country:               account.Profile.Country,
		Gender:                account.Profile.Gender,
		Goals:                 account.Profile.Goals,
		Language:              account.Profile.Language,
		LanguageProficiencies: account.LanguageProficiencies,
		LevelOfEducation:      account.Profile.LevelOfEducation,
		MailingAddress:        account.Profile.MailingAddress,
		YearOfBirth:           account.Profile.YearOfBirth,
		SocialLinks:           account.SocialLinks,
		AccountPrivacy:        account.Profile.AccountPrivacy,
	}
	raw, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to encode account: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode account: %w", err)
	}
	return doc, nil
}

// profileFromUpdate copies the patched profile columns onto p. ok is false
// when the patch touched none of them.
func profileFromUpdate(p models.Profile, u models.AccountSettingsUpdate, patched mergepatch.Document) (models.Profile, bool) {
	touched := false
	for field := range patched {
		switch field {
		case "name":
			if u.Name == nil {
				continue
			}
			p.Name = *u.Name
		case "bio":
			p.Bio = u.Bio
		case "country":
			p.Country = u.Country
		case "gender":
			p.Gender = u.Gender
		case "goals":
			p.Goals = u.Goals
		case "language":
			p.Language = u.Language
		case "level_of_education":
			p.LevelOfEducation = u.LevelOfEducation
		case "mailing_address":
			p.MailingAddress = u.MailingAddress
		case "year_of_birth":
			p.YearOfBirth = u.YearOfBirth
		case "account_privacy":
			p.AccountPrivacy = u.AccountPrivacy
		default:
			continue
		}
		touched = true
	}
	return p, touched
}

func duplicateProficiency(proficiencies []models.LanguageProficiency) (string, bool) {
	seen := map[string]bool{}
	for _, lp := range proficiencies {
		if seen[lp.Code] {
			return lp.Code, true
		}
		seen[lp.Code] = true
	}
	return "", false
}
