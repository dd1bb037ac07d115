package query

import (
	"context"
	"strings"

	"github.com/eaglelearn/account-api/shared/apperrors"
	"github.com/eaglelearn/account-api/shared/cqrs"
	"github.com/eaglelearn/account-api/shared/models"
	"github.com/eaglelearn/account-api/shared/visibility"
)

// AccountLoader loads account views by username. Missing accounts are absent
// from the result.
type AccountLoader interface {
	LoadViews(ctx context.Context, usernames []string) (map[string]*models.AccountView, error)
}

// AccountQueryService resolves the settings callers are allowed to see.
type AccountQueryService struct {
	loader AccountLoader
	policy *visibility.Policy
}

func NewAccountQueryService(loader AccountLoader, policy *visibility.Policy) *AccountQueryService {
	return &AccountQueryService{loader: loader, policy: policy}
}

// WithLoader returns a copy reading through loader, used to re-read inside a
// transaction.
func (s *AccountQueryService) WithLoader(loader AccountLoader) *AccountQueryService {
	return &AccountQueryService{loader: loader, policy: s.policy}
}

// GetAccountSettings returns one settings map per requested username, in
// request order. It fails with apperrors.ErrUserNotFound if any is missing.
func (s *AccountQueryService) GetAccountSettings(ctx context.Context, q cqrs.GetAccountSettingsQuery) ([]models.AccountSettings, error) {
	usernames := q.Usernames
	if len(usernames) == 0 {
		usernames = []string{q.Requester.Username}
	}

	views, err := s.loader.LoadViews(ctx, usernames)
	if err != nil {
		return nil, err
	}

	settings := make([]models.AccountSettings, 0, len(usernames))
	for _, username := range usernames {
		view, ok := views[username]
		if !ok {
			return nil, apperrors.ErrUserNotFound
		}
		settings = append(settings, s.policy.Settings(view, q.Requester, q.View))
	}
	return settings, nil
}

// ParseUsernames splits a comma-separated list, trimming entries and dropping
// empty ones and repeats.
func ParseUsernames(raw string) []string {
	var usernames []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		username := strings.TrimSpace(part)
		if username == "" || seen[username] {
			continue
		}
		seen[username] = true
		usernames = append(usernames, username)
	}
	return usernames
}
