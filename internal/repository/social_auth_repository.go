package repository

import (
	"context"

	"github.com/eaglelearn/account-api/shared/models"
	"github.com/pkg/errors"
)

// SocialAuthRepository stores links between accounts and third-party
// identity providers.
type SocialAuthRepository struct {
	db DBTX
}

func NewSocialAuthRepository(db DBTX) *SocialAuthRepository {
	return &SocialAuthRepository{db: db}
}

func (r *SocialAuthRepository) Create(ctx context.Context, link models.SocialAuth) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO social_auth (id, user_id, provider, uid) VALUES ($1, $2, $3, $4)`,
		link.ID, link.UserID, link.Provider, link.UID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(ErrDuplicate, "%s identity %q is already linked", link.Provider, link.UID)
		}
		return errors.Wrap(err, "failed to link social auth")
	}
	return nil
}

func (r *SocialAuthRepository) ListByUser(ctx context.Context, userID string) ([]models.SocialAuth, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, provider, uid FROM social_auth WHERE user_id = $1 ORDER BY provider, uid`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query social auth")
	}
	defer rows.Close()

	var links []models.SocialAuth
	for rows.Next() {
		var link models.SocialAuth
		if err := rows.Scan(&link.ID, &link.UserID, &link.Provider, &link.UID); err != nil {
			return nil, errors.Wrap(err, "failed to scan social auth")
		}
		links = append(links, link)
	}
	return links, errors.Wrap(rows.Err(), "failed to iterate social auth")
}

// DeleteByUser unlinks every provider from userID and returns how many links
// were removed.
func (r *SocialAuthRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM social_auth WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete social auth")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to check rows affected")
	}
	return n, nil
}
