package repository

import (
	"context"
	"database/sql"

	"github.com/eaglelearn/account-api/shared/models"
	"github.com/pkg/errors"
)

// ErrNoPendingEmail is returned when an account has no email change awaiting
// confirmation.
var ErrNoPendingEmail = errors.New("no pending email change")

type PendingEmailRepository struct {
	db DBTX
}

func NewPendingEmailRepository(db DBTX) *PendingEmailRepository {
	return &PendingEmailRepository{db: db}
}

// Upsert records change, replacing any earlier request for the same user.
func (r *PendingEmailRepository) Upsert(ctx context.Context, change models.PendingEmailChange) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_email_changes (user_id, new_email, activation_key, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			new_email = excluded.new_email,
			activation_key = excluded.activation_key,
			created_at = excluded.created_at
	`, change.UserID, change.NewEmail, change.ActivationKey, change.CreatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "failed to store pending email change")
	}
	return nil
}

func (r *PendingEmailRepository) GetByUser(ctx context.Context, userID string) (*models.PendingEmailChange, error) {
	var change models.PendingEmailChange
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, new_email, activation_key, created_at
		FROM pending_email_changes
		WHERE user_id = $1
	`, userID).Scan(&change.UserID, &change.NewEmail, &change.ActivationKey, &change.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPendingEmail
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pending email change")
	}
	return &change, nil
}

// DeleteByUser drops any pending change for userID.
func (r *PendingEmailRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_email_changes WHERE user_id = $1`, userID)
	return errors.Wrap(err, "failed to delete pending email change")
}
