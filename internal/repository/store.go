package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Store owns the connection pool and hands out repositories bound to it or
// to a transaction.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Accounts() *AccountRepository {
	return NewAccountRepository(s.db)
}

// Tx exposes the repositories of one transaction.
type Tx struct {
	Accounts      *AccountRepository
	OrgTags       *OrgTagRepository
	SocialAuth    *SocialAuthRepository
	PendingEmails *PendingEmailRepository
}

func newTx(db DBTX) *Tx {
	return &Tx{
		Accounts:      NewAccountRepository(db),
		OrgTags:       NewOrgTagRepository(db),
		SocialAuth:    NewSocialAuthRepository(db),
		PendingEmails: NewPendingEmailRepository(db),
	}
}

// WithinTx runs fn in a transaction. It commits when fn returns nil and rolls
// back otherwise; fn's error is returned unchanged.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(newTx(sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}
