package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/eaglelearn/account-api/shared/apperrors"
	"github.com/eaglelearn/account-api/shared/models"
	"github.com/pkg/errors"
)

// AccountRepository reads and writes accounts in the relational store. It
// runs against the pool or a transaction alike.
type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

const selectAccount = `
	SELECT u.id, u.username, u.email, u.password_hash, u.is_active, u.is_staff, u.is_superuser,
		   u.date_joined, u.updated_at,
		   p.name, p.bio, p.country, p.gender, p.goals, p.language, p.level_of_education,
		   p.mailing_address, p.year_of_birth, p.account_privacy, p.profile_image_uploaded_at
	FROM users u
	LEFT JOIN user_profiles p ON p.user_id = u.id
`

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, is_active, is_staff, is_superuser,
			date_joined, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.IsActive, account.IsStaff, account.IsSuperuser,
		account.DateJoined.UTC(), account.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(ErrDuplicate, "username %q or email %q already exists", account.Username, account.Email)
		}
		return errors.Wrap(err, "failed to create user")
	}

	if err := r.insertProfile(ctx, account.ID, account.Profile); err != nil {
		return err
	}
	if err := r.ReplaceLanguageProficiencies(ctx, account.ID, account.LanguageProficiencies); err != nil {
		return err
	}
	return r.ReplaceSocialLinks(ctx, account.ID, account.SocialLinks)
}

func (r *AccountRepository) insertProfile(ctx context.Context, userID string, p models.Profile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, name, bio, country, gender, goals, language,
			level_of_education, mailing_address, year_of_birth, account_privacy, profile_image_uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		userID, p.Name, nullString(p.Bio), nullString(p.Country), nullString(p.Gender),
		nullString(p.Goals), nullString(p.Language), nullString(p.LevelOfEducation),
		nullString(p.MailingAddress), nullInt(p.YearOfBirth), nullString(p.AccountPrivacy),
		nullTime(p.ProfileImageUploadedAt),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create user profile")
	}
	return nil
}

// GetByUsername fetches the full write model, including relations.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	accounts, err := r.GetByUsernames(ctx, []string{username})
	if err != nil {
		return nil, err
	}
	account, ok := accounts[username]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return account, nil
}

// FindFirst returns the account stored under the first of usernames that
// exists.
func (r *AccountRepository) FindFirst(ctx context.Context, usernames []string) (*models.Account, error) {
	accounts, err := r.GetByUsernames(ctx, usernames)
	if err != nil {
		return nil, err
	}
	for _, username := range usernames {
		if account, ok := accounts[username]; ok {
			return account, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

// GetByUsernames returns the accounts that exist, keyed by username.
func (r *AccountRepository) GetByUsernames(ctx context.Context, usernames []string) (map[string]*models.Account, error) {
	found := make(map[string]*models.Account, len(usernames))
	if len(usernames) == 0 {
		return found, nil
	}

	rows, err := r.db.QueryContext(ctx,
		selectAccount+` WHERE u.username IN (`+placeholders(1, len(usernames))+`)`,
		stringArgs(usernames)...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query users")
	}
	byID := map[string]*models.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		found[account.Username] = account
		byID[account.ID] = account
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "failed to iterate users")
	}
	rows.Close()

	if err := r.loadRelations(ctx, byID); err != nil {
		return nil, err
	}
	return found, nil
}

// LoadViews returns read models for the usernames that exist, bypassing
// any cache.
func (r *AccountRepository) LoadViews(ctx context.Context, usernames []string) (map[string]*models.AccountView, error) {
	accounts, err := r.GetByUsernames(ctx, usernames)
	if err != nil {
		return nil, err
	}
	views := make(map[string]*models.AccountView, len(accounts))
	for username, account := range accounts {
		views[username] = account.View()
	}
	return views, nil
}

func scanAccount(rows *sql.Rows) (*models.Account, error) {
	var (
		a          models.Account
		name       sql.NullString
		bio        sql.NullString
		country    sql.NullString
		gender     sql.NullString
		goals      sql.NullString
		language   sql.NullString
		loe        sql.NullString
		mail       sql.NullString
		priv       sql.NullString
		yob        sql.NullInt64
		uploadedAt sql.NullTime
	)
	err := rows.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.IsActive, &a.IsStaff, &a.IsSuperuser,
		&a.DateJoined, &a.UpdatedAt,
		&name, &bio, &country, &gender, &goals, &language, &loe, &mail, &yob, &priv, &uploadedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan user")
	}
	a.Profile = models.Profile{
		Name:             name.String,
		Bio:              stringPtr(bio),
		Country:          stringPtr(country),
		Gender:           stringPtr(gender),
		Goals:            stringPtr(goals),
		Language:         stringPtr(language),
		LevelOfEducation: stringPtr(loe),
		MailingAddress:   stringPtr(mail),
		AccountPrivacy:   stringPtr(priv),
	}
	if yob.Valid {
		v := int(yob.Int64)
		a.Profile.YearOfBirth = &v
	}
	if uploadedAt.Valid {
		t := uploadedAt.Time.UTC()
		a.Profile.ProfileImageUploadedAt = &t
	}
	a.DateJoined = a.DateJoined.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	a.LanguageProficiencies = []models.LanguageProficiency{}
	a.SocialLinks = []models.SocialLink{}
	return &a, nil
}

func (r *AccountRepository) loadRelations(ctx context.Context, byID map[string]*models.Account) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	in := placeholders(1, len(ids))

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, code FROM language_proficiencies WHERE user_id IN (`+in+`) ORDER BY code`,
		stringArgs(ids)...,
	)
	if err != nil {
		return errors.Wrap(err, "failed to query language proficiencies")
	}
	for rows.Next() {
		var userID string
		var lp models.LanguageProficiency
		if err := rows.Scan(&userID, &lp.Code); err != nil {
			rows.Close()
			return errors.Wrap(err, "failed to scan language proficiency")
		}
		byID[userID].LanguageProficiencies = append(byID[userID].LanguageProficiencies, lp)
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx,
		`SELECT user_id, platform, social_link FROM social_links WHERE user_id IN (`+in+`) ORDER BY platform`,
		stringArgs(ids)...,
	)
	if err != nil {
		return errors.Wrap(err, "failed to query social links")
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		var link models.SocialLink
		if err := rows.Scan(&userID, &link.Platform, &link.SocialLink); err != nil {
			return errors.Wrap(err, "failed to scan social link")
		}
		byID[userID].SocialLinks = append(byID[userID].SocialLinks, link)
	}
	return errors.Wrap(rows.Err(), "failed to iterate social links")
}

// UpdateProfile writes every profile column of userID.
func (r *AccountRepository) UpdateProfile(ctx context.Context, userID string, p models.Profile, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_profiles
		SET name = $2, bio = $3, country = $4, gender = $5, goals = $6, language = $7,
			level_of_education = $8, mailing_address = $9, year_of_birth = $10, account_privacy = $11
		WHERE user_id = $1
	`,
		userID, p.Name, nullString(p.Bio), nullString(p.Country), nullString(p.Gender),
		nullString(p.Goals), nullString(p.Language), nullString(p.LevelOfEducation),
		nullString(p.MailingAddress), nullInt(p.YearOfBirth), nullString(p.AccountPrivacy),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update user profile")
	}
	if err := requireRow(result); err != nil {
		return err
	}
	return r.touch(ctx, userID, at)
}

func (r *AccountRepository) ReplaceLanguageProficiencies(ctx context.Context, userID string, proficiencies []models.LanguageProficiency) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM language_proficiencies WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "failed to clear language proficiencies")
	}
	for _, lp := range proficiencies {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO language_proficiencies (user_id, code) VALUES ($1, $2)`,
			userID, lp.Code,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errors.Wrapf(ErrDuplicate, "language proficiency %q", lp.Code)
			}
			return errors.Wrap(err, "failed to insert language proficiency")
		}
	}
	return nil
}

func (r *AccountRepository) ReplaceSocialLinks(ctx context.Context, userID string, links []models.SocialLink) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM social_links WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "failed to clear social links")
	}
	for _, link := range links {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO social_links (user_id, platform, social_link) VALUES ($1, $2, $3)`,
			userID, link.Platform, link.SocialLink,
		)
		if err != nil {
			return errors.Wrap(err, "failed to insert social link")
		}
	}
	return nil
}

func (r *AccountRepository) SetPassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, passwordHash, at.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to set password")
	}
	return requireRow(result)
}

func (r *AccountRepository) UpdateEmail(ctx context.Context, userID, email string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, updated_at = $3 WHERE id = $1`,
		userID, email, at.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(ErrDuplicate, "email %q", email)
		}
		return errors.Wrap(err, "failed to update email")
	}
	return requireRow(result)
}

// EmailInUse reports whether another account already owns email.
func (r *AccountRepository) EmailInUse(ctx context.Context, email, exceptUserID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) AND id <> $2)`,
		email, exceptUserID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check email")
	}
	return exists, nil
}

func (r *AccountRepository) touch(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET updated_at = $2 WHERE id = $1`, userID, at.UTC())
	return errors.Wrap(err, "failed to touch user")
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check rows affected")
	}
	if rows == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
