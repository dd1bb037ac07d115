package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eaglelearn/account-api/shared/apperrors"
	"github.com/eaglelearn/account-api/shared/models"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "accounts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(ctx, db))
	return NewStore(db)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func testAccount(id, username string) *models.Account {
	joined := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Account{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		IsActive:     true,
		DateJoined:   joined,
		UpdatedAt:    joined,
		Profile: models.Profile{
			Name:        "Test " + username,
			Goals:       strPtr("learn go"),
			YearOfBirth: intPtr(1990),
		},
		LanguageProficiencies: []models.LanguageProficiency{{Code: "fr"}, {Code: "en"}},
		SocialLinks:           []models.SocialLink{{Platform: "twitter", SocialLink: "https://twitter.com/" + username}},
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.Error(t, err)

	_, err = Open(context.Background(), DriverSQLite, "")
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, Migrate(context.Background(), store.DB()))
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Accounts()

	require.NoError(t, repo.Create(ctx, testAccount("usr-0000000001", "alice")))

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "Test alice", got.Profile.Name)
	require.NotNil(t, got.Profile.Goals)
	assert.Equal(t, "learn go", *got.Profile.Goals)
	assert.Nil(t, got.Profile.Bio)
	require.NotNil(t, got.Profile.YearOfBirth)
	assert.Equal(t, 1990, *got.Profile.YearOfBirth)
	assert.True(t, got.DateJoined.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, []models.LanguageProficiency{{Code: "en"}, {Code: "fr"}}, got.LanguageProficiencies)
	assert.Equal(t, "twitter", got.SocialLinks[0].Platform)
	assert.True(t, got.IsActive)
	assert.False(t, got.IsStaff)
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Accounts()
	require.NoError(t, repo.Create(ctx, testAccount("usr-0000000001", "alice")))

	err := repo.Create(ctx, testAccount("usr-0000000002", "alice"))
	assert.True(t, errors.Is(err, ErrDuplicate), "got %v", err)
}

func TestGetByUsernameNotFound(t *testing.T) {
	_, err := newTestStore(t).Accounts().GetByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestGetByUsernamesAndFindFirst(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Accounts()
	require.NoError(t, repo.Create(ctx, testAccount("usr-0000000001", "alice")))
	require.NoError(t, repo.Create(ctx, testAccount("usr-0000000002", "bob")))

	found, err := repo.GetByUsernames(ctx, []string{"alice", "carol", "bob"})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Len(t, found["bob"].LanguageProficiencies, 2)

	first, err := repo.FindFirst(ctx, []string{"carol", "bob", "alice"})
	require.NoError(t, err)
	assert.Equal(t, "bob", first.Username)

	_, err = repo.FindFirst(ctx, []string{"carol"})
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestUpdateProfileAndRelations(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Accounts()
	account := testAccount("usr-0000000001", "alice")
	require.NoError(t, repo.Create(ctx, account))

	profile := account.Profile
	profile.Goals = nil
	profile.Country = strPtr("GB")
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateProfile(ctx, account.ID, profile, at))
	require.NoError(t, repo.ReplaceLanguageProficiencies(ctx, account.ID, nil))
	require.NoError(t, repo.ReplaceSocialLinks(ctx, account.ID, []models.SocialLink{
		{Platform: "linkedin", SocialLink: "https://www.linkedin.com/in/alice"},
	}))

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, got.Profile.Goals)
	assert.Equal(t, "GB", *got.Profile.Country)
	assert.Empty(t, got.LanguageProficiencies)
	assert.Equal(t, []models.SocialLink{{Platform: "linkedin", SocialLink: "https://www.linkedin.com/in/alice"}}, got.SocialLinks)
	assert.True(t, got.UpdatedAt.Equal(at))

	err = repo.UpdateProfile(ctx, "usr-missing", profile, at)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
}

func TestPasswordAndEmail(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Accounts()
	require.NoError(t, repo.Create(ctx, testAccount("usr-0000000001", "alice")))
	require.NoError(t, repo.Create(ctx, testAccount("usr-0000000002", "bob")))
	now := time.Now()

	require.NoError(t, repo.SetPassword(ctx, "usr-0000000001", "!unusable", now))
	inUse, err := repo.EmailInUse(ctx, "BOB@example.com", "usr-0000000001")
	require.NoError(t, err)
	assert.True(t, inUse)

	inUse, err = repo.EmailInUse(ctx, "alice@example.com", "usr-0000000001")
	require.NoError(t, err)
	assert.False(t, inUse, "own address does not count")

	err = repo.UpdateEmail(ctx, "usr-0000000001", "bob@example.com", now)
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, repo.UpdateEmail(ctx, "usr-0000000001", "new@example.com", now))
	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)
	assert.Equal(t, "!unusable", got.PasswordHash)
}

func TestOrgTags(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Accounts().Create(ctx, testAccount("usr-0000000001", "alice")))
	tags := NewOrgTagRepository(store.DB())

	require.NoError(t, tags.Upsert(ctx, models.OrgTag{UserID: "usr-0000000001", Org: "MITx", Key: models.OrgTagEmailOptIn, Value: "True"}))
	require.NoError(t, tags.Upsert(ctx, models.OrgTag{UserID: "usr-0000000001", Org: "HarvardX", Key: models.OrgTagEmailOptIn, Value: "True"}))
	require.NoError(t, tags.Upsert(ctx, models.OrgTag{UserID: "usr-0000000001", Org: "MITx", Key: "other", Value: "x"}))
	require.NoError(t, tags.Upsert(ctx, models.OrgTag{UserID: "usr-0000000001", Org: "MITx", Key: models.OrgTagEmailOptIn, Value: "False"}))

	got, err := tags.ListByKey(ctx, "usr-0000000001", models.OrgTagEmailOptIn)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "HarvardX", got[0].Org)
	assert.Equal(t, "False", got[1].Value)
}

func TestSocialAuth(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Accounts().Create(ctx, testAccount("usr-0000000001", "alice")))
	links := NewSocialAuthRepository(store.DB())

	require.NoError(t, links.Create(ctx, models.SocialAuth{ID: "soc-1", UserID: "usr-0000000001", Provider: "google-oauth2", UID: "alice@gmail.com"}))
	require.NoError(t, links.Create(ctx, models.SocialAuth{ID: "soc-2", UserID: "usr-0000000001", Provider: "github", UID: "alice"}))
	err := links.Create(ctx, models.SocialAuth{ID: "soc-3", UserID: "usr-0000000001", Provider: "github", UID: "alice"})
	assert.ErrorIs(t, err, ErrDuplicate)

	n, err := links.DeleteByUser(ctx, "usr-0000000001")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	remaining, err := links.ListByUser(ctx, "usr-0000000001")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestPendingEmails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Accounts().Create(ctx, testAccount("usr-0000000001", "alice")))
	pending := NewPendingEmailRepository(store.DB())

	_, err := pending.GetByUser(ctx, "usr-0000000001")
	assert.ErrorIs(t, err, ErrNoPendingEmail)

	now := time.Now()
	require.NoError(t, pending.Upsert(ctx, models.PendingEmailChange{UserID: "usr-0000000001", NewEmail: "a@x.org", ActivationKey: "k1", CreatedAt: now}))
	require.NoError(t, pending.Upsert(ctx, models.PendingEmailChange{UserID: "usr-0000000001", NewEmail: "b@x.org", ActivationKey: "k2", CreatedAt: now}))

	got, err := pending.GetByUser(ctx, "usr-0000000001")
	require.NoError(t, err)
	assert.Equal(t, "b@x.org", got.NewEmail)
	assert.Equal(t, "k2", got.ActivationKey)

	require.NoError(t, pending.DeleteByUser(ctx, "usr-0000000001"))
	_, err = pending.GetByUser(ctx, "usr-0000000001")
	assert.ErrorIs(t, err, ErrNoPendingEmail)
}

func TestWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Accounts().Create(ctx, testAccount("usr-0000000001", "alice")))
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx *Tx) error {
		if err := tx.Accounts.SetPassword(ctx, "usr-0000000001", "!changed", time.Now()); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Accounts().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "!changed", got.PasswordHash)

	require.NoError(t, store.WithinTx(ctx, func(tx *Tx) error {
		return tx.Accounts.SetPassword(ctx, "usr-0000000001", "!changed", time.Now())
	}))
	got, err = store.Accounts().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "!changed", got.PasswordHash)
}

func TestAccountReadRepository(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Accounts().Create(ctx, testAccount("usr-0000000001", "alice")))

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	reads := NewAccountReadRepository(store.DB(), client, time.Minute)

	views, err := reads.LoadViews(ctx, []string{"alice", "ghost"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Test alice", views["alice"].Name)
	assert.True(t, views["alice"].HasUsablePassword)
	assert.True(t, mr.Exists(accountViewKeyPrefix+"alice"))

	// A write that bypasses the cache is not visible until invalidation.
	profile := models.Profile{Name: "Renamed"}
	require.NoError(t, store.Accounts().UpdateProfile(ctx, "usr-0000000001", profile, time.Now()))

	views, err = reads.LoadViews(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, "Test alice", views["alice"].Name)

	reads.Invalidate(ctx, "alice")
	views, err = reads.LoadViews(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", views["alice"].Name)
}
