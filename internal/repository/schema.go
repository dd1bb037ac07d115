package repository

import (
	"context"

	"github.com/pkg/errors"
)

// schema is portable between PostgreSQL and SQLite. Timestamps are stored in
// UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            VARCHAR(32)  PRIMARY KEY,
		username      VARCHAR(150) NOT NULL UNIQUE,
		email         VARCHAR(254) NOT NULL UNIQUE,
		password_hash VARCHAR(128) NOT NULL,
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		is_staff      BOOLEAN      NOT NULL DEFAULT FALSE,
		is_superuser  BOOLEAN      NOT NULL DEFAULT FALSE,
		date_joined   TIMESTAMP    NOT NULL,
		updated_at    TIMESTAMP    NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id                   VARCHAR(32)  PRIMARY KEY REFERENCES users(id),
		name                      VARCHAR(255) NOT NULL DEFAULT '',
		bio                       VARCHAR(300),
		country                   VARCHAR(2),
		gender                    VARCHAR(6),
		goals                     TEXT,
		language                  VARCHAR(255),
		level_of_education        VARCHAR(6),
		mailing_address           TEXT,
		year_of_birth             INTEGER,
		account_privacy           VARCHAR(16),
		profile_image_uploaded_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS language_proficiencies (
		user_id VARCHAR(32) NOT NULL REFERENCES users(id),
		code    VARCHAR(16) NOT NULL,
		PRIMARY KEY (user_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS social_links (
		user_id     VARCHAR(32)  NOT NULL REFERENCES users(id),
		platform    VARCHAR(32)  NOT NULL,
		social_link VARCHAR(500) NOT NULL,
		PRIMARY KEY (user_id, platform)
	)`,
	`CREATE TABLE IF NOT EXISTS user_org_tags (
		user_id   VARCHAR(32)  NOT NULL REFERENCES users(id),
		org       VARCHAR(255) NOT NULL,
		tag_key   VARCHAR(255) NOT NULL,
		tag_value VARCHAR(255) NOT NULL,
		PRIMARY KEY (user_id, org, tag_key)
	)`,
	`CREATE TABLE IF NOT EXISTS social_auth (
		id       VARCHAR(32)  PRIMARY KEY,
		user_id  VARCHAR(32)  NOT NULL REFERENCES users(id),
		provider VARCHAR(32)  NOT NULL,
		uid      VARCHAR(255) NOT NULL,
		UNIQUE (provider, uid)
	)`,
	`CREATE TABLE IF NOT EXISTS pending_email_changes (
		user_id        VARCHAR(32)  PRIMARY KEY REFERENCES users(id),
		new_email      VARCHAR(254) NOT NULL,
		activation_key VARCHAR(64)  NOT NULL UNIQUE,
		created_at     TIMESTAMP    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_social_auth_user_id ON social_auth (user_id)`,
}

// Migrate creates any missing tables. It is safe to run repeatedly.
func Migrate(ctx context.Context, db DBTX) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to apply schema")
		}
	}
	return nil
}
