package repository

import (
	"context"

	"github.com/eaglelearn/account-api/shared/models"
	"github.com/pkg/errors"
)

type OrgTagRepository struct {
	db DBTX
}

func NewOrgTagRepository(db DBTX) *OrgTagRepository {
	return &OrgTagRepository{db: db}
}

// ListByKey returns every org's value of key for userID, ordered by org.
func (r *OrgTagRepository) ListByKey(ctx context.Context, userID, key string) ([]models.OrgTag, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, org, tag_key, tag_value
		FROM user_org_tags
		WHERE user_id = $1 AND tag_key = $2
		ORDER BY org
	`, userID, key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query org tags")
	}
	defer rows.Close()

	var tags []models.OrgTag
	for rows.Next() {
		var tag models.OrgTag
		if err := rows.Scan(&tag.UserID, &tag.Org, &tag.Key, &tag.Value); err != nil {
			return nil, errors.Wrap(err, "failed to scan org tag")
		}
		tags = append(tags, tag)
	}
	return tags, errors.Wrap(rows.Err(), "failed to iterate org tags")
}

func (r *OrgTagRepository) Upsert(ctx context.Context, tag models.OrgTag) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_org_tags (user_id, org, tag_key, tag_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, org, tag_key) DO UPDATE SET tag_value = excluded.tag_value
	`, tag.UserID, tag.Org, tag.Key, tag.Value)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert org tag %s/%s", tag.Org, tag.Key)
	}
	return nil
}
