package repository

import (
	"context"
	"time"

	"github.com/eaglelearn/account-api/shared/models"
	sharedredis "github.com/eaglelearn/account-api/shared/redis"
	goredis "github.com/redis/go-redis/v9"
)

const accountViewKeyPrefix = "account:view:"

// AccountReadRepository serves account views from Redis, falling back to the
// relational store on a miss.
type AccountReadRepository struct {
	accounts *AccountRepository
	cache    *sharedredis.ViewCache[models.AccountView]
}

func NewAccountReadRepository(db DBTX, redisClient *goredis.Client, ttl time.Duration) *AccountReadRepository {
	return &AccountReadRepository{
		accounts: NewAccountRepository(db),
		cache:    sharedredis.NewViewCache[models.AccountView](redisClient, accountViewKeyPrefix, ttl),
	}
}

// LoadViews returns views for the usernames that exist.
func (r *AccountReadRepository) LoadViews(ctx context.Context, usernames []string) (map[string]*models.AccountView, error) {
	views := r.cache.GetMany(ctx, usernames)

	var misses []string
	for _, username := range usernames {
		if _, ok := views[username]; !ok {
			misses = append(misses, username)
		}
	}
	if len(misses) == 0 {
		return views, nil
	}

	loaded, err := r.accounts.LoadViews(ctx, misses)
	if err != nil {
		return nil, err
	}
	for username, view := range loaded {
		views[username] = view
		r.cache.Set(ctx, username, view)
	}
	return views, nil
}

// Invalidate drops cached views. Called after every committed mutation.
func (r *AccountReadRepository) Invalidate(ctx context.Context, usernames ...string) {
	r.cache.Delete(ctx, usernames...)
}
