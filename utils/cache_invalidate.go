package utils

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Key prefixes shared with middlewares.CacheKeyFrom.
const (
	CacheEventsList = "cache:events:list:"
	CacheEventItem  = "cache:events:item:"
	CacheTrending   = "cache:events:trending:"
	CacheOrganizers = "cache:organizers:"
)

type CacheInvalidator struct{ rdb *redis.Client }

func NewCacheInvalidator(rdb *redis.Client) *CacheInvalidator { return &CacheInvalidator{rdb} }

func (ci *CacheInvalidator) purge(ctx context.Context, pattern string) {
	if ci == nil || ci.rdb == nil {
		return
	}
	iter := ci.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		_ = ci.rdb.Del(ctx, iter.Val()).Err()
	}
}

// PurgeEventsList drops cached browse and trending pages.
func (ci *CacheInvalidator) PurgeEventsList(ctx context.Context) {
	ci.purge(ctx, CacheEventsList+"*")
	ci.purge(ctx, CacheTrending+"*")
}

// Item keys embed the raw event id, so a single event can be dropped.
func (ci *CacheInvalidator) PurgeEventItem(ctx context.Context, id string) {
	ci.purge(ctx, CacheEventItem+id+":*")
}

func (ci *CacheInvalidator) PurgeOrganizers(ctx context.Context) {
	ci.purge(ctx, CacheOrganizers+"*")
}

// PurgeEvent is the common case after any write touching one event.
func (ci *CacheInvalidator) PurgeEvent(ctx context.Context, id string) {
	ci.PurgeEventsList(ctx)
	ci.PurgeEventItem(ctx, id)
}
