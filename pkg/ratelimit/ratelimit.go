// Package ratelimit enforces per-shop admission limits on incoming
// webhook deliveries.
package ratelimit

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

func NewMemoryStore() limiter.Store {
	return memory.NewStore()
}

func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis URL")
	}
	client := redis.NewClient(opts)
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: "ratelimit:shop",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create redis store")
	}
	return store, nil
}

// ShopLimiter counts deliveries per shop domain over a fixed window.
// Once the window rolls over the shop's budget is restored in full.
type ShopLimiter struct {
	limiter *limiter.Limiter
}

func NewShopLimiter(store limiter.Store, limit int64, period time.Duration) *ShopLimiter {
	if period <= 0 {
		period = time.Minute
	}
	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}
	return &ShopLimiter{limiter: limiter.New(store, rate)}
}

// Allow consumes one slot for the shop. It returns ErrLimitExceeded when
// the shop's window is exhausted.
func (l *ShopLimiter) Allow(ctx context.Context, shopDomain string) error {
	lctx, err := l.limiter.Get(ctx, shopDomain)
	if err != nil {
		return errors.Wrap(err, "rate limiter store error")
	}
	if lctx.Reached {
		return ErrLimitExceeded
	}
	return nil
}

// Remaining reports how many deliveries the shop may still send in the
// current window. It does not consume a slot.
func (l *ShopLimiter) Remaining(ctx context.Context, shopDomain string) (int64, error) {
	lctx, err := l.limiter.Peek(ctx, shopDomain)
	if err != nil {
		return 0, errors.Wrap(err, "rate limiter store error")
	}
	return lctx.Remaining, nil
}
