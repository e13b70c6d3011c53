package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// New membuat client dengan timeout pendek. Redis di sini cuma cache dan
// dedup; kalau lambat lebih baik lewati daripada menahan request path.
func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}
