package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SetNXClient 是 Deduper 需要的 redis 子集，*redis.Client 满足该接口
type SetNXClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type Deduper struct {
	rdb      SetNXClient
	ttl      time.Duration
	failOpen bool
	logger   *zap.Logger
}

// NewDeduper creates a deduper. failOpen decides the answer when redis is unreachable:
// true lets the caller proceed, false treats the key as already taken.
func NewDeduper(rdb SetNXClient, ttl time.Duration, failOpen bool, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduper{
		rdb:      rdb,
		ttl:      ttl,
		failOpen: failOpen,
		logger:   logger,
	}
}

// AcquireOnce returns true if this is the FIRST time namespace+key is seen within ttl.
func (d *Deduper) AcquireOnce(ctx context.Context, namespace, key string) bool {
	dedupKey := dedupKey(namespace, key)

	ok, err := d.rdb.SetNX(ctx, dedupKey, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Bool("fail_open", d.failOpen),
			zap.Error(err),
		)
		return d.failOpen
	}

	if !ok {
		d.logger.Info("Skipped duplicated key",
			zap.String("namespace", namespace),
			zap.String("dedup_key", dedupKey),
		)
	}

	return ok
}

// Release 处理失败需要重投时释放 key，下一次投递才能重新获取
func (d *Deduper) Release(ctx context.Context, namespace, key string) {
	if err := d.rdb.Del(ctx, dedupKey(namespace, key)).Err(); err != nil {
		d.logger.Warn("Redis dedup release failed",
			zap.String("namespace", namespace),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func dedupKey(namespace, key string) string {
	return "dedup:" + namespace + ":" + key
}
