package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const runLockKey = "newshub:aggregate:lock"

// 只有持有者才能释放锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireRunLock 用 SET NX 防止多个实例同时执行采集。
// 未配置 Redis 时总是成功；返回的 release 可以重复调用。
func (s *Store) AcquireRunLock(ctx context.Context, ttl time.Duration) (release func(), ok bool, err error) {
	if s.Redis == nil {
		return func() {}, true, nil
	}

	token := uuid.NewString()
	ok, err = s.Redis.SetNX(ctx, runLockKey, token, ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(ctx, s.Redis, []string{runLockKey}, token).Err(); err != nil && err != redis.Nil {
			s.logger.Warn("release run lock failed", "err", err)
		}
	}
	return release, true, nil
}
