package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	sharedRedis "github.com/Kirya343/WorkSwapCore-sub000/pkg/redis"
)

// 仅当值仍为 ARGV[1] 时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// 仅当值仍为 ARGV[1] 时续期
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisRegistry 跨节点注册表
// Key: workswap:ws:session:{userId} -> sessionId，SET NX PX 占用，Lua 比较后删除
type RedisRegistry struct {
	rdb    *redis.Client
	lease  time.Duration
	logger *slog.Logger
}

// NewRedisRegistry 创建 Redis 注册表
// 节点崩溃后占用只能靠过期清理，因此 lease 为 0 时使用默认租期
func NewRedisRegistry(rdb *redis.Client, lease time.Duration) *RedisRegistry {
	if lease <= 0 {
		lease = sharedRedis.DefaultSessionLease
	}
	return &RedisRegistry{
		rdb:    rdb,
		lease:  lease,
		logger: slog.Default(),
	}
}

func (r *RedisRegistry) TryAcquire(ctx context.Context, userID int64, sessionID string) (bool, error) {
	key := sharedRedis.BuildSessionKey(userID)

	ok, err := r.rdb.SetNX(ctx, key, sessionID, r.lease).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	holder, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// 占用刚好过期或被释放，再试一次
			return r.rdb.SetNX(ctx, key, sessionID, r.lease).Result()
		}
		return false, err
	}
	if holder == sessionID {
		return true, nil
	}
	r.logger.Debug("Session already held", "user_id", userID, "holder", holder, "session_id", sessionID)
	return false, nil
}

func (r *RedisRegistry) Release(ctx context.Context, userID int64, sessionID string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.rdb, []string{sharedRedis.BuildSessionKey(userID)}, sessionID).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisRegistry) Refresh(ctx context.Context, userID int64, sessionID string) (bool, error) {
	n, err := refreshScript.Run(ctx, r.rdb,
		[]string{sharedRedis.BuildSessionKey(userID)},
		sessionID, r.lease.Milliseconds(),
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
