// Package session 实时会话占用与在线人数
// 每个用户同一时间只允许一个实时会话
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/config"
)

// Registry 会话注册表
type Registry interface {
	// TryAcquire 原子占用；已有未释放且未过期的占用时返回 false
	// 同一 sessionID 重复占用视为成功
	TryAcquire(ctx context.Context, userID int64, sessionID string) (bool, error)
	// Release 仅当当前占用者仍是 sessionID 时删除
	Release(ctx context.Context, userID int64, sessionID string) (bool, error)
	// Refresh 续期租约，占用者不是 sessionID 时返回 false
	Refresh(ctx context.Context, userID int64, sessionID string) (bool, error)
}

// New 按配置创建注册表
func New(cfg config.SessionConfig, rdb *redis.Client) (Registry, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalRegistry(cfg.LeaseTTL), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("session backend redis requires a redis client")
		}
		return NewRedisRegistry(rdb, cfg.LeaseTTL), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

type entry struct {
	sessionID string
	expiresAt time.Time // 零值表示不过期
}

func (e *entry) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

// LocalRegistry 进程内注册表，基于 sync.Map 的 CAS 操作，无锁
type LocalRegistry struct {
	entries sync.Map // int64 -> *entry
	lease   time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewLocalRegistry 创建进程内注册表，lease 为 0 表示只在释放时删除
func NewLocalRegistry(lease time.Duration) *LocalRegistry {
	return &LocalRegistry{
		lease:  lease,
		now:    time.Now,
		logger: slog.Default(),
	}
}

func (r *LocalRegistry) newEntry(sessionID string) *entry {
	e := &entry{sessionID: sessionID}
	if r.lease > 0 {
		e.expiresAt = r.now().Add(r.lease)
	}
	return e
}

func (r *LocalRegistry) TryAcquire(_ context.Context, userID int64, sessionID string) (bool, error) {
	next := r.newEntry(sessionID)
	for {
		actual, loaded := r.entries.LoadOrStore(userID, next)
		if !loaded {
			return true, nil
		}
		cur := actual.(*entry)
		if cur.sessionID == sessionID {
			return true, nil
		}
		if cur.live(r.now()) {
			r.logger.Debug("Session already held", "user_id", userID, "holder", cur.sessionID, "session_id", sessionID)
			return false, nil
		}
		// 过期占用：替换失败说明有并发修改，重新判断
		if r.entries.CompareAndSwap(userID, cur, next) {
			return true, nil
		}
	}
}

func (r *LocalRegistry) Release(_ context.Context, userID int64, sessionID string) (bool, error) {
	actual, ok := r.entries.Load(userID)
	if !ok {
		return false, nil
	}
	cur := actual.(*entry)
	if cur.sessionID != sessionID {
		return false, nil
	}
	return r.entries.CompareAndDelete(userID, cur), nil
}

func (r *LocalRegistry) Refresh(_ context.Context, userID int64, sessionID string) (bool, error) {
	if r.lease <= 0 {
		actual, ok := r.entries.Load(userID)
		return ok && actual.(*entry).sessionID == sessionID, nil
	}
	for {
		actual, ok := r.entries.Load(userID)
		if !ok {
			return false, nil
		}
		cur := actual.(*entry)
		if cur.sessionID != sessionID {
			return false, nil
		}
		if r.entries.CompareAndSwap(userID, cur, r.newEntry(sessionID)) {
			return true, nil
		}
	}
}

// Holder 返回当前占用者，仅用于诊断
func (r *LocalRegistry) Holder(userID int64) (string, bool) {
	actual, ok := r.entries.Load(userID)
	if !ok {
		return "", false
	}
	cur := actual.(*entry)
	if !cur.live(r.now()) {
		return "", false
	}
	return cur.sessionID, true
}
