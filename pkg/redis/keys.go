package redis

import (
	"fmt"
	"time"
)

const (
	// SessionKeyPrefix 实时会话占用 Key 前缀
	// Key: workswap:ws:session:{userId} -> sessionId
	SessionKeyPrefix = "workswap:ws:session:"

	// DefaultSessionLease Redis 会话占用的默认租期，由心跳续期
	DefaultSessionLease = 2 * time.Minute
)

// BuildSessionKey 构建会话占用 Key
func BuildSessionKey(userID int64) string {
	return fmt.Sprintf("%s%d", SessionKeyPrefix, userID)
}
