package nats

import "strconv"

// NATS Subject 常量定义
const (
	// SubjectUserPushPrefix 用户推送前缀
	// 完整格式: workswap.push.user.{user_id}
	SubjectUserPushPrefix = "workswap.push.user."

	// SubjectUserPushAll 订阅全部用户推送
	SubjectUserPushAll = SubjectUserPushPrefix + "*"
)

// BuildUserPushSubject 构建用户推送 Subject
func BuildUserPushSubject(userID int64) string {
	return SubjectUserPushPrefix + strconv.FormatInt(userID, 10)
}

// ParseUserPushSubject 从 Subject 解析用户 ID
func ParseUserPushSubject(subject string) (int64, bool) {
	if len(subject) <= len(SubjectUserPushPrefix) || subject[:len(SubjectUserPushPrefix)] != SubjectUserPushPrefix {
		return 0, false
	}
	id, err := strconv.ParseInt(subject[len(SubjectUserPushPrefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
