package model

import "time"

// Conversation 两人会话，可关联一个发布信息
// 参与者按 (UserLow, UserHigh) 有序存储，保证无序对唯一
type Conversation struct {
	ID            int64     `json:"id,string" db:"id"`
	UserLow       int64     `json:"userLow,string" db:"user_low"`
	UserHigh      int64     `json:"userHigh,string" db:"user_high"`
	ListingID     *int64    `json:"listingId,omitempty,string" db:"listing_id"`
	LastMessageID *int64    `json:"lastMessageId,omitempty,string" db:"last_message_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// OrderPair 返回有序参与者对
func OrderPair(a, b int64) (low, high int64) {
	if a <= b {
		return a, b
	}
	return b, a
}

// HasParticipant 判断用户是否为参与者
func (c *Conversation) HasParticipant(userID int64) bool {
	return userID == c.UserLow || userID == c.UserHigh
}

// Other 返回另一位参与者
func (c *Conversation) Other(userID int64) (int64, bool) {
	switch userID {
	case c.UserLow:
		return c.UserHigh, true
	case c.UserHigh:
		return c.UserLow, true
	default:
		return 0, false
	}
}
