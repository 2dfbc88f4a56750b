package model

import "time"

// MaxMessageLength 消息正文最大字符数
const MaxMessageLength = 4000

// Message 聊天消息
// 创建后只有 Read 会变化，且只能由接收方修改
type Message struct {
	ID             int64     `json:"id,string" db:"id"`
	ConversationID int64     `json:"chatId,string" db:"conversation_id"`
	SenderID       int64     `json:"senderId,string" db:"sender_id"`
	ReceiverID     int64     `json:"receiverId,string" db:"receiver_id"`
	Text           string    `json:"text" db:"text"`
	SentAt         time.Time `json:"sentAt" db:"sent_at"`
	Read           bool      `json:"read" db:"is_read"`
}
