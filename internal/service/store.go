package service

import (
	"context"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
)

// 用户私有推送目的地，客户端订阅时加 /user 前缀
const (
	DestinationChats    = "/queue/chats"
	DestinationMessages = "/queue/messages"
	DestinationErrors   = "/queue/errors"
)

// UserStore 用户查询
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// ListingStore 发布信息查询
type ListingStore interface {
	GetByID(ctx context.Context, id int64) (*model.Listing, error)
}

// ConversationStore 会话存储
// Insert 遇到同组合的已有会话时返回已有记录而不是错误
type ConversationStore interface {
	FindByPair(ctx context.Context, low, high int64, listingID *int64) (*model.Conversation, error)
	Insert(ctx context.Context, conv *model.Conversation) (*model.Conversation, error)
	FindByID(ctx context.Context, id int64) (*model.Conversation, error)
	ExistsBetween(ctx context.Context, low, high int64) (bool, error)
	ListForUser(ctx context.Context, userID int64) ([]*model.Conversation, error)
	Delete(ctx context.Context, id int64) error
}

// MessageStore 消息存储
// Append 必须在一个事务内写入消息并更新会话的最后消息指针
type MessageStore interface {
	Append(ctx context.Context, msg *model.Message) error
	FindByID(ctx context.Context, id int64) (*model.Message, error)
	CountUnread(ctx context.Context, conversationID, receiverID int64) (int, error)
	HasUnread(ctx context.Context, conversationID, receiverID int64) (bool, error)
	MarkAllRead(ctx context.Context, conversationID, receiverID int64) (int64, error)
	ListByConversation(ctx context.Context, conversationID int64) ([]*model.Message, error)
}

// Pusher 向用户私有目的地推送
type Pusher interface {
	SendToUser(ctx context.Context, userID int64, destination string, payload any) error
}

// EventPublisher 领域事件发布，发送即忘
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Counter 在线人数
type Counter interface {
	Current() int64
}
