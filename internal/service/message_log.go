package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/repository"
	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/snowflake"
)

// MessageLog 消息追加与已读状态
type MessageLog struct {
	msgs MessageStore
	ids  snowflake.Generator
	now  func() time.Time
}

// NewMessageLog 创建消息日志
func NewMessageLog(msgs MessageStore, ids snowflake.Generator) *MessageLog {
	return &MessageLog{
		msgs: msgs,
		ids:  ids,
		now:  time.Now,
	}
}

// Append 追加消息，接收方为会话中另一位参与者
func (l *MessageLog) Append(ctx context.Context, conv *model.Conversation, senderID int64, text string) (*model.Message, error) {
	receiverID, ok := conv.Other(senderID)
	if !ok {
		return nil, apperrors.ErrNotParticipant
	}
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > model.MaxMessageLength {
		return nil, apperrors.ErrInvalidMessage
	}

	msg := &model.Message{
		ID:             l.ids.Generate().Int64(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Text:           text,
		SentAt:         l.now().UTC(),
	}
	if err := l.msgs.Append(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, apperrors.ErrChatNotFound.Wrap(err)
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return msg, nil
}

// UnreadCountFor 发给 userID 的未读消息数
func (l *MessageLog) UnreadCountFor(ctx context.Context, conversationID, userID int64) (int, error) {
	n, err := l.msgs.CountUnread(ctx, conversationID, userID)
	if err != nil {
		return 0, apperrors.ErrDBError.Wrap(err)
	}
	return n, nil
}

// HasUnread 是否有发给 userID 的未读消息
func (l *MessageLog) HasUnread(ctx context.Context, conversationID, userID int64) (bool, error) {
	ok, err := l.msgs.HasUnread(ctx, conversationID, userID)
	if err != nil {
		return false, apperrors.ErrDBError.Wrap(err)
	}
	return ok, nil
}

// MarkAllRead 将发给 readerID 的消息全部标记已读，可重复调用
// 只影响调用时已存在的消息
func (l *MessageLog) MarkAllRead(ctx context.Context, conversationID, readerID int64) (int64, error) {
	n, err := l.msgs.MarkAllRead(ctx, conversationID, readerID)
	if err != nil {
		return 0, apperrors.ErrDBError.Wrap(err)
	}
	return n, nil
}

// AllMessages 按发送时间升序返回会话消息
func (l *MessageLog) AllMessages(ctx context.Context, conversationID int64) ([]*model.Message, error) {
	msgs, err := l.msgs.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return msgs, nil
}

// LastMessage 会话最后一条消息，没有消息时返回 nil
func (l *MessageLog) LastMessage(ctx context.Context, conv *model.Conversation) (*model.Message, error) {
	if conv.LastMessageID == nil {
		return nil, nil
	}
	msg, err := l.msgs.FindByID(ctx, *conv.LastMessageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, nil
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return msg, nil
}
