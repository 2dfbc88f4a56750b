package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/repository"
	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
)

// RoutingKeyMessageSent 消息发送事件
const RoutingKeyMessageSent = "chat.message.sent"

// MessageSentEvent 消息发送后发布的事件
type MessageSentEvent struct {
	MessageID  int64     `json:"messageId,string"`
	ChatID     int64     `json:"chatId,string"`
	SenderID   int64     `json:"senderId,string"`
	ReceiverID int64     `json:"receiverId,string"`
	ListingID  *int64    `json:"listingId,omitempty,string"`
	SentAt     time.Time `json:"sentAt"`
}

func errNotParticipant(chatID, userID int64) error {
	return apperrors.ErrNotParticipant.Wrap(fmt.Errorf("user %d is not a participant of chat %d", userID, chatID))
}

// ChatService 聊天编排：会话、消息与推送
type ChatService struct {
	directory *ConversationDirectory
	log       *MessageLog
	notifier  *PresenceNotifier
	users     UserStore
	listings  ListingStore
	pusher    Pusher
	events    EventPublisher
	online    Counter
	logger    *slog.Logger
}

// NewChatService 创建聊天服务
func NewChatService(
	directory *ConversationDirectory,
	log *MessageLog,
	notifier *PresenceNotifier,
	users UserStore,
	listings ListingStore,
	pusher Pusher,
	events EventPublisher,
	online Counter,
) *ChatService {
	return &ChatService{
		directory: directory,
		log:       log,
		notifier:  notifier,
		users:     users,
		listings:  listings,
		pusher:    pusher,
		events:    events,
		online:    online,
		logger:    slog.Default(),
	}
}

// OpenChat 打开与 peerID 的会话，不存在时创建，并把摘要推送给请求方
func (s *ChatService) OpenChat(ctx context.Context, requesterID, peerID int64, listingID *int64, locale string) (*ChatSummary, error) {
	if requesterID == peerID {
		return nil, apperrors.ErrCannotChatWithSelf
	}
	if _, err := s.users.GetByID(ctx, peerID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound.Wrap(err)
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	if listingID != nil {
		if _, err := s.listings.GetByID(ctx, *listingID); err != nil {
			if errors.Is(err, repository.ErrListingNotFound) {
				return nil, apperrors.ErrListingNotFound.Wrap(err)
			}
			return nil, apperrors.ErrDBError.Wrap(err)
		}
	}

	conv, err := s.directory.GetOrCreate(ctx, []int64{requesterID, peerID}, listingID)
	if err != nil {
		return nil, err
	}

	summary, err := s.notifier.Summarize(ctx, conv, requesterID, locale)
	if err != nil {
		return nil, err
	}
	if err := s.pusher.SendToUser(ctx, requesterID, DestinationChats, summary); err != nil {
		s.logger.Warn("Push chat summary failed", "chat_id", conv.ID, "user_id", requesterID, "error", err)
	}
	return summary, nil
}

// SendMessage 发送消息
// 追加成功后推送和事件都是尽力而为，失败不影响返回值
func (s *ChatService) SendMessage(ctx context.Context, senderID, chatID int64, text, locale string) (*model.Message, error) {
	conv, err := s.directory.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msg, err := s.log.Append(ctx, conv, senderID, text)
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyUpdate(ctx, conv.ID, msg.SenderID, locale)
	s.notifier.NotifyUpdate(ctx, conv.ID, msg.ReceiverID, "")

	for _, userID := range []int64{msg.SenderID, msg.ReceiverID} {
		if err := s.pusher.SendToUser(ctx, userID, DestinationMessages, msg); err != nil {
			s.logger.Warn("Push message failed", "chat_id", conv.ID, "message_id", msg.ID, "user_id", userID, "error", err)
		}
	}

	if err := s.events.Publish(ctx, RoutingKeyMessageSent, &MessageSentEvent{
		MessageID:  msg.ID,
		ChatID:     conv.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		ListingID:  conv.ListingID,
		SentAt:     msg.SentAt,
	}); err != nil {
		s.logger.Warn("Publish message event failed", "message_id", msg.ID, "error", err)
	}

	s.logger.Debug("Message sent", "chat_id", conv.ID, "message_id", msg.ID, "sender_id", msg.SenderID)
	return msg, nil
}

// MarkRead 将会话中发给 readerID 的消息标记已读
func (s *ChatService) MarkRead(ctx context.Context, readerID, chatID int64, locale string) (int64, error) {
	conv, err := s.participantConversation(ctx, readerID, chatID)
	if err != nil {
		return 0, err
	}
	n, err := s.log.MarkAllRead(ctx, conv.ID, readerID)
	if err != nil {
		return 0, err
	}
	s.notifier.NotifyUpdate(ctx, conv.ID, readerID, locale)
	return n, nil
}

// History 会话全部消息
func (s *ChatService) History(ctx context.Context, userID, chatID int64) ([]*model.Message, error) {
	conv, err := s.participantConversation(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return s.log.AllMessages(ctx, conv.ID)
}

// ListChats 用户的会话摘要列表
func (s *ChatService) ListChats(ctx context.Context, userID int64, locale string) ([]*ChatSummary, error) {
	convs, err := s.directory.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	summaries := make([]*ChatSummary, 0, len(convs))
	for _, conv := range convs {
		summary, err := s.notifier.Summarize(ctx, conv, userID, locale)
		if err != nil {
			s.logger.Warn("Skip chat in list", "chat_id", conv.ID, "user_id", userID, "error", err)
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// DeleteChat 删除会话（管理操作）
func (s *ChatService) DeleteChat(ctx context.Context, chatID int64) error {
	return s.directory.Delete(ctx, chatID)
}

// OnlineCount 当前在线连接数
func (s *ChatService) OnlineCount() int64 {
	if s.online == nil {
		return 0
	}
	return s.online.Current()
}

func (s *ChatService) participantConversation(ctx context.Context, userID, chatID int64) (*model.Conversation, error) {
	conv, err := s.directory.FindByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errNotParticipant(chatID, userID)
	}
	return conv, nil
}
