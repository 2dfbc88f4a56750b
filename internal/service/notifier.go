package service

import (
	"context"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
)

const previewLength = 100

// ChatSummary 推送给用户的会话摘要
type ChatSummary struct {
	ID           int64           `json:"id,string"`
	Interlocutor model.UserBrief `json:"interlocutor"`
	UnreadCount  int             `json:"unreadCount"`
	HasUnread    bool            `json:"hasUnread"`
	LastMessage  *MessagePreview `json:"lastMessage,omitempty"`
	Listing      *ListingSummary `json:"listing,omitempty"`
	Locale       string          `json:"locale"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// MessagePreview 最后一条消息预览
type MessagePreview struct {
	ID     int64     `json:"id,string"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sentAt"`
	Mine   bool      `json:"mine"`
}

// ListingSummary 会话关联的发布信息
type ListingSummary struct {
	ID       int64  `json:"id,string"`
	Title    string `json:"title"`
	ImageURL string `json:"imageUrl"`
}

// PresenceNotifier 会话状态变化后向用户推送摘要
// 推送失败只记录日志，不影响触发它的操作
type PresenceNotifier struct {
	convs         ConversationStore
	users         UserStore
	listings      ListingStore
	log           *MessageLog
	pusher        Pusher
	defaultLocale language.Tag
	logger        *slog.Logger
}

// NewPresenceNotifier 创建推送器
func NewPresenceNotifier(convs ConversationStore, users UserStore, listings ListingStore, log *MessageLog, pusher Pusher, defaultLocale string) *PresenceNotifier {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.English
	}
	return &PresenceNotifier{
		convs:         convs,
		users:         users,
		listings:      listings,
		log:           log,
		pusher:        pusher,
		defaultLocale: tag,
		logger:        slog.Default(),
	}
}

// NotifyUpdate 向 userID 推送会话摘要，locale 为空时使用用户自己的语言
func (n *PresenceNotifier) NotifyUpdate(ctx context.Context, conversationID, userID int64, locale string) {
	conv, err := n.convs.FindByID(ctx, conversationID)
	if err != nil {
		n.logger.Warn("Notify skipped, conversation not loaded", "chat_id", conversationID, "user_id", userID, "error", err)
		return
	}
	summary, err := n.Summarize(ctx, conv, userID, locale)
	if err != nil {
		n.logger.Warn("Notify skipped, summary failed", "chat_id", conversationID, "user_id", userID, "error", err)
		return
	}
	if err := n.pusher.SendToUser(ctx, userID, DestinationChats, summary); err != nil {
		n.logger.Warn("Notify push failed", "chat_id", conversationID, "user_id", userID, "error", err)
	}
}

// Summarize 从 userID 的视角构建会话摘要
func (n *PresenceNotifier) Summarize(ctx context.Context, conv *model.Conversation, userID int64, locale string) (*ChatSummary, error) {
	otherID, ok := conv.Other(userID)
	if !ok {
		return nil, errNotParticipant(conv.ID, userID)
	}

	other, err := n.users.GetByID(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if locale == "" {
		if me, err := n.users.GetByID(ctx, userID); err == nil {
			locale = me.Locale
		}
	}
	tag := n.resolveLocale(locale)

	unread, err := n.log.UnreadCountFor(ctx, conv.ID, userID)
	if err != nil {
		return nil, err
	}
	hasUnread, err := n.log.HasUnread(ctx, conv.ID, userID)
	if err != nil {
		return nil, err
	}

	summary := &ChatSummary{
		ID:           conv.ID,
		Interlocutor: other.Brief(),
		UnreadCount:  unread,
		HasUnread:    hasUnread,
		Locale:       tag.String(),
		UpdatedAt:    conv.UpdatedAt,
	}

	last, err := n.log.LastMessage(ctx, conv)
	if err != nil {
		return nil, err
	}
	if last != nil {
		summary.LastMessage = &MessagePreview{
			ID:     last.ID,
			Text:   preview(last.Text),
			SentAt: last.SentAt,
			Mine:   last.SenderID == userID,
		}
	}

	if conv.ListingID != nil {
		listing, err := n.listings.GetByID(ctx, *conv.ListingID)
		if err != nil {
			// 发布信息下架不影响会话本身
			n.logger.Debug("Listing not loaded for summary", "listing_id", *conv.ListingID, "error", err)
		} else {
			summary.Listing = &ListingSummary{
				ID:       listing.ID,
				Title:    LocalizedTitle(listing, tag),
				ImageURL: listing.ImageURL,
			}
		}
	}
	return summary, nil
}

func (n *PresenceNotifier) resolveLocale(locale string) language.Tag {
	if locale == "" {
		return n.defaultLocale
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return n.defaultLocale
	}
	return tag
}

// LocalizedTitle 按语言匹配选择标题，没有可接受的翻译时返回默认标题
func LocalizedTitle(listing *model.Listing, want language.Tag) string {
	if len(listing.Titles) == 0 {
		return listing.Title
	}
	keys := make([]string, 0, len(listing.Titles))
	for k := range listing.Titles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	supported := make([]language.Tag, 0, len(keys))
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			continue
		}
		supported = append(supported, tag)
		names = append(names, k)
	}
	if len(supported) == 0 {
		return listing.Title
	}

	_, idx, confidence := language.NewMatcher(supported).Match(want)
	if confidence == language.No {
		return listing.Title
	}
	return listing.Titles[names[idx]]
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLength]) + "…"
}
