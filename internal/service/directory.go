package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/repository"
	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/snowflake"
)

// ConversationDirectory 两人会话的查找与创建
type ConversationDirectory struct {
	convs  ConversationStore
	ids    snowflake.Generator
	now    func() time.Time
	logger *slog.Logger
}

// NewConversationDirectory 创建会话目录
func NewConversationDirectory(convs ConversationStore, ids snowflake.Generator) *ConversationDirectory {
	return &ConversationDirectory{
		convs:  convs,
		ids:    ids,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// GetOrCreate 返回两人之间的会话，不存在时创建
// 指定 listingID 时只查找该发布信息下的会话，不会复用无关联会话
func (d *ConversationDirectory) GetOrCreate(ctx context.Context, participants []int64, listingID *int64) (*model.Conversation, error) {
	if len(participants) != 2 || participants[0] <= 0 || participants[1] <= 0 || participants[0] == participants[1] {
		return nil, apperrors.ErrInvalidParticipants
	}
	if listingID != nil && *listingID <= 0 {
		return nil, apperrors.ErrInvalidParams
	}
	low, high := model.OrderPair(participants[0], participants[1])

	conv, err := d.convs.FindByPair(ctx, low, high, listingID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, repository.ErrConversationNotFound) {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	now := d.now().UTC()
	conv, err = d.convs.Insert(ctx, &model.Conversation{
		ID:        d.ids.Generate().Int64(),
		UserLow:   low,
		UserHigh:  high,
		ListingID: listingID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}

	d.logger.Debug("Conversation resolved", "chat_id", conv.ID, "user_low", low, "user_high", high, "listing_id", listingID)
	return conv, nil
}

// Exists 两人之间是否有任意会话（含发布信息会话）
func (d *ConversationDirectory) Exists(ctx context.Context, a, b int64) (bool, error) {
	if a <= 0 || b <= 0 || a == b {
		return false, nil
	}
	low, high := model.OrderPair(a, b)
	exists, err := d.convs.ExistsBetween(ctx, low, high)
	if err != nil {
		return false, apperrors.ErrDBError.Wrap(err)
	}
	return exists, nil
}

// FindByID 获取会话
func (d *ConversationDirectory) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	conv, err := d.convs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, apperrors.ErrChatNotFound.Wrap(err)
		}
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return conv, nil
}

// ListForUser 用户的全部会话，最近活跃在前
func (d *ConversationDirectory) ListForUser(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	convs, err := d.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrDBError.Wrap(err)
	}
	return convs, nil
}

// Delete 删除会话及其消息
func (d *ConversationDirectory) Delete(ctx context.Context, id int64) error {
	if err := d.convs.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return apperrors.ErrChatNotFound.Wrap(err)
		}
		return apperrors.ErrDBError.Wrap(err)
	}
	d.logger.Info("Conversation deleted", "chat_id", id)
	return nil
}
