package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
)

const conversationColumns = `id, user_low, user_high, listing_id, last_message_id, created_at, updated_at`

// ConversationRepository 会话数据访问
// 唯一索引 (user_low, user_high, COALESCE(listing_id, 0)) 保证每个组合只有一条会话
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository 创建会话仓库
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	conv := &model.Conversation{}
	err := row.Scan(
		&conv.ID,
		&conv.UserLow,
		&conv.UserHigh,
		&conv.ListingID,
		&conv.LastMessageID,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

// FindByPair 查找参与者对与发布信息完全匹配的会话，listingID 为 nil 时只匹配无关联会话
func (r *ConversationRepository) FindByPair(ctx context.Context, low, high int64, listingID *int64) (*model.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_low = $1 AND user_high = $2 AND listing_id IS NOT DISTINCT FROM $3
	`
	return scanConversation(r.db.QueryRow(ctx, query, low, high, listingID))
}

// Insert 插入会话
// 并发创建同一组合时只有一方写入成功，另一方返回已存在的记录
func (r *ConversationRepository) Insert(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	query := `
		INSERT INTO conversations (id, user_low, user_high, listing_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT DO NOTHING
		RETURNING ` + conversationColumns

	created, err := scanConversation(r.db.QueryRow(ctx, query,
		conv.ID,
		conv.UserLow,
		conv.UserHigh,
		conv.ListingID,
		conv.CreatedAt,
	))
	if errors.Is(err, ErrConversationNotFound) {
		return r.FindByPair(ctx, conv.UserLow, conv.UserHigh, conv.ListingID)
	}
	return created, err
}

// FindByID 根据 ID 查找会话
func (r *ConversationRepository) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return scanConversation(r.db.QueryRow(ctx, query, id))
}

// ExistsBetween 两人之间是否存在任意会话
func (r *ConversationRepository) ExistsBetween(ctx context.Context, low, high int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM conversations WHERE user_low = $1 AND user_high = $2)`
	var exists bool
	err := r.db.QueryRow(ctx, query, low, high).Scan(&exists)
	return exists, err
}

// ListForUser 用户参与的会话，最近活跃在前
func (r *ConversationRepository) ListForUser(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_low = $1 OR user_high = $1
		ORDER BY updated_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := make([]*model.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// Delete 删除会话及其全部消息
func (r *ConversationRepository) Delete(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrConversationNotFound
		}
		return nil
	})
}

// touch 更新会话的最后消息指针
func touch(ctx context.Context, tx pgx.Tx, conversationID, messageID int64, at time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE conversations SET last_message_id = $2, updated_at = $3 WHERE id = $1`,
		conversationID, messageID, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}
