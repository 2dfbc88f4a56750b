package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
)

const messageColumns = `id, conversation_id, sender_id, receiver_id, text, sent_at, is_read`

// MessageRepository 消息仓库
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append 在同一事务中写入消息并更新会话的最后消息指针
func (r *MessageRepository) Append(ctx context.Context, msg *model.Message) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO messages (id, conversation_id, sender_id, receiver_id, text, sent_at, is_read)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.Exec(ctx, query,
			msg.ID,
			msg.ConversationID,
			msg.SenderID,
			msg.ReceiverID,
			msg.Text,
			msg.SentAt,
			msg.Read,
		); err != nil {
			return err
		}
		return touch(ctx, tx, msg.ConversationID, msg.ID, msg.SentAt)
	})
}

// FindByID 根据 ID 查找消息
func (r *MessageRepository) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	var msg model.Message
	err := r.db.QueryRow(ctx, query, id).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Text,
		&msg.SentAt,
		&msg.Read,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// CountUnread 统计发给 receiverID 的未读消息数
func (r *MessageRepository) CountUnread(ctx context.Context, conversationID, receiverID int64) (int, error) {
	query := `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE
	`
	var count int
	err := r.db.QueryRow(ctx, query, conversationID, receiverID).Scan(&count)
	return count, err
}

// HasUnread 是否存在发给 receiverID 的未读消息
func (r *MessageRepository) HasUnread(ctx context.Context, conversationID, receiverID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE
		)
	`
	var exists bool
	err := r.db.QueryRow(ctx, query, conversationID, receiverID).Scan(&exists)
	return exists, err
}

// MarkAllRead 批量标记已读，返回本次更新的条数
func (r *MessageRepository) MarkAllRead(ctx context.Context, conversationID, receiverID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE messages SET is_read = TRUE
		WHERE conversation_id = $1 AND receiver_id = $2 AND is_read = FALSE
	`, conversationID, receiverID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListByConversation 按发送时间升序返回会话全部消息
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID int64) ([]*model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sent_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Message, error) {
		msg := &model.Message{}
		err := row.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.SenderID,
			&msg.ReceiverID,
			&msg.Text,
			&msg.SentAt,
			&msg.Read,
		)
		return msg, err
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}
