// Package memstore 内存存储，用于测试和 database.driver=memory 的本地调试
// 与 PostgreSQL 仓库保持相同的唯一性和事务语义
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/repository"
)

type pairKey struct {
	low, high, listing int64
}

func keyOf(low, high int64, listingID *int64) pairKey {
	k := pairKey{low: low, high: high}
	if listingID != nil {
		k.listing = *listingID
	}
	return k
}

// DB 内存数据库
type DB struct {
	mu            sync.RWMutex
	users         map[int64]*model.User
	listings      map[int64]*model.Listing
	conversations map[int64]*model.Conversation
	pairs         map[pairKey]int64
	messages      map[int64][]*model.Message
}

// New 创建空的内存数据库
func New() *DB {
	return &DB{
		users:         make(map[int64]*model.User),
		listings:      make(map[int64]*model.Listing),
		conversations: make(map[int64]*model.Conversation),
		pairs:         make(map[pairKey]int64),
		messages:      make(map[int64][]*model.Message),
	}
}

// PutUser 写入或覆盖用户
func (db *DB) PutUser(u *model.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *u
	db.users[u.ID] = &cp
}

// PutListing 写入或覆盖发布信息
func (db *DB) PutListing(l *model.Listing) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := *l
	db.listings[l.ID] = &cp
}

func (db *DB) Users() *Users                 { return &Users{db: db} }
func (db *DB) Listings() *Listings           { return &Listings{db: db} }
func (db *DB) Conversations() *Conversations { return &Conversations{db: db} }
func (db *DB) Messages() *Messages           { return &Messages{db: db} }

// Users 用户存储
type Users struct{ db *DB }

func (s *Users) GetByID(_ context.Context, id int64) (*model.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// Listings 发布信息存储
type Listings struct{ db *DB }

func (s *Listings) GetByID(_ context.Context, id int64) (*model.Listing, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	l, ok := s.db.listings[id]
	if !ok {
		return nil, repository.ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

// Conversations 会话存储
type Conversations struct{ db *DB }

func copyConversation(c *model.Conversation) *model.Conversation {
	cp := *c
	if c.ListingID != nil {
		v := *c.ListingID
		cp.ListingID = &v
	}
	if c.LastMessageID != nil {
		v := *c.LastMessageID
		cp.LastMessageID = &v
	}
	return &cp
}

func (s *Conversations) FindByPair(_ context.Context, low, high int64, listingID *int64) (*model.Conversation, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	id, ok := s.db.pairs[keyOf(low, high, listingID)]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	return copyConversation(s.db.conversations[id]), nil
}

// Insert 已存在同组合会话时返回已有记录
func (s *Conversations) Insert(_ context.Context, conv *model.Conversation) (*model.Conversation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	k := keyOf(conv.UserLow, conv.UserHigh, conv.ListingID)
	if id, ok := s.db.pairs[k]; ok {
		return copyConversation(s.db.conversations[id]), nil
	}
	stored := copyConversation(conv)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	s.db.conversations[stored.ID] = stored
	s.db.pairs[k] = stored.ID
	return copyConversation(stored), nil
}

func (s *Conversations) FindByID(_ context.Context, id int64) (*model.Conversation, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	c, ok := s.db.conversations[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	return copyConversation(c), nil
}

func (s *Conversations) ExistsBetween(_ context.Context, low, high int64) (bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for k := range s.db.pairs {
		if k.low == low && k.high == high {
			return true, nil
		}
	}
	return false, nil
}

func (s *Conversations) ListForUser(_ context.Context, userID int64) ([]*model.Conversation, error) {
	s.db.mu.RLock()
	out := make([]*model.Conversation, 0)
	for _, c := range s.db.conversations {
		if c.HasParticipant(userID) {
			out = append(out, copyConversation(c))
		}
	}
	s.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Conversations) Delete(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.conversations[id]
	if !ok {
		return repository.ErrConversationNotFound
	}
	delete(s.db.pairs, keyOf(c.UserLow, c.UserHigh, c.ListingID))
	delete(s.db.conversations, id)
	delete(s.db.messages, id)
	return nil
}

// Messages 消息存储
type Messages struct{ db *DB }

// Append 写入消息并更新会话指针，会话不存在时不产生任何写入
func (s *Messages) Append(_ context.Context, msg *model.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.conversations[msg.ConversationID]
	if !ok {
		return repository.ErrConversationNotFound
	}
	cp := *msg
	s.db.messages[msg.ConversationID] = append(s.db.messages[msg.ConversationID], &cp)
	id := msg.ID
	c.LastMessageID = &id
	c.UpdatedAt = msg.SentAt
	return nil
}

func (s *Messages) FindByID(_ context.Context, id int64) (*model.Message, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, msgs := range s.db.messages {
		for _, m := range msgs {
			if m.ID == id {
				cp := *m
				return &cp, nil
			}
		}
	}
	return nil, repository.ErrMessageNotFound
}

func (s *Messages) CountUnread(_ context.Context, conversationID, receiverID int64) (int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	n := 0
	for _, m := range s.db.messages[conversationID] {
		if m.ReceiverID == receiverID && !m.Read {
			n++
		}
	}
	return n, nil
}

func (s *Messages) HasUnread(ctx context.Context, conversationID, receiverID int64) (bool, error) {
	n, err := s.CountUnread(ctx, conversationID, receiverID)
	return n > 0, err
}

func (s *Messages) MarkAllRead(_ context.Context, conversationID, receiverID int64) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, m := range s.db.messages[conversationID] {
		if m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (s *Messages) ListByConversation(_ context.Context, conversationID int64) ([]*model.Message, error) {
	s.db.mu.RLock()
	src := s.db.messages[conversationID]
	out := make([]*model.Message, 0, len(src))
	for _, m := range src {
		cp := *m
		out = append(out, &cp)
	}
	s.db.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
