package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Relay 跨节点的用户推送通道
// Publish 之后每个节点（包括本节点）都应调用 Broker.DeliverToUser
type Relay interface {
	Publish(ctx context.Context, userID int64, destination string, body []byte) error
}

// Broker 进程内的简单消息代理
// 管理会话、订阅分发以及按用户推送
type Broker struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	userConns map[int64]map[string]*Session

	relay  Relay
	logger *slog.Logger
}

// NewBroker 创建代理
func NewBroker() *Broker {
	return &Broker{
		sessions:  make(map[string]*Session),
		userConns: make(map[int64]map[string]*Session),
		logger:    slog.Default(),
	}
}

// SetRelay 设置跨节点推送，为空时只在本进程投递
func (b *Broker) SetRelay(relay Relay) {
	b.mu.Lock()
	b.relay = relay
	b.mu.Unlock()
}

// Register 登记新会话
func (b *Broker) Register(s *Session) {
	b.mu.Lock()
	b.sessions[s.ID()] = s
	b.mu.Unlock()
}

// BindUser 认证成功后把会话挂到用户下
func (b *Broker) BindUser(s *Session, userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	conns, ok := b.userConns[userID]
	if !ok {
		conns = make(map[string]*Session)
		b.userConns[userID] = conns
	}
	conns[s.ID()] = s
}

// Unregister 移除会话
func (b *Broker) Unregister(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, s.ID())
	if userID := s.UserID(); userID != 0 {
		if conns, ok := b.userConns[userID]; ok {
			delete(conns, s.ID())
			if len(conns) == 0 {
				delete(b.userConns, userID)
			}
		}
	}
}

// Count 当前会话数（含未认证）
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// UserSessions 用户在本节点的会话
func (b *Broker) UserSessions(userID int64) []*Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	conns := b.userConns[userID]
	out := make([]*Session, 0, len(conns))
	for _, s := range conns {
		out = append(out, s)
	}
	return out
}

// SendToUser 推送到用户的私有目的地，实现 service.Pusher
// destination 为 /queue/... 形式，客户端订阅 /user/queue/...
func (b *Broker) SendToUser(ctx context.Context, userID int64, destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", destination, err)
	}

	b.mu.RLock()
	relay := b.relay
	b.mu.RUnlock()

	if relay != nil {
		if err := relay.Publish(ctx, userID, destination, body); err != nil {
			return fmt.Errorf("relay to user %d: %w", userID, err)
		}
		return nil
	}
	b.DeliverToUser(userID, destination, body)
	return nil
}

// DeliverToUser 投递给本节点上该用户的会话，返回送出的帧数
func (b *Broker) DeliverToUser(userID int64, destination string, body []byte) int {
	n := 0
	dest := userDestination(destination)
	for _, s := range b.UserSessions(userID) {
		n += s.deliver(dest, body)
	}
	return n
}

// Broadcast 广播到 /topic 目的地
func (b *Broker) Broadcast(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", destination, err)
	}

	b.mu.RLock()
	targets := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.deliver(destination, body)
	}
	return nil
}

// OnlinePayload /topic/online 的消息体
type OnlinePayload struct {
	Count int64 `json:"count"`
}

// PublishOnline 在线人数变化时广播，作为 Presence 的回调
func (b *Broker) PublishOnline(count int64) {
	if err := b.Broadcast(TopicOnline, OnlinePayload{Count: count}); err != nil {
		b.logger.Error("Broadcast online count failed", "error", err)
	}
}

// CloseAll 关闭所有会话，用于优雅退出
func (b *Broker) CloseAll(code int, reason string) {
	b.mu.RLock()
	targets := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.Close(code, reason)
	}
}
