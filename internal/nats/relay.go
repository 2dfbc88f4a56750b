package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	sharedNats "github.com/Kirya343/WorkSwapCore-sub000/pkg/nats"
)

// Deliverer 本节点的用户投递
type Deliverer interface {
	DeliverToUser(userID int64, destination string, body []byte) int
}

// envelope 跨节点推送的消息体
type envelope struct {
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body"`
}

// UserRelay 通过 NATS 在节点间转发用户推送
// 每个节点订阅全部用户 subject，只投递给本节点上的会话
type UserRelay struct {
	nc        *nats.Conn
	deliverer Deliverer
	sub       *nats.Subscription
	logger    *slog.Logger
}

// NewUserRelay 创建中继
func NewUserRelay(nc *nats.Conn, deliverer Deliverer) *UserRelay {
	return &UserRelay{
		nc:        nc,
		deliverer: deliverer,
		logger:    slog.Default(),
	}
}

// Publish 发布到用户 subject
func (r *UserRelay) Publish(_ context.Context, userID int64, destination string, body []byte) error {
	data, err := json.Marshal(envelope{Destination: destination, Body: body})
	if err != nil {
		return fmt.Errorf("marshal relay envelope: %w", err)
	}
	subject := sharedNats.BuildUserPushSubject(userID)
	if err := r.nc.Publish(subject, data); err != nil {
		r.logger.Error("Failed to publish user push", "subject", subject, "error", err)
		return err
	}
	r.logger.Debug("Published user push", "subject", subject, "destination", destination)
	return nil
}

// Start 订阅用户推送
func (r *UserRelay) Start() error {
	sub, err := r.nc.Subscribe(sharedNats.SubjectUserPushAll, r.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", sharedNats.SubjectUserPushAll, err)
	}
	r.sub = sub
	r.logger.Info("User push relay started", "subject", sharedNats.SubjectUserPushAll)
	return nil
}

func (r *UserRelay) handle(msg *nats.Msg) {
	userID, ok := sharedNats.ParseUserPushSubject(msg.Subject)
	if !ok {
		r.logger.Warn("Invalid user push subject", "subject", msg.Subject)
		return
	}
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.logger.Warn("Invalid user push payload", "subject", msg.Subject, "error", err)
		return
	}
	n := r.deliverer.DeliverToUser(userID, env.Destination, env.Body)
	r.logger.Debug("Relayed user push", "user_id", userID, "destination", env.Destination, "delivered", n)
}

// Stop 取消订阅并等待处理中的消息
func (r *UserRelay) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Drain()
}
