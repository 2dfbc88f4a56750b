// Package events 聊天领域事件发布
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/config"
)

const publishTimeout = 5 * time.Second

// Publisher 事件发布器
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// New 按配置创建发布器，未启用时返回 Noop
func New(cfg config.RabbitMQConfig) (Publisher, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	return NewRabbitPublisher(cfg.URL, cfg.Exchange)
}

// Noop 丢弃所有事件
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

func (Noop) Close() error { return nil }

// RabbitPublisher 发布到 topic exchange
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	channel *amqp.Channel
}

// NewRabbitPublisher 连接 RabbitMQ 并声明持久化的 topic exchange
func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	if exchange == "" {
		return nil, fmt.Errorf("rabbitmq: exchange cannot be empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: failed to dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: failed to open a channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: failed to declare exchange %q: %w", exchange, err)
	}

	p := &RabbitPublisher{
		conn:     conn,
		exchange: exchange,
		channel:  ch,
		logger:   slog.Default(),
	}
	p.logger.Info("RabbitMQ publisher ready", "exchange", exchange)
	return p, nil
}

// newPublishing 事件编码为持久化 JSON 消息
func newPublishing(routingKey string, event any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event %s: %w", routingKey, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Type:         routingKey,
	}, nil
}

// Publish 发布事件，带超时
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	msg, err := newPublishing(routingKey, event, time.Now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil || p.conn.IsClosed() {
		return fmt.Errorf("rabbitmq: not connected or channel is closed")
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.channel.PublishWithContext(publishCtx, p.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: failed to publish %s: %w", routingKey, err)
	}
	p.logger.Debug("Event published", "routing_key", routingKey)
	return nil
}

// Close 关闭通道和连接
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = err
		}
		p.channel = nil
	}
	if err := p.conn.Close(); err != nil && firstErr == nil && err != amqp.ErrClosed {
		firstErr = err
	}
	return firstErr
}
