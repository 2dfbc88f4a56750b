package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/session"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/jwt"
)

// TokenValidator 校验访问令牌
type TokenValidator interface {
	ValidateAccess(token string) (*jwt.AccessClaims, error)
}

// Authenticator 通道认证器
// 在会话锁内运行状态机并执行副作用，同一会话的 CONNECT/DISCONNECT 不会交错
type Authenticator struct {
	tokens   TokenValidator
	registry session.Registry
	presence *session.Presence
	broker   *Broker
	logger   *slog.Logger
}

// NewAuthenticator 创建认证器，broker 可为空
func NewAuthenticator(tokens TokenValidator, registry session.Registry, presence *session.Presence, broker *Broker) *Authenticator {
	return &Authenticator{
		tokens:   tokens,
		registry: registry,
		presence: presence,
		broker:   broker,
		logger:   slog.Default(),
	}
}

// connectAck 认证成功后如何确认 CONNECT
type connectAck func(s *Session)

// OnConnect 处理 CONNECT 帧，返回会话是否处于已认证状态
func (a *Authenticator) OnConnect(ctx context.Context, s *Session, ack connectAck) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.dispatch(ctx, s, ConnectRequested{}, ack)
	return s.state.Phase == PhaseAuthenticated
}

// OnDisconnect 处理 DISCONNECT 帧或连接断开，可重复调用
func (a *Authenticator) OnDisconnect(ctx context.Context, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.dispatch(ctx, s, DisconnectRequested{}, nil)
}

// dispatch 调用方持有 s.mu
func (a *Authenticator) dispatch(ctx context.Context, s *Session, ev Event, ack connectAck) {
	queue := []Event{ev}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		var effects []Effect
		s.state, effects = Handle(next, s.state)
		for _, eff := range effects {
			if follow := a.apply(ctx, s, eff, ack); follow != nil {
				queue = append(queue, follow)
			}
		}
	}
}

// apply 执行一个副作用，Authenticate 会产生后续事件
func (a *Authenticator) apply(ctx context.Context, s *Session, eff Effect, ack connectAck) Event {
	switch e := eff.(type) {
	case Authenticate:
		return a.authenticate(ctx, s)
	case BindPrincipal:
		s.bind(e.Principal)
		if a.broker != nil {
			a.broker.BindUser(s, e.Principal.UserID)
		}
		a.logger.Info("Session authenticated",
			"session_id", s.ID(),
			"user_id", e.Principal.UserID)
	case IncrementPresence:
		a.presence.Increment()
	case AcknowledgeConnect:
		if ack != nil {
			ack(s)
		}
	case RejectConnection:
		a.logger.Info("Session rejected",
			"session_id", s.ID(),
			"reason", e.Reason)
		s.reject(e.Reason)
	case DecrementPresence:
		a.presence.Decrement()
	case ReleaseSession:
		released, err := a.registry.Release(ctx, e.UserID, s.ID())
		if err != nil {
			a.logger.Error("Release session failed",
				"session_id", s.ID(),
				"user_id", e.UserID,
				"error", err)
		} else if !released {
			a.logger.Debug("Session already superseded",
				"session_id", s.ID(),
				"user_id", e.UserID)
		}
	}
	return nil
}

// authenticate 凭证 -> 令牌校验 -> 会话占用
// 任何错误或 panic 都变成 AuthFailed
func (a *Authenticator) authenticate(ctx context.Context, s *Session) (ev Event) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Authentication panic recovered",
				"session_id", s.ID(),
				"panic", fmt.Sprint(r))
			ev = AuthFailed{Reason: ReasonAuthError}
		}
	}()

	token := s.Attribute(AttrAccessToken)
	if token == "" {
		return AuthFailed{Reason: ReasonMissingCredential}
	}

	claims, err := a.tokens.ValidateAccess(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AuthFailed{Reason: ReasonTokenExpired}
		}
		return AuthFailed{Reason: ReasonInvalidToken}
	}

	ok, err := a.registry.TryAcquire(ctx, claims.UserID, s.ID())
	if err != nil {
		a.logger.Error("Acquire session failed",
			"session_id", s.ID(),
			"user_id", claims.UserID,
			"error", err)
		return AuthFailed{Reason: ReasonAuthError}
	}
	if !ok {
		return AuthFailed{Reason: ReasonDuplicateConnection}
	}

	return AuthSucceeded{Principal: Principal{
		UserID:      claims.UserID,
		Key:         claims.Subject,
		Authorities: claims.Authorities(),
	}}
}

// Refresh 心跳时续租，租约丢失时返回 false
func (a *Authenticator) Refresh(ctx context.Context, s *Session) (bool, error) {
	userID := s.UserID()
	if userID == 0 {
		return false, nil
	}
	return a.registry.Refresh(ctx, userID, s.ID())
}
