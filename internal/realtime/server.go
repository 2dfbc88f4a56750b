package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/text/language"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/config"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/service"
	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
)

// AccessTokenCookie 握手时读取的 Cookie
const AccessTokenCookie = "accessToken"

const (
	connectTimeout = 30 * time.Second
	pingCheckTick  = time.Second
)

// Server STOMP over WebSocket 端点
type Server struct {
	cfg      config.RealtimeConfig
	upgrader websocket.Upgrader
	broker   *Broker
	auth     *Authenticator
	commands *Commands
	logger   *slog.Logger
}

// NewServer 创建端点
func NewServer(cfg config.RealtimeConfig, broker *Broker, auth *Authenticator, commands *Commands) *Server {
	s := &Server{
		cfg:      cfg,
		broker:   broker,
		auth:     auth,
		commands: commands,
		logger:   slog.Default(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		Subprotocols:    []string{"v12.stomp", "v11.stomp", "v10.stomp"},
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin 未配置或配置了 * 时允许所有来源
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	s.logger.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

// Handle GET /ws
// @Summary      STOMP over WebSocket
// @Description  升级为 WebSocket，之后按 STOMP 1.2 通信；CONNECT 时使用 accessToken Cookie 认证
// @Tags         realtime
// @Success      101  {string}  string  "Switching Protocols"
// @Router       /ws [get]
func (s *Server) Handle(c *gin.Context) {
	attrs := handshakeAttributes(c)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err, "remote", c.ClientIP())
		return
	}

	sess := newSession(uuid.NewString(), attrs, conn, s.cfg.SendBuffer, s.cfg.WriteTimeout, s.logger)
	go s.serve(sess, conn)
}

// handshakeAttributes 把握手时才能拿到的信息存进会话属性
func handshakeAttributes(c *gin.Context) map[string]string {
	attrs := map[string]string{
		AttrRemoteAddr: c.ClientIP(),
	}
	if token, err := c.Cookie(AccessTokenCookie); err == nil && token != "" {
		attrs[AttrAccessToken] = token
	}
	if tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language")); err == nil && len(tags) > 0 {
		attrs[AttrLocale] = tags[0].String()
	}
	return attrs
}

func (s *Server) serve(sess *Session, conn *websocket.Conn) {
	s.broker.Register(sess)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.auth.OnDisconnect(context.Background(), sess)
		s.broker.Unregister(sess)
		sess.Close(websocket.CloseNormalClosure, "")
		sess.logger.Debug("Session closed", "user_id", sess.UserID())
	}()

	go sess.writeLoop(pingCheckTick)
	go s.keepAlive(ctx, sess)

	if s.cfg.MaxFrameSize > 0 {
		conn.SetReadLimit(s.cfg.MaxFrameSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(connectTimeout))

	var expect time.Duration
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, CloseAuthFailed) {
				sess.logger.Debug("WebSocket read error", "error", err)
			}
			return
		}
		if expect > 0 {
			// 容忍网络抖动，按协商间隔的 3 倍判定超时
			_ = conn.SetReadDeadline(time.Now().Add(3 * expect))
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, err := decodeFrame(data)
		if err != nil {
			_ = sess.writeNow(errorFrame("malformed frame", err.Error()))
			return
		}
		if f == nil {
			continue
		}

		next, ok := s.handleFrame(ctx, sess, f)
		if !ok {
			return
		}
		// 只有 CONNECT 返回非负值，替换掉握手阶段的超时
		if next >= 0 {
			expect = next
			if expect > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(3 * expect))
			} else {
				_ = conn.SetReadDeadline(time.Time{})
			}
		}
	}
}

// handleFrame 处理一帧
// 返回新的期望心跳间隔（-1 表示不变）以及是否继续读取
func (s *Server) handleFrame(ctx context.Context, sess *Session, f *frame.Frame) (time.Duration, bool) {
	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		return s.handleConnect(ctx, sess, f)
	case frame.DISCONNECT:
		if receipt := f.Header.Get(frame.Receipt); receipt != "" {
			_ = sess.writeNow(receiptFrame(receipt))
		}
		return -1, false
	}

	if sess.State().Phase != PhaseAuthenticated {
		_ = sess.writeNow(errorFrame("connect required", "first frame must be CONNECT"))
		sess.Close(websocket.ClosePolicyViolation, "connect required")
		return -1, false
	}

	switch f.Command {
	case frame.SUBSCRIBE:
		id := f.Header.Get(frame.Id)
		dest := f.Header.Get(frame.Destination)
		if id == "" || dest == "" {
			_ = sess.writeNow(errorFrame("malformed frame", "SUBSCRIBE requires id and destination"))
			return -1, false
		}
		if !allowedSubscription(dest) {
			replyUnknownDestination(sess, dest)
		} else {
			sess.subscribe(id, dest)
		}
	case frame.UNSUBSCRIBE:
		sess.unsubscribe(f.Header.Get(frame.Id))
	case frame.SEND:
		dest := f.Header.Get(frame.Destination)
		if strings.HasPrefix(dest, PrefixApp+"/") {
			_ = s.commands.Dispatch(sess, dest, f.Body)
		} else {
			replyUnknownDestination(sess, dest)
		}
	case frame.ACK, frame.NACK, frame.BEGIN, frame.COMMIT, frame.ABORT:
		// 没有事务和确认语义，只回执
	default:
		_ = sess.writeNow(errorFrame("unknown command", f.Command))
		return -1, false
	}

	if receipt := f.Header.Get(frame.Receipt); receipt != "" {
		_ = sess.sendFrame(receiptFrame(receipt))
	}
	return -1, true
}

func (s *Server) handleConnect(ctx context.Context, sess *Session, f *frame.Frame) (time.Duration, bool) {
	if !acceptsVersion(f.Header.Get(frame.AcceptVersion)) {
		_ = sess.writeNow(errorFrame("unsupported protocol version", "supported versions are 1.0,1.1,1.2"))
		sess.Close(websocket.CloseProtocolError, "unsupported protocol version")
		return -1, false
	}

	send, expect, heartBeat := negotiateHeartbeat(f.Header.Get(frame.HeartBeat), s.cfg.HeartbeatInterval)
	ack := func(sess *Session) {
		sess.setHeartbeat(send)
		if err := sess.sendFrame(connectedFrame(sess.ID(), heartBeat)); err != nil {
			sess.logger.Debug("Send CONNECTED failed", "error", err)
		}
	}
	if !s.auth.OnConnect(ctx, sess, ack) {
		return -1, false
	}
	return expect, true
}

func replyUnknownDestination(sess *Session, destination string) {
	reply(sess, service.DestinationErrors, ErrorPayload{
		Code:        apperrors.CodeUnknownDestination,
		Message:     apperrors.ErrUnknownDestination.Message,
		Destination: destination,
	})
}

// keepAlive 定期续租会话占用，租约丢失说明占用已被接管，关闭本会话
func (s *Server) keepAlive(ctx context.Context, sess *Session) {
	ticker := time.NewTicker(s.cfg.RenewInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case <-ticker.C:
			if sess.State().Phase != PhaseAuthenticated {
				continue
			}
			ok, err := s.auth.Refresh(ctx, sess)
			if err != nil {
				sess.logger.Warn("Refresh session lease failed", "error", err)
				continue
			}
			if !ok {
				sess.logger.Warn("Session lease lost", "user_id", sess.UserID())
				sess.reject(ReasonDuplicateConnection)
				return
			}
		}
	}
}
