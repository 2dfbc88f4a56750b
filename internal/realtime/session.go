package realtime

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	apperrors "github.com/Kirya343/WorkSwapCore-sub000/pkg/errors"
)

// CloseAuthFailed 认证失败的 WebSocket 关闭码
const CloseAuthFailed = 4001

// headerErrorCode ERROR 帧携带的业务错误码
const headerErrorCode = "code"

// 会话属性键
const (
	AttrAccessToken = "accessToken"
	AttrLocale      = "locale"
	AttrRemoteAddr  = "remoteAddr"
)

var errSessionClosed = errors.New("session closed")

// transport *websocket.Conn 的写端
type transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session 一个 STOMP over WebSocket 连接
// attrs 在握手时写入，之后只读
type Session struct {
	id     string
	attrs  map[string]string
	conn   transport
	logger *slog.Logger

	writeTimeout time.Duration

	// mu 串行化状态机
	mu    sync.Mutex
	state State

	userID atomic.Int64

	subMu sync.RWMutex
	subs  map[string]string // subscription id -> destination

	writeMu   sync.Mutex
	send      chan []byte
	heartbeat atomic.Int64 // 服务端心跳间隔，纳秒，0 表示不发送
	msgSeq    atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id string, attrs map[string]string, conn transport, sendBuffer int, writeTimeout time.Duration, logger *slog.Logger) *Session {
	if attrs == nil {
		attrs = map[string]string{}
	}
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:           id,
		attrs:        attrs,
		conn:         conn,
		logger:       logger.With("session_id", id),
		writeTimeout: writeTimeout,
		subs:         make(map[string]string),
		send:         make(chan []byte, sendBuffer),
		closed:       make(chan struct{}),
	}
}

// ID 会话 ID
func (s *Session) ID() string { return s.id }

// Attribute 读取握手属性
func (s *Session) Attribute(key string) string { return s.attrs[key] }

// UserID 绑定的用户，未认证时为 0
func (s *Session) UserID() int64 { return s.userID.Load() }

// Locale 握手时解析出的语言
func (s *Session) Locale() string { return s.attrs[AttrLocale] }

// State 当前认证状态快照
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done 会话关闭后关闭
func (s *Session) Done() <-chan struct{} { return s.closed }

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) bind(p Principal) {
	s.userID.Store(p.UserID)
}

func (s *Session) subscribe(id, destination string) {
	s.subMu.Lock()
	s.subs[id] = destination
	s.subMu.Unlock()
}

func (s *Session) unsubscribe(id string) bool {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return false
	}
	delete(s.subs, id)
	return true
}

// subscriptionsFor 订阅了 destination 的订阅 ID
func (s *Session) subscriptionsFor(destination string) []string {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	var ids []string
	for id, dest := range s.subs {
		if dest == destination {
			ids = append(ids, id)
		}
	}
	return ids
}

// deliver 向订阅了 destination 的每个订阅发送 MESSAGE 帧，返回发送数
func (s *Session) deliver(destination string, body []byte) int {
	n := 0
	for _, subID := range s.subscriptionsFor(destination) {
		msgID := s.id + "-" + strconv.FormatUint(s.msgSeq.Add(1), 10)
		if err := s.sendFrame(messageFrame(destination, subID, msgID, body)); err != nil {
			s.logger.Debug("Deliver message failed", "destination", destination, "error", err)
			continue
		}
		n++
	}
	return n
}

// sendFrame 异步发送，发送缓冲区满说明客户端太慢，直接断开
func (s *Session) sendFrame(f *frame.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	return s.enqueue(data)
}

func (s *Session) enqueue(data []byte) error {
	if s.isClosed() {
		return errSessionClosed
	}
	select {
	case s.send <- data:
		return nil
	case <-s.closed:
		return errSessionClosed
	default:
		s.logger.Warn("Send buffer full, closing session", "user_id", s.UserID())
		s.Close(websocket.ClosePolicyViolation, "send buffer overflow")
		return errSessionClosed
	}
}

// writeNow 同步写一帧，用于关闭前必须送达的 ERROR/RECEIPT
func (s *Session) writeNow(f *frame.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.write(websocket.TextMessage, data)
}

// write 调用方持有 writeMu
func (s *Session) write(messageType int, data []byte) error {
	if s.conn == nil {
		return errSessionClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(messageType, data)
}

// setHeartbeat 设置服务端心跳发送间隔
func (s *Session) setHeartbeat(d time.Duration) {
	s.heartbeat.Store(int64(d))
}

// writeLoop 唯一的异步写协程
// tick 是检查心跳的粒度，实际心跳间隔由协商结果决定
func (s *Session) writeLoop(tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	lastWrite := time.Now()
	for {
		select {
		case <-s.closed:
			return
		case data := <-s.send:
			s.writeMu.Lock()
			err := s.write(websocket.TextMessage, data)
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("Write failed", "error", err)
				s.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
			lastWrite = time.Now()
		case now := <-ticker.C:
			hb := time.Duration(s.heartbeat.Load())
			if hb <= 0 || now.Sub(lastWrite) < hb {
				continue
			}
			s.writeMu.Lock()
			err := s.write(websocket.TextMessage, []byte{'\n'})
			s.writeMu.Unlock()
			if err != nil {
				s.Close(websocket.CloseAbnormalClosure, "heartbeat failed")
				return
			}
			lastWrite = now
		}
	}
}

// reject 发送 ERROR 帧后以 4001 关闭
func (s *Session) reject(reason string) {
	f := errorFrame(reason, "")
	if reason == ReasonDuplicateConnection {
		f = errorFrame(reason, apperrors.ErrDuplicateConnection.Message)
		f.Header.Set(headerErrorCode, strconv.Itoa(apperrors.ErrDuplicateConnection.Code))
	}
	if err := s.writeNow(f); err != nil {
		s.logger.Debug("Write error frame failed", "error", err)
	}
	s.Close(CloseAuthFailed, reason)
}

// Close 发送关闭帧并关闭底层连接，可重复调用
func (s *Session) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.conn == nil {
			return
		}
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(s.writeTimeout))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}
