package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const (
	StateConnected     = "connected"
	StateDisconnected  = "disconnected"
	StateNotConfigured = "not configured"
)

// Status 健康状态
type Status struct {
	Service     string `json:"service"`
	Node        string `json:"node"`
	Database    string `json:"database"`
	Redis       string `json:"redis"`
	NATS        string `json:"nats"`
	Connections int    `json:"connections"`
	Online      int64  `json:"online"`
}

// Ready 所有已配置的依赖均可用
func (s *Status) Ready() bool {
	for _, state := range []string{s.Database, s.Redis, s.NATS} {
		if state == StateDisconnected {
			return false
		}
	}
	return true
}

// Pinger 数据库连通性，pgxpool.Pool 满足
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionCounter 连接计数器接口
type ConnectionCounter interface {
	Count() int
}

// OnlineCounter 在线人数
type OnlineCounter interface {
	Current() int64
}

// Checker 健康检查器
type Checker struct {
	node        string
	db          Pinger
	redisClient *redis.Client
	nc          *nats.Conn
	connCounter ConnectionCounter
	online      OnlineCounter
}

// Option 可选依赖
type Option func(*Checker)

// WithDatabase 检查数据库
func WithDatabase(db Pinger) Option {
	return func(h *Checker) { h.db = db }
}

// WithRedis 检查 Redis
func WithRedis(client *redis.Client) Option {
	return func(h *Checker) { h.redisClient = client }
}

// WithNATS 检查 NATS
func WithNATS(nc *nats.Conn) Option {
	return func(h *Checker) { h.nc = nc }
}

// WithOnline 报告在线人数
func WithOnline(online OnlineCounter) Option {
	return func(h *Checker) { h.online = online }
}

// NewChecker 创建健康检查器
func NewChecker(node string, connCounter ConnectionCounter, opts ...Option) *Checker {
	h := &Checker{
		node:        node,
		connCounter: connCounter,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		Service:  "workswap",
		Node:     h.node,
		Database: StateNotConfigured,
		Redis:    StateNotConfigured,
		NATS:     StateNotConfigured,
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// 检查数据库
	if h.db != nil {
		status.Database = stateOf(h.db.Ping(ctx) == nil)
	}

	// 检查 Redis
	if h.redisClient != nil {
		status.Redis = stateOf(h.redisClient.Ping(ctx).Err() == nil)
	}

	// 检查 NATS
	if h.nc != nil {
		status.NATS = stateOf(h.nc.IsConnected())
	}

	if h.connCounter != nil {
		status.Connections = h.connCounter.Count()
	}
	if h.online != nil {
		status.Online = h.online.Current()
	}

	return status
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Ready()
}

// ServeHTTP 存活探针，始终 200
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, h.Check(r.Context()))
}

// Readiness 就绪探针，依赖不可用时 503
func (h *Checker) Readiness() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())
		code := http.StatusOK
		if !status.Ready() {
			code = http.StatusServiceUnavailable
		}
		writeStatus(w, code, status)
	})
}

func writeStatus(w http.ResponseWriter, code int, status *Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func stateOf(ok bool) string {
	if ok {
		return StateConnected
	}
	return StateDisconnected
}
