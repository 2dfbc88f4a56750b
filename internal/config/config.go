package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Cookie   CookieConfig   `mapstructure:"cookie"`
	Session  SessionConfig  `mapstructure:"session"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

type AppConfig struct {
	Name          string `mapstructure:"name"`
	Port          int    `mapstructure:"port"`
	Mode          string `mapstructure:"mode"`
	NodeID        string `mapstructure:"node_id"`
	WorkerID      int64  `mapstructure:"worker_id"`
	DefaultLocale string `mapstructure:"default_locale"`
}

// JWTConfig RS256 密钥对路径与有效期
type JWTConfig struct {
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	Issuer         string        `mapstructure:"issuer"`
	AccessExpire   time.Duration `mapstructure:"access_expire"`
	RefreshExpire  time.Duration `mapstructure:"refresh_expire"`
}

// CookieConfig 令牌 Cookie 属性
type CookieConfig struct {
	Domain   string `mapstructure:"domain"`
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
}

// SameSiteMode 转换为 http.SameSite
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// SessionConfig 实时会话注册表
// Backend: local | redis；LeaseTTL 为 0 表示只在断开时释放
type SessionConfig struct {
	Backend  string        `mapstructure:"backend"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

// RealtimeConfig STOMP 端点
type RealtimeConfig struct {
	Path              string        `mapstructure:"path"`
	Relay             string        `mapstructure:"relay"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	MaxFrameSize      int64         `mapstructure:"max_frame_size"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queue_size"`
}

// RenewInterval 会话续租周期，未配置心跳时为 10s
func (c RealtimeConfig) RenewInterval() time.Duration {
	if c.HeartbeatInterval <= 0 {
		return 10 * time.Second
	}
	return c.HeartbeatInterval
}

// DatabaseConfig 数据库
// Driver: postgres | memory，memory 仅用于本地调试
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN 返回 PostgreSQL 连接串
func (c DatabaseConfig) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, sslMode)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr 获取 Redis 地址
func (c RedisConfig) Addr() string {
	if c.Host == "" {
		return "localhost:6379"
	}
	if c.Port <= 0 {
		return c.Host + ":6379"
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig NATS 配置
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// RabbitMQConfig 聊天事件发布
type RabbitMQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// LogConfig 日志配置
// Format: json | text；FluentHost 非空时同时写入 Fluentd
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	FluentHost string `mapstructure:"fluent_host"`
	FluentPort int    `mapstructure:"fluent_port"`
	FluentTag  string `mapstructure:"fluent_tag"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 从环境变量覆盖配置
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "workswap")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.mode", "release")
	v.SetDefault("app.node_id", "node-1")
	v.SetDefault("app.worker_id", 1)
	v.SetDefault("app.default_locale", "en")
	v.SetDefault("jwt.issuer", "workswap")
	v.SetDefault("jwt.access_expire", 30*time.Minute)
	v.SetDefault("jwt.refresh_expire", 30*24*time.Hour)
	v.SetDefault("cookie.same_site", "lax")
	v.SetDefault("session.backend", "local")
	v.SetDefault("realtime.path", "/ws")
	v.SetDefault("realtime.relay", "local")
	v.SetDefault("realtime.heartbeat_interval", 10*time.Second)
	v.SetDefault("realtime.write_timeout", 10*time.Second)
	v.SetDefault("realtime.max_frame_size", 64*1024)
	v.SetDefault("realtime.send_buffer", 256)
	v.SetDefault("realtime.workers", 32)
	v.SetDefault("realtime.queue_size", 1024)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("rabbitmq.exchange", "workswap.events")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.fluent_port", 24224)
	v.SetDefault("log.fluent_tag", "workswap")
}

// applyEnv 从环境变量覆盖配置
func (c *Config) applyEnv() {
	// App
	c.App.Port = GetEnvInt("WORKSWAP_PORT", c.App.Port)
	c.App.Mode = GetEnv("GIN_MODE", c.App.Mode)
	c.App.NodeID = GetEnv("NODE_ID", c.App.NodeID)

	// JWT
	c.JWT.PrivateKeyPath = GetEnv("JWT_PRIVATE_KEY_PATH", c.JWT.PrivateKeyPath)
	c.JWT.PublicKeyPath = GetEnv("JWT_PUBLIC_KEY_PATH", c.JWT.PublicKeyPath)
	c.JWT.AccessExpire = GetEnvDuration("JWT_ACCESS_EXPIRE", c.JWT.AccessExpire)
	c.JWT.RefreshExpire = GetEnvDuration("JWT_REFRESH_EXPIRE", c.JWT.RefreshExpire)

	// Cookie
	c.Cookie.Domain = GetEnv("COOKIE_DOMAIN", c.Cookie.Domain)
	c.Cookie.Secure = GetEnvBool("COOKIE_SECURE", c.Cookie.Secure)
	c.Cookie.SameSite = GetEnv("COOKIE_SAME_SITE", c.Cookie.SameSite)

	// Session / Realtime
	c.Session.Backend = GetEnv("SESSION_BACKEND", c.Session.Backend)
	c.Session.LeaseTTL = GetEnvDuration("SESSION_LEASE_TTL", c.Session.LeaseTTL)
	c.Realtime.Relay = GetEnv("REALTIME_RELAY", c.Realtime.Relay)
	c.Realtime.AllowedOrigins = GetEnvSlice("REALTIME_ALLOWED_ORIGINS", c.Realtime.AllowedOrigins)

	// Database
	c.Database.Driver = GetEnv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.Host = GetEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = GetEnvInt("POSTGRES_PORT", c.Database.Port)
	c.Database.User = GetEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = GetEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.Name = GetEnv("POSTGRES_DB", c.Database.Name)
	c.Database.MaxOpenConns = GetEnvInt("POSTGRES_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = GetEnvInt("POSTGRES_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	// Redis
	c.Redis.Host = GetEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = GetEnvInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = GetEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = GetEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.PoolSize = GetEnvInt("REDIS_POOL_SIZE", c.Redis.PoolSize)

	// NATS / RabbitMQ
	c.NATS.URL = GetEnv("NATS_URL", c.NATS.URL)
	c.RabbitMQ.Enabled = GetEnvBool("RABBITMQ_ENABLED", c.RabbitMQ.Enabled)
	c.RabbitMQ.URL = GetEnv("RABBITMQ_URL", c.RabbitMQ.URL)

	// Log
	c.Log.Level = GetEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = GetEnv("LOG_FORMAT", c.Log.Format)
	c.Log.FluentHost = GetEnv("FLUENT_HOST", c.Log.FluentHost)
}

// Validate 校验互相依赖的配置项
func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "local", "redis":
	default:
		return fmt.Errorf("session.backend must be local or redis, got %q", c.Session.Backend)
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver)
	}
	switch c.Realtime.Relay {
	case "local":
	case "nats":
		if c.NATS.URL == "" {
			return fmt.Errorf("realtime.relay is nats but nats.url is empty")
		}
	default:
		return fmt.Errorf("realtime.relay must be local or nats, got %q", c.Realtime.Relay)
	}
	if c.JWT.PrivateKeyPath == "" && c.JWT.PublicKeyPath == "" {
		return fmt.Errorf("jwt.private_key_path or jwt.public_key_path is required")
	}
	// 租约必须长于续租周期，否则正常连接会在两次续租之间过期
	if c.Session.LeaseTTL > 0 && c.Session.LeaseTTL <= c.Realtime.RenewInterval() {
		return fmt.Errorf("session.lease_ttl (%s) must exceed realtime.heartbeat_interval (%s)",
			c.Session.LeaseTTL, c.Realtime.RenewInterval())
	}
	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		return fmt.Errorf("rabbitmq.enabled requires rabbitmq.url")
	}
	return nil
}
