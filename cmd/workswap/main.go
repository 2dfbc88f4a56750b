package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	_ "github.com/Kirya343/WorkSwapCore-sub000/docs"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/config"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/events"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/handler"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/health"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/logger"
	natsclient "github.com/Kirya343/WorkSwapCore-sub000/internal/nats"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/realtime"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/repository"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/repository/memstore"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/router"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/service"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/session"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/workerpool"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/jwt"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/snowflake"
)

// @title                       WorkSwap Chat API
// @version                     1.0
// @description                 令牌签发与 STOMP 实时聊天入口
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	configPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	// .env 不存在时忽略
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	log, logCloser, err := logger.New(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("Failed to init logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	os.Exit(finish(log, logCloser, run(cfg, log)))
}

// finish 记录失败原因并关闭日志，os.Exit 不会执行 defer，缓冲中的 Fluentd 记录要在退出前写出
func finish(log *slog.Logger, closer io.Closer, err error) int {
	code := 0
	if err != nil {
		log.Error("Server failed", "error", err)
		code = 1
	}
	if cerr := closer.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "close logger: %v\n", cerr)
	}
	return code
}

// stores 持久化实现，postgres 或内存
type stores struct {
	users         service.UserStore
	listings      service.ListingStore
	conversations service.ConversationStore
	messages      service.MessageStore
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 JWT 服务
	privateKey, publicKey, err := jwt.LoadKeys(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath)
	if err != nil {
		return fmt.Errorf("load jwt keys: %w", err)
	}
	var jwtOpts []jwt.Option
	if cfg.JWT.Issuer != "" {
		jwtOpts = append(jwtOpts, jwt.WithIssuer(cfg.JWT.Issuer))
	}
	jwtService, err := jwt.NewService(privateKey, publicKey, cfg.JWT.AccessExpire, cfg.JWT.RefreshExpire, jwtOpts...)
	if err != nil {
		return fmt.Errorf("init jwt: %w", err)
	}

	// 连接数据库
	var (
		st       stores
		checkOpt []health.Option
	)
	switch cfg.Database.Driver {
	case "memory":
		db := memstore.New()
		st = stores{db.Users(), db.Listings(), db.Conversations(), db.Messages()}
		log.Warn("Using in-memory store, data is lost on restart")
	default:
		pool, err := connectDatabase(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		log.Info("Connected to PostgreSQL", "host", cfg.Database.Host)
		st = stores{
			repository.NewUserRepository(pool),
			repository.NewListingRepository(pool),
			repository.NewConversationRepository(pool),
			repository.NewMessageRepository(pool),
		}
		checkOpt = append(checkOpt, health.WithDatabase(pool))
	}

	// 连接 Redis，仅 redis 会话注册表需要
	var redisClient *redis.Client
	if cfg.Session.Backend == "redis" {
		redisClient = connectRedis(cfg.Redis)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		log.Info("Connected to Redis", "addr", cfg.Redis.Addr())
		checkOpt = append(checkOpt, health.WithRedis(redisClient))
	}

	registry, err := session.New(cfg.Session, redisClient)
	if err != nil {
		return err
	}

	// 初始化雪花ID生成器
	sfNode, err := snowflake.NewNode(cfg.App.WorkerID)
	if err != nil {
		return fmt.Errorf("create snowflake node: %w", err)
	}

	// 聊天事件
	publisher, err := events.New(cfg.RabbitMQ)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer publisher.Close()

	// 实时推送
	broker := realtime.NewBroker()
	presence := session.NewPresence(broker.PublishOnline)
	checkOpt = append(checkOpt, health.WithOnline(presence))

	if cfg.Realtime.Relay == "nats" {
		nc, err := natsclient.Connect(cfg.NATS, cfg.App.NodeID)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()

		relay := natsclient.NewUserRelay(nc, broker)
		if err := relay.Start(); err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
		defer relay.Stop()
		broker.SetRelay(relay)
		checkOpt = append(checkOpt, health.WithNATS(nc))
	}

	// 初始化 Service
	directory := service.NewConversationDirectory(st.conversations, sfNode)
	msgLog := service.NewMessageLog(st.messages, sfNode)
	notifier := service.NewPresenceNotifier(st.conversations, st.users, st.listings, msgLog, broker, cfg.App.DefaultLocale)
	chatService := service.NewChatService(directory, msgLog, notifier, st.users, st.listings, broker, publisher, presence)
	authService := service.NewAuthService(st.users, jwtService)

	// STOMP 端点
	pool := workerpool.New(cfg.Realtime.Workers, cfg.Realtime.QueueSize, log)
	commands, err := realtime.NewCommands(chatService, pool)
	if err != nil {
		return fmt.Errorf("compile command schemas: %w", err)
	}
	authenticator := realtime.NewAuthenticator(jwtService, registry, presence, broker)
	realtimeServer := realtime.NewServer(cfg.Realtime, broker, authenticator, commands)

	// 设置路由
	checker := health.NewChecker(cfg.App.NodeID, broker, checkOpt...)
	authHandler := handler.NewAuthHandler(authService, cfg.Cookie)
	chatHandler := handler.NewChatHandler(chatService)
	r := router.SetupRouter(cfg, jwtService, authHandler, chatHandler, realtimeServer, checker)

	// 启动服务器
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Server started", "addr", httpServer.Addr, "mode", cfg.App.Mode, "node", cfg.App.NodeID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	log.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", "error", err)
	}
	broker.CloseAll(1001, "server shutting down")
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Warn("Worker pool did not drain", "error", err, "pending", pool.Pending())
	}

	log.Info("Server stopped")
	return nil
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}
