package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/config"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/handler"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/health"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/middleware"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/realtime"
)

// SetupRouter 设置路由
func SetupRouter(
	cfg *config.Config,
	validator middleware.AccessValidator,
	authHandler *handler.AuthHandler,
	chatHandler *handler.ChatHandler,
	realtimeServer *realtime.Server,
	checker *health.Checker,
) *gin.Engine {
	// 设置 Gin 模式
	gin.SetMode(cfg.App.Mode)

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowCredentials,
	))

	// Swagger 文档路由
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 探针
	r.GET("/health", gin.WrapH(checker))
	r.GET("/ready", gin.WrapH(checker.Readiness()))

	// STOMP 端点
	r.GET(cfg.Realtime.Path, realtimeServer.Handle)

	// API v1
	v1 := r.Group("/api/v1")
	{
		// 认证接口（无需登录）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
		}

		// 需要认证的接口
		authenticated := v1.Group("")
		authenticated.Use(middleware.JWTAuth(validator))
		{
			authenticated.GET("/auth/me", authHandler.Me)
			authenticated.GET("/chats/online", chatHandler.Online)

			// 管理接口
			admin := authenticated.Group("/admin")
			admin.Use(middleware.RequireRole("ADMIN"))
			{
				admin.DELETE("/chats/:id", chatHandler.DeleteChat)
			}
		}
	}

	return r
}
