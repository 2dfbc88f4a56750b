package router

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/config"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/handler"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/health"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/realtime"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/repository/memstore"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/service"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/jwt"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/snowflake"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwtService, err := jwt.NewService(key, &key.PublicKey, time.Minute, time.Hour)
	require.NoError(t, err)

	cfg := &config.Config{
		App:      config.AppConfig{Mode: gin.TestMode, NodeID: "node-1"},
		Realtime: config.RealtimeConfig{Path: "/ws"},
		CORS: config.CORSConfig{
			AllowedOrigins:   []string{"http://localhost:3000"},
			AllowedMethods:   []string{"GET", "POST"},
			AllowCredentials: true,
		},
	}

	db := memstore.New()
	broker := realtime.NewBroker()
	authHandler := handler.NewAuthHandler(service.NewAuthService(db.Users(), jwtService), cfg.Cookie)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	directory := service.NewConversationDirectory(db.Conversations(), node)
	msgLog := service.NewMessageLog(db.Messages(), node)
	notifier := service.NewPresenceNotifier(db.Conversations(), db.Users(), db.Listings(), msgLog, broker, "en")
	chat := service.NewChatService(directory, msgLog, notifier, db.Users(), db.Listings(), broker, nil, nil)
	chatHandler := handler.NewChatHandler(chat)

	srv := realtime.NewServer(cfg.Realtime, broker, nil, nil)
	checker := health.NewChecker(cfg.App.NodeID, broker)

	return SetupRouter(cfg, jwtService, authHandler, chatHandler, srv, checker)
}

func TestSetupRouter_Routes(t *testing.T) {
	r := setupTestRouter(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/ready", http.StatusOK},
		{http.MethodGet, "/api/v1/auth/me", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/auth/refresh", http.StatusUnauthorized},
		{http.MethodPost, "/api/v1/auth/logout", http.StatusOK},
		{http.MethodPost, "/api/v1/auth/login", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/chats/online", http.StatusUnauthorized},
		{http.MethodDelete, "/api/v1/admin/chats/1", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSetupRouter_WebSocketRequiresUpgrade(t *testing.T) {
	r := setupTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetupRouter_CORSPreflight(t *testing.T) {
	r := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
