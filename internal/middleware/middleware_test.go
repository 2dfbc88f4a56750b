package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kirya343/WorkSwapCore-sub000/pkg/jwt"
)

var (
	keyOnce   sync.Once
	sharedKey *rsa.PrivateKey
)

func newJWT(t *testing.T, opts ...jwt.Option) *jwt.Service {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		sharedKey = key
	})
	svc, err := jwt.NewService(sharedKey, &sharedKey.PublicKey, time.Minute, time.Hour, opts...)
	require.NoError(t, err)
	return svc
}

func newRouter(svc *jwt.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTAuth(svc), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c), "subject": GetClaims(c).Subject})
	})
	r.GET("/admin", JWTAuth(svc), RequireRole("ADMIN"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestJWTAuth(t *testing.T) {
	svc := newJWT(t)
	r := newRouter(svc)
	token, _, err := svc.IssueAccess(jwt.Identity{UserID: 101, Key: "alice@example.com"}, []string{"USER"}, nil)
	require.NoError(t, err)
	refresh, _, err := svc.IssueRefresh(jwt.Identity{UserID: 101, Key: "alice@example.com"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		prepare    func(req *http.Request)
		wantStatus int
		wantCode   string
	}{
		{"bearer header", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK, ""},
		{"cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: token}) }, http.StatusOK, ""},
		{"missing", func(req *http.Request) {}, http.StatusUnauthorized, "10007"},
		{"wrong scheme", func(req *http.Request) { req.Header.Set("Authorization", "Basic "+token) }, http.StatusUnauthorized, "10007"},
		{"refresh token", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+refresh) }, http.StatusUnauthorized, "10003"},
		{"garbage", func(req *http.Request) { req.Header.Set("Authorization", "Bearer abc") }, http.StatusUnauthorized, "10003"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Contains(t, w.Body.String(), `"code":`+tt.wantCode)
			} else {
				assert.JSONEq(t, `{"user_id":101,"subject":"alice@example.com"}`, w.Body.String())
			}
		})
	}
}

func TestJWTAuth_Expired(t *testing.T) {
	svc := newJWT(t)
	token, _, err := svc.IssueAccess(jwt.Identity{UserID: 101, Key: "alice@example.com"}, nil, nil)
	require.NoError(t, err)

	later := newJWT(t, jwt.WithClock(func() time.Time { return time.Now().Add(time.Hour) }))
	r := newRouter(later)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":10004`)
}

func TestRequireRole(t *testing.T) {
	svc := newJWT(t)
	r := newRouter(svc)

	user, _, err := svc.IssueAccess(jwt.Identity{UserID: 101, Key: "alice@example.com"}, []string{"USER"}, nil)
	require.NoError(t, err)
	admin, _, err := svc.IssueAccess(jwt.Identity{UserID: 1, Key: "root@example.com"}, []string{"ADMIN"}, nil)
	require.NoError(t, err)

	for token, want := range map[string]int{user: http.StatusForbidden, admin: http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code)
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}, []string{"GET", "POST"}, true))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}
