package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type counter int

func (c counter) Count() int { return int(c) }

type online int64

func (o online) Current() int64 { return int64(o) }

func serve(t *testing.T, h http.Handler) (int, Status) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var status Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	return w.Code, status
}

func TestChecker_Healthy(t *testing.T) {
	h := NewChecker("node-1", counter(3), WithDatabase(pinger{}), WithOnline(online(2)))

	code, status := serve(t, h.Readiness())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "node-1", status.Node)
	assert.Equal(t, StateConnected, status.Database)
	assert.Equal(t, StateNotConfigured, status.Redis)
	assert.Equal(t, StateNotConfigured, status.NATS)
	assert.Equal(t, 3, status.Connections)
	assert.Equal(t, int64(2), status.Online)
	assert.True(t, h.IsHealthy(context.Background()))
}

func TestChecker_DatabaseDown(t *testing.T) {
	h := NewChecker("node-1", counter(0), WithDatabase(pinger{err: errors.New("refused")}))

	code, status := serve(t, h.Readiness())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StateDisconnected, status.Database)

	// 存活探针不受依赖影响
	code, _ = serve(t, h)
	assert.Equal(t, http.StatusOK, code)
}

func TestChecker_RedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	h := NewChecker("node-1", nil, WithRedis(client))
	status := h.Check(context.Background())
	assert.Equal(t, StateDisconnected, status.Redis)
	assert.False(t, status.Ready())
}
