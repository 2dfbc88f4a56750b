package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/config"
)

type recordingPoster struct {
	mu    sync.Mutex
	tags  []string
	posts []map[string]interface{}
}

func (p *recordingPoster) Post(tag string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tags = append(p.tags, tag)
	p.posts = append(p.posts, message.(map[string]interface{}))
	return nil
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New(config.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	log.Debug("hidden")
	log.Info("session acquired", "user_id", int64(7))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "session acquired", entry["msg"])
	assert.Equal(t, float64(7), entry["user_id"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New(config.LogConfig{Level: "debug", Format: "text"}, &buf)
	require.NoError(t, err)

	log.Debug("frame received", "command", "CONNECT")
	assert.Contains(t, buf.String(), "frame received")
	assert.Contains(t, buf.String(), "CONNECT")
}

func TestFluentHandler(t *testing.T) {
	poster := &recordingPoster{}
	var buf bytes.Buffer
	log := slog.New(fanout{
		slog.NewJSONHandler(&buf, nil),
		NewFluentHandler(poster, "ws", slog.LevelInfo),
	})

	log.Debug("dropped")
	log.With("node", "n1").WithGroup("chat").Error("append failed",
		"chat_id", int64(3),
		"error", errors.New("boom"),
	)

	require.Len(t, poster.posts, 1)
	assert.Equal(t, "ws.error", poster.tags[0])
	post := poster.posts[0]
	assert.Equal(t, "append failed", post["message"])
	assert.Equal(t, "n1", post["node"])
	assert.Equal(t, int64(3), post["chat.chat_id"])
	assert.Equal(t, "boom", post["chat.error"])
	assert.Contains(t, buf.String(), "append failed")
}
