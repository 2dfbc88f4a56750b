package realtime

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Kirya343/WorkSwapCore-sub000/pkg/jwt"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func newTokens(t *testing.T, opts ...jwt.Option) *jwt.Service {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	svc, err := jwt.NewService(testKey, &testKey.PublicKey, time.Minute, time.Hour, opts...)
	require.NoError(t, err)
	return svc
}

func issueAccess(t *testing.T, svc *jwt.Service, userID int64, email string) string {
	t.Helper()
	token, _, err := svc.IssueAccess(jwt.Identity{UserID: userID, Key: email}, []string{"USER"}, nil)
	require.NoError(t, err)
	return token
}

// fakeTransport 记录同步写出的消息和关闭帧
type fakeTransport struct {
	mu        sync.Mutex
	messages  [][]byte
	closeCode int
	closeText string
	closed    bool
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return websocket.ErrCloseSent
	}
	f.messages = append(f.messages, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.CloseMessage && len(data) >= 2 {
		f.closeCode = int(binary.BigEndian.Uint16(data[:2]))
		f.closeText = string(data[2:])
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) frames(t *testing.T) []*frame.Frame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*frame.Frame
	for _, m := range f.messages {
		fr, err := decodeFrame(m)
		require.NoError(t, err)
		if fr != nil {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeTransport) closeStatus() (int, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode, f.closeText, f.closed
}

func newTestSession(id string, attrs map[string]string) (*Session, *fakeTransport) {
	tr := &fakeTransport{}
	return newSession(id, attrs, tr, 16, time.Second, nil), tr
}

// queued 读取已入队（尚未由 writeLoop 写出）的帧
func queued(t *testing.T, s *Session) *frame.Frame {
	t.Helper()
	select {
	case data := <-s.send:
		f, err := decodeFrame(data)
		require.NoError(t, err)
		require.NotNil(t, f)
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
		return nil
	}
}

func assertNothingQueued(t *testing.T, s *Session) {
	t.Helper()
	select {
	case data := <-s.send:
		t.Fatalf("unexpected frame queued: %q", data)
	default:
	}
}
