package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boundSession(b *Broker, id string, userID int64) *Session {
	s, _ := newTestSession(id, nil)
	b.Register(s)
	s.bind(Principal{UserID: userID})
	b.BindUser(s, userID)
	return s
}

func TestBroker_SendToUser(t *testing.T) {
	b := NewBroker()
	alice := boundSession(b, "a", 101)
	bob := boundSession(b, "b", 202)
	alice.subscribe("sub-chats", "/user/queue/chats")
	bob.subscribe("sub-chats", "/user/queue/chats")

	require.NoError(t, b.SendToUser(context.Background(), 101, "/queue/chats", map[string]string{"id": "7"}))

	f := queued(t, alice)
	assert.Equal(t, frame.MESSAGE, f.Command)
	assert.Equal(t, "/user/queue/chats", f.Header.Get(frame.Destination))
	assert.Equal(t, "sub-chats", f.Header.Get(frame.Subscription))
	assert.NotEmpty(t, f.Header.Get(frame.MessageId))
	assert.JSONEq(t, `{"id":"7"}`, string(f.Body))

	assertNothingQueued(t, bob)
}

func TestBroker_SendToUserWithoutSubscription(t *testing.T) {
	b := NewBroker()
	alice := boundSession(b, "a", 101)
	alice.subscribe("sub-msgs", "/user/queue/messages")

	require.NoError(t, b.SendToUser(context.Background(), 101, "/queue/chats", "x"))
	assertNothingQueued(t, alice)

	// 不在线的用户不报错
	require.NoError(t, b.SendToUser(context.Background(), 999, "/queue/chats", "x"))
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker()
	alice := boundSession(b, "a", 101)
	alice.subscribe("sub-0", "/user/queue/chats")

	assert.True(t, alice.unsubscribe("sub-0"))
	assert.False(t, alice.unsubscribe("sub-0"))

	assert.Equal(t, 0, b.DeliverToUser(101, "/queue/chats", []byte(`{}`)))
}

type recordingRelay struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingRelay) Publish(_ context.Context, userID int64, destination string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, destination+" "+string(body))
	return r.err
}

func TestBroker_SendToUserThroughRelay(t *testing.T) {
	b := NewBroker()
	alice := boundSession(b, "a", 101)
	alice.subscribe("sub-chats", "/user/queue/chats")

	relay := &recordingRelay{}
	b.SetRelay(relay)

	require.NoError(t, b.SendToUser(context.Background(), 101, "/queue/chats", 1))
	assert.Equal(t, []string{"/queue/chats 1"}, relay.calls)
	// 经过中继时由订阅方投递，这里不直接投递
	assertNothingQueued(t, alice)

	relay.err = errors.New("nats down")
	assert.Error(t, b.SendToUser(context.Background(), 101, "/queue/chats", 1))
}

func TestBroker_PublishOnline(t *testing.T) {
	b := NewBroker()
	watcher, _ := newTestSession("w", nil)
	b.Register(watcher)
	watcher.subscribe("sub-online", TopicOnline)
	silent, _ := newTestSession("s", nil)
	b.Register(silent)

	b.PublishOnline(3)

	f := queued(t, watcher)
	assert.Equal(t, TopicOnline, f.Header.Get(frame.Destination))
	assert.JSONEq(t, `{"count":3}`, string(f.Body))
	assertNothingQueued(t, silent)
}

func TestBroker_Unregister(t *testing.T) {
	b := NewBroker()
	alice := boundSession(b, "a", 101)
	assert.Equal(t, 1, b.Count())

	b.Unregister(alice)
	assert.Equal(t, 0, b.Count())
	assert.Empty(t, b.UserSessions(101))
}

func TestBroker_CloseAll(t *testing.T) {
	b := NewBroker()
	s, tr := newTestSession("a", nil)
	b.Register(s)

	b.CloseAll(1001, "shutdown")

	code, text, closed := tr.closeStatus()
	assert.True(t, closed)
	assert.Equal(t, 1001, code)
	assert.Equal(t, "shutdown", text)
	assert.ErrorIs(t, s.sendFrame(receiptFrame("r")), errSessionClosed)
}

func TestSession_SendBufferOverflowCloses(t *testing.T) {
	s, tr := newTestSession("slow", nil)
	s.subscribe("sub", "/topic/online")

	for i := 0; i < cap(s.send); i++ {
		assert.Equal(t, 1, s.deliver("/topic/online", []byte(`{}`)))
	}
	assert.Equal(t, 0, s.deliver("/topic/online", []byte(`{}`)))

	_, _, closed := tr.closeStatus()
	assert.True(t, closed)
}
