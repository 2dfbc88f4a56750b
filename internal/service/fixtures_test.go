package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/repository/memstore"
	"github.com/Kirya343/WorkSwapCore-sub000/pkg/snowflake"
)

const (
	alice int64 = 101
	bob   int64 = 202
	carol int64 = 303
)

type push struct {
	UserID      int64
	Destination string
	Payload     any
}

type fakePusher struct {
	mu     sync.Mutex
	pushes []push
	err    error
}

func (p *fakePusher) SendToUser(_ context.Context, userID int64, destination string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pushes = append(p.pushes, push{userID, destination, payload})
	return nil
}

func (p *fakePusher) to(userID int64, destination string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for _, ps := range p.pushes {
		if ps.UserID == userID && ps.Destination == destination {
			out = append(out, ps.Payload)
		}
	}
	return out
}

type fakeEvents struct {
	mu     sync.Mutex
	keys   []string
	events []any
	err    error
}

func (e *fakeEvents) Publish(_ context.Context, routingKey string, event any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.keys = append(e.keys, routingKey)
	e.events = append(e.events, event)
	return nil
}

type fixedCounter int64

func (c fixedCounter) Current() int64 { return int64(c) }

// clock 单调递增的测试时钟，每次调用前进一秒
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type env struct {
	db        *memstore.DB
	directory *ConversationDirectory
	log       *MessageLog
	notifier  *PresenceNotifier
	chat      *ChatService
	pusher    *fakePusher
	events    *fakeEvents
}

func newEnv(t *testing.T) *env {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := newClock()

	db := memstore.New()
	db.PutUser(&model.User{ID: alice, Email: "alice@example.com", Name: "Alice", Avatar: "a.png", Locale: "ru"})
	db.PutUser(&model.User{ID: bob, Email: "bob@example.com", Name: "Bob", Avatar: "b.png", Locale: "en"})
	db.PutUser(&model.User{ID: carol, Email: "carol@example.com", Name: "Carol"})
	db.PutListing(&model.Listing{
		ID:       55,
		OwnerID:  bob,
		Title:    "Bicycle",
		Titles:   map[string]string{"en": "Bicycle", "ru": "Велосипед"},
		ImageURL: "bike.jpg",
		Active:   true,
	})

	directory := NewConversationDirectory(db.Conversations(), node)
	directory.now = clk.Now
	log := NewMessageLog(db.Messages(), node)
	log.now = clk.Now

	pusher := &fakePusher{}
	events := &fakeEvents{}
	notifier := NewPresenceNotifier(db.Conversations(), db.Users(), db.Listings(), log, pusher, "en")
	chat := NewChatService(directory, log, notifier, db.Users(), db.Listings(), pusher, events, fixedCounter(3))

	return &env{
		db:        db,
		directory: directory,
		log:       log,
		notifier:  notifier,
		chat:      chat,
		pusher:    pusher,
		events:    events,
	}
}

func ptr(v int64) *int64 { return &v }

var errDown = errors.New("broker down")
