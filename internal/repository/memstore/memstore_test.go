package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/model"
	"github.com/Kirya343/WorkSwapCore-sub000/internal/repository"
)

func TestConversations_InsertCollapsesDuplicates(t *testing.T) {
	ctx := context.Background()
	convs := New().Conversations()
	listing := int64(5)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[int64]struct{}{}
	)
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			got, err := convs.Insert(ctx, &model.Conversation{ID: id, UserLow: 1, UserHigh: 2, ListingID: &listing, CreatedAt: time.Now()})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			ids[got.ID] = struct{}{}
			mu.Unlock()
		}(int64(i))
	}
	wg.Wait()
	assert.Len(t, ids, 1)

	general, err := convs.Insert(ctx, &model.Conversation{ID: 100, UserLow: 1, UserHigh: 2, CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, int64(100), general.ID)
}

func TestMessages_AppendUnknownConversation(t *testing.T) {
	db := New()
	err := db.Messages().Append(context.Background(), &model.Message{ID: 1, ConversationID: 42})
	assert.ErrorIs(t, err, repository.ErrConversationNotFound)

	msgs, err := db.Messages().ListByConversation(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestConversations_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := New()
	conv, err := db.Conversations().Insert(ctx, &model.Conversation{ID: 1, UserLow: 1, UserHigh: 2, CreatedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, db.Messages().Append(ctx, &model.Message{ID: 10, ConversationID: conv.ID, SenderID: 1, ReceiverID: 2, SentAt: time.Now()}))

	require.NoError(t, db.Conversations().Delete(ctx, conv.ID))
	_, err = db.Messages().FindByID(ctx, 10)
	assert.ErrorIs(t, err, repository.ErrMessageNotFound)
	exists, err := db.Conversations().ExistsBetween(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.ErrorIs(t, db.Conversations().Delete(ctx, conv.ID), repository.ErrConversationNotFound)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	db := New()
	db.PutUser(&model.User{ID: 1, Email: "A@Example.com", Name: "Ann"})

	u, err := db.Users().GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	u.Name = "changed"

	again, err := db.Users().GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ann", again.Name)
}
