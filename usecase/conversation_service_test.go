package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/ami/domain/entities"
)

func TestConversationService_GetReturnsSameConversation(t *testing.T) {
	f := newFixture(t)

	a := f.conversations.Get("user-1")
	assert.Same(t, a, f.conversations.Get("user-1"))
	assert.NotSame(t, a, f.conversations.Get("user-2"))

	_, ok := f.conversations.Lookup("user-3")
	assert.False(t, ok)
}

func TestConversationService_ReapIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.StartSession(ctx, "user-1", nil)
	require.NoError(t, err)
	_, err = f.service.StartSession(ctx, "user-2", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, f.conversations.Active())
	assert.EqualValues(t, 2, f.counter(t, "ami.live.active_sessions"))

	assert.Zero(t, f.conversations.ReapIdle(time.Hour))
	assert.Zero(t, f.conversations.ReapIdle(0))

	time.Sleep(30 * time.Millisecond)
	_, err = f.service.SendTextMessage(ctx, "user-2", "still here")
	require.NoError(t, err)

	assert.Equal(t, 1, f.conversations.ReapIdle(20*time.Millisecond))
	assert.Equal(t, entities.SessionStateDisconnected, f.conversations.Get("user-1").State())
	assert.Equal(t, entities.SessionStateConnected, f.conversations.Get("user-2").State())
	assert.EqualValues(t, 1, f.counter(t, "ami.live.active_sessions"))
}

func TestConversationService_Close(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.StartSession(ctx, "user-1", nil)
	require.NoError(t, err)

	f.conversations.Close()
	assert.Zero(t, f.conversations.Active())
	assert.EqualValues(t, 0, f.counter(t, "ami.live.active_sessions"))
}

func TestConversationService_ReapIdleForgetsDisconnectedUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.StartSession(ctx, "user-1", nil)
	require.NoError(t, err)
	require.NoError(t, f.service.EndSession(ctx, "user-1"))
	f.conversations.Get("user-2")

	// entries handed out within ttl survive
	f.conversations.ReapIdle(time.Hour)
	_, ok := f.conversations.Lookup("user-1")
	assert.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, err = f.service.StartSession(ctx, "user-3", nil)
	require.NoError(t, err)

	assert.Zero(t, f.conversations.ReapIdle(20*time.Millisecond))
	_, ok = f.conversations.Lookup("user-1")
	assert.False(t, ok)
	_, ok = f.conversations.Lookup("user-2")
	assert.False(t, ok)
	_, ok = f.conversations.Lookup("user-3")
	assert.True(t, ok)
}
