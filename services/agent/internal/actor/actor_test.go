package actor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/diagnosis/ukrbe-market/internal/device"
	"github.com/diagnosis/ukrbe-market/internal/otp"
	"github.com/diagnosis/ukrbe-market/pkg/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor_AnonymousWithoutSession(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	gate := otp.NewGate(nil, otp.NewLimiter(store), store)
	a := New(gate, device.NewIdentity(store))

	owner, err := a.OwnerID(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(owner, "local-"))
	assert.Empty(t, a.Token(ctx))

	again, err := a.AnonymousID(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, again)
}

func TestActor_SignedInUserWins(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Save(ctx, "auth:session", otp.Session{
		UserID:    "user-1",
		Token:     "jwt",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	gate := otp.NewGate(nil, otp.NewLimiter(store), store)
	a := New(gate, device.NewIdentity(store))

	owner, err := a.OwnerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", owner)
	assert.Equal(t, "jwt", a.Token(ctx))
}

func TestActor_ExpiredSessionFallsBack(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Save(ctx, "auth:session", otp.Session{
		UserID:    "user-1",
		Token:     "jwt",
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	gate := otp.NewGate(nil, otp.NewLimiter(store), store)
	a := New(gate, device.NewIdentity(store))

	owner, err := a.OwnerID(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(owner, "local-"))
	assert.Empty(t, a.Token(ctx))
}
