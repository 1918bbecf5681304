package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/signalrun/internal/domain"
)

func TestMemory_SetGet(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k", []byte("v"), 0)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

func TestMemory_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c := &memory{m: make(map[string]entry), now: func() time.Time { return now }}
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"), time.Minute)
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "entry past TTL must expire")
}

func TestMemory_SetCopiesValue(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	val := []byte("abc")
	c.Set(ctx, "k", val, 0)
	val[0] = 'x'

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), got)
}

func TestSessionCache_RoundTrip(t *testing.T) {
	sc := NewSessionCache(NewMemory(), time.Minute)
	ctx := context.Background()

	assert.Nil(t, sc.Get(ctx), "empty cache misses")

	vix := 18.5
	session := &domain.SessionContext{
		Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Regime:    "BULLISH",
		VIXLevel:  &vix,
	}
	sc.Put(ctx, session)

	got := sc.Get(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "BULLISH", got.Regime)
	require.NotNil(t, got.VIXLevel)
	assert.Equal(t, 18.5, *got.VIXLevel)
}

func TestSessionCache_UndecodableEntryIsMiss(t *testing.T) {
	backing := NewMemory()
	sc := NewSessionCache(backing, time.Minute)
	ctx := context.Background()

	backing.Set(ctx, "session:context", []byte("{not json"), 0)
	assert.Nil(t, sc.Get(ctx))
}
