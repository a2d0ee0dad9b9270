package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHistory(t *testing.T, cfg HistoryConfig) (*History, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewHistory(rdb, cfg, zap.NewNop()), mr
}

func TestHistoryAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t, DefaultHistoryConfig())

	require.NoError(t, h.Append(ctx, "s1", Turn{Question: "q1", Answer: "a1", Route: "rag"}))
	require.NoError(t, h.Append(ctx, "s1", Turn{Question: "q2", Answer: "a2", Route: "database"}))

	turns, err := h.Recent(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q1", turns[0].Question)
	assert.Equal(t, "q2", turns[1].Question)
	assert.Equal(t, "database", turns[1].Route)
	assert.False(t, turns[0].At.IsZero())
}

func TestHistoryTrimsToMaxTurns(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t, HistoryConfig{MaxTurns: 3})

	for i := 1; i <= 5; i++ {
		require.NoError(t, h.Append(ctx, "s1", Turn{Question: fmt.Sprintf("q%d", i)}))
	}

	turns, err := h.Recent(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "q3", turns[0].Question)
	assert.Equal(t, "q5", turns[2].Question)
}

func TestHistoryRecentLimitsCount(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t, DefaultHistoryConfig())

	for i := 1; i <= 4; i++ {
		require.NoError(t, h.Append(ctx, "s1", Turn{Question: fmt.Sprintf("q%d", i)}))
	}

	turns, err := h.Recent(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q3", turns[0].Question)
	assert.Equal(t, "q4", turns[1].Question)
}

func TestHistorySessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t, DefaultHistoryConfig())

	require.NoError(t, h.Append(ctx, "s1", Turn{Question: "mine"}))
	require.NoError(t, h.Append(ctx, "s2", Turn{Question: "theirs"}))

	turns, err := h.Recent(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "mine", turns[0].Question)
}

func TestHistoryTTL(t *testing.T) {
	ctx := context.Background()
	h, mr := newTestHistory(t, HistoryConfig{MaxTurns: 5, TTL: time.Minute})

	require.NoError(t, h.Append(ctx, "s1", Turn{Question: "q"}))
	mr.FastForward(2 * time.Minute)

	turns, err := h.Recent(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHistoryClear(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHistory(t, DefaultHistoryConfig())

	require.NoError(t, h.Append(ctx, "s1", Turn{Question: "q"}))
	require.NoError(t, h.Clear(ctx, "s1"))

	turns, err := h.Recent(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHistorySkipsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	h, mr := newTestHistory(t, DefaultHistoryConfig())

	require.NoError(t, h.Append(ctx, "s1", Turn{Question: "good"}))
	mr.Lpush(h.key("s1"), "{not json")

	turns, err := h.Recent(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "good", turns[0].Question)
}
