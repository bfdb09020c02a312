package lavago

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewRedisQueue(client, "lavago-test", "guild-1", 20)
}

func TestRedisQueue_AddPromotesFirstTrackToCurrent(t *testing.T) {
	q := newTestRedisQueue(t)

	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b")}, 0))

	assert.Equal(t, "a", q.GetCurrent().Identifier)
	assert.Equal(t, []string{"b"}, identifiers(q.GetTracks()))
}

func TestRedisQueue_DequeueEmptyReturnsQueueEmpty(t *testing.T) {
	q := newTestRedisQueue(t)
	_, err := q.Dequeue()
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrQueueEmpty, lerr.Code)
}

// AddPrevious performs no deduplication in the external-KV backend, unlike
// MemoryQueue (spec §4.2).
func TestRedisQueue_AddPreviousDoesNotDedup(t *testing.T) {
	q := newTestRedisQueue(t)

	require.NoError(t, q.AddPrevious(trackWithID("a")))
	require.NoError(t, q.AddPrevious(trackWithID("a")))

	assert.Len(t, q.GetPrevious(), 2)
}

func TestRedisQueue_AddPreviousCapsAtMax(t *testing.T) {
	q := newTestRedisQueue(t)
	q.maxPrev = 2

	require.NoError(t, q.AddPrevious(trackWithID("a")))
	require.NoError(t, q.AddPrevious(trackWithID("b")))
	require.NoError(t, q.AddPrevious(trackWithID("c")))

	prev := q.GetPrevious()
	require.Len(t, prev, 2)
	assert.Equal(t, "c", prev[0].Identifier)
	assert.Equal(t, "b", prev[1].Identifier)
}

func TestRedisQueue_PopPreviousEmpty(t *testing.T) {
	q := newTestRedisQueue(t)
	_, err := q.PopPrevious()
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrNoPreviousTrack, lerr.Code)
}

func TestRedisQueue_RoundTripsFullTrackFields(t *testing.T) {
	q := newTestRedisQueue(t)
	tr := trackWithID("a")
	tr.Author = "Someone"
	tr.DurationMs = 12345
	tr.SourceName = SourceYouTube

	require.NoError(t, q.SetCurrent(tr))
	got := q.GetCurrent()
	require.NotNil(t, got)
	assert.Equal(t, tr.Author, got.Author)
	assert.Equal(t, tr.DurationMs, got.DurationMs)
	assert.Equal(t, tr.SourceName, got.SourceName)
}

func TestRedisQueue_RemoveOutOfRange(t *testing.T) {
	q := newTestRedisQueue(t)
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b")}, 0))

	err := q.Remove(5, 10)
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrOutOfRange, lerr.Code)
}

func TestRedisQueue_ShuffleAndUserBlockShufflePreserveMembership(t *testing.T) {
	q := newTestRedisQueue(t)
	require.NoError(t, q.SetCurrent(trackWithID("seed")))
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b"), trackWithID("c")}, 0))

	require.NoError(t, q.Shuffle())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, identifiers(q.GetTracks()))

	require.NoError(t, q.UserBlockShuffle())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, identifiers(q.GetTracks()))
}

func TestRedisQueue_ClearResetsCurrentAndTracks(t *testing.T) {
	q := newTestRedisQueue(t)
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b")}, 0))

	require.NoError(t, q.Clear())

	assert.Nil(t, q.GetCurrent())
	assert.Empty(t, q.GetTracks())
}

func TestRedisQueue_FilterAsyncKeepsMatchingOrder(t *testing.T) {
	q := newTestRedisQueue(t)
	require.NoError(t, q.SetCurrent(trackWithID("seed")))
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b"), trackWithID("c")}, 0))

	matched, err := q.FilterAsync(context.Background(), func(_ context.Context, t *Track, i int) (bool, error) {
		return t.Identifier != "b", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, identifiers(matched))
}

func TestRedisQueue_FindAsyncReturnsFirstMatch(t *testing.T) {
	q := newTestRedisQueue(t)
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b"), trackWithID("c")}, 0))

	found, err := q.FindAsync(context.Background(), func(_ context.Context, t *Track, i int) (bool, error) {
		return t.Identifier == "c", nil
	})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "c", found.Identifier)
}

func TestRedisQueue_MapAsyncPropagatesError(t *testing.T) {
	q := newTestRedisQueue(t)
	require.NoError(t, q.SetCurrent(trackWithID("seed")))
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b")}, 0))
	boom := errors.New("boom")

	_, err := q.MapAsync(context.Background(), func(_ context.Context, t *Track, i int) (interface{}, error) {
		if t.Identifier == "a" {
			return nil, boom
		}
		return t.Identifier, nil
	})
	require.ErrorIs(t, err, boom)
}

func TestRedisQueue_SomeAndEveryAsync(t *testing.T) {
	q := newTestRedisQueue(t)
	require.NoError(t, q.SetCurrent(trackWithID("seed")))
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b")}, 0))

	some, err := q.SomeAsync(context.Background(), func(_ context.Context, t *Track, i int) (bool, error) {
		return t.Identifier == "a", nil
	})
	require.NoError(t, err)
	assert.True(t, some)

	every, err := q.EveryAsync(context.Background(), func(_ context.Context, t *Track, i int) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, every)
}
