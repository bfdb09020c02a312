package lavago

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackWithID(id string) *Track {
	return &Track{Identifier: id, Title: id}
}

func TestMemoryQueue_AddPromotesFirstTrackToCurrent(t *testing.T) {
	q := NewMemoryQueue("g1", 0)

	err := q.Add([]*Track{trackWithID("a"), trackWithID("b"), trackWithID("c")}, 0)
	require.NoError(t, err)

	assert.Equal(t, "a", q.GetCurrent().Identifier)
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, []string{"b", "c"}, identifiers(q.GetTracks()))
}

func TestMemoryQueue_AddAppendsWhenCurrentAlreadySet(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.SetCurrent(trackWithID("a")))

	require.NoError(t, q.Add([]*Track{trackWithID("b")}, 0))
	require.NoError(t, q.Add([]*Track{trackWithID("c")}, 0))

	assert.Equal(t, []string{"b", "c"}, identifiers(q.GetTracks()))
}

func TestMemoryQueue_AddAtOffsetSplices(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.SetCurrent(trackWithID("a")))
	require.NoError(t, q.Add([]*Track{trackWithID("b"), trackWithID("c")}, 0))

	require.NoError(t, q.Add([]*Track{trackWithID("x")}, 1))

	assert.Equal(t, []string{"b", "x", "c"}, identifiers(q.GetTracks()))
}

func TestMemoryQueue_AddRejectsNegativeOffset(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	err := q.Add([]*Track{trackWithID("a")}, -1)
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrInvalidArgument, lerr.Code)
}

func TestMemoryQueue_DequeueEmptyReturnsQueueEmpty(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	_, err := q.Dequeue()
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrQueueEmpty, lerr.Code)
}

func TestMemoryQueue_RemoveOutOfRange(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b")}, 0))

	err := q.Remove(5, 10)
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrOutOfRange, lerr.Code)
}

func TestMemoryQueue_PreviousTracksDedupAndCap(t *testing.T) {
	q := NewMemoryQueue("g1", 2)

	require.NoError(t, q.AddPrevious(trackWithID("a")))
	require.NoError(t, q.AddPrevious(trackWithID("b")))
	require.NoError(t, q.AddPrevious(trackWithID("a"))) // dedup, no-op
	require.NoError(t, q.AddPrevious(trackWithID("c")))  // pushes cap, drops oldest

	prev := q.GetPrevious()
	require.Len(t, prev, 2)
	assert.Equal(t, "c", prev[0].Identifier)
}

func TestMemoryQueue_PopPreviousEmpty(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	_, err := q.PopPrevious()
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrNoPreviousTrack, lerr.Code)
}

func TestMemoryQueue_UserBlockShuffleInterleavesByRequester(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.SetCurrent(trackWithID("seed")))

	a1, a2 := trackWithID("a1"), trackWithID("a2")
	b1 := trackWithID("b1")
	a1.Requester, a2.Requester = fakeRequester{"u1"}, fakeRequester{"u1"}
	b1.Requester = fakeRequester{"u2"}

	require.NoError(t, q.Add([]*Track{a1, a2, b1}, 0))
	require.NoError(t, q.UserBlockShuffle())

	out := identifiers(q.GetTracks())
	require.Len(t, out, 3)
	assert.Equal(t, "a1", out[0])
	assert.Equal(t, "b1", out[1])
	assert.Equal(t, "a2", out[2])
}

func TestMemoryQueue_DurationSumsCurrentAndUpcoming(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	cur := trackWithID("a")
	cur.DurationMs = 1000
	up := trackWithID("b")
	up.DurationMs = 2000

	require.NoError(t, q.Add([]*Track{cur, up}, 0))
	assert.Equal(t, int64(3000), q.Duration())
	assert.Equal(t, 2, q.TotalSize())
}

func TestMemoryQueue_ModifyAtSplicesDeleteAndInsert(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.SetCurrent(trackWithID("seed")))
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b"), trackWithID("c")}, 0))

	require.NoError(t, q.ModifyAt(1, 1, trackWithID("x"), trackWithID("y")))

	assert.Equal(t, []string{"a", "x", "y", "c"}, identifiers(q.GetTracks()))
}

func TestMemoryQueue_EmitsEventsOnMutation(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.Add([]*Track{trackWithID("a")}, 0))

	select {
	case ev := <-q.Events():
		assert.Equal(t, QueueActionAdd, ev.Action)
		assert.Equal(t, "g1", ev.GuildID)
	default:
		t.Fatal("expected a queued QueueEvent after Add")
	}
}

func TestMemoryQueue_MapAsyncPreservesOrder(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b"), trackWithID("c")}, 0))

	results, err := q.MapAsync(context.Background(), func(_ context.Context, t *Track, i int) (interface{}, error) {
		return t.Identifier, nil
	})
	require.NoError(t, err)
	// current track is promoted off of upcoming by Add, so MapAsync (which
	// runs over GetTracks, i.e. upcoming) only sees b and c.
	assert.Equal(t, []interface{}{"b", "c"}, results)
}

func TestMemoryQueue_MapAsyncPropagatesFirstError(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b")}, 0))
	boom := errors.New("boom")

	_, err := q.MapAsync(context.Background(), func(_ context.Context, t *Track, i int) (interface{}, error) {
		if t.Identifier == "b" {
			return nil, boom
		}
		return t.Identifier, nil
	})
	require.ErrorIs(t, err, boom)
}

func TestMemoryQueue_FilterAsyncKeepsMatchingOrder(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b"), trackWithID("c"), trackWithID("d")}, 0))

	matched, err := q.FilterAsync(context.Background(), func(_ context.Context, t *Track, i int) (bool, error) {
		return t.Identifier == "b" || t.Identifier == "d", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d"}, identifiers(matched))
}

func TestMemoryQueue_FindAsyncReturnsFirstMatch(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b"), trackWithID("c")}, 0))

	found, err := q.FindAsync(context.Background(), func(_ context.Context, t *Track, i int) (bool, error) {
		return t.Identifier == "b" || t.Identifier == "c", nil
	})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "b", found.Identifier)
}

func TestMemoryQueue_FindAsyncReturnsNilWithoutMatch(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.Add([]*Track{trackWithID("a")}, 0))

	found, err := q.FindAsync(context.Background(), func(_ context.Context, t *Track, i int) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestMemoryQueue_SomeAndEveryAsync(t *testing.T) {
	q := NewMemoryQueue("g1", 0)
	require.NoError(t, q.SetCurrent(trackWithID("seed")))
	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b")}, 0))

	some, err := q.SomeAsync(context.Background(), func(_ context.Context, t *Track, i int) (bool, error) {
		return t.Identifier == "b", nil
	})
	require.NoError(t, err)
	assert.True(t, some)

	every, err := q.EveryAsync(context.Background(), func(_ context.Context, t *Track, i int) (bool, error) {
		return t.Identifier == "b", nil
	})
	require.NoError(t, err)
	assert.False(t, every)

	every, err = q.EveryAsync(context.Background(), func(_ context.Context, t *Track, i int) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, every)
}

type fakeRequester struct{ id string }

func (f fakeRequester) ID() string { return f.id }

func identifiers(tracks []*Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.Identifier
	}
	return out
}
