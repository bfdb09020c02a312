package lavago

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlayer(t *testing.T) *Player {
	t.Helper()
	m := &Manager{
		opts: &ManagerOptions{PlayNextOnEnd: false},
		bus:  newEventBus(),
	}
	p := newPlayer(m, nil, "guild-1", NewMemoryQueue("guild-1", 20), noopLogger())
	t.Cleanup(func() { close(p.done) })
	return p
}

func endedEvent(track *Track, reason string) *eventPayload {
	return &eventPayload{
		Op:      "event",
		GuildID: track.Identifier,
		Type:    "TrackEndEvent",
		Track:   rawTrack{Encoded: track.Encoded},
		Reason:  reason,
	}
}

func TestDispatchTrackEnd_AdvancesToNextOnFinished(t *testing.T) {
	p := newTestPlayer(t)
	cur := trackWithID("a")
	cur.Encoded = "enc-a"
	next := trackWithID("b")
	require.NoError(t, p.queue.SetCurrent(cur))
	require.NoError(t, p.queue.Add([]*Track{next}, 0))

	var captured TrackEndPayload
	p.manager.bus.On(EventTrackEnd, func(payload interface{}) {
		captured = payload.(TrackEndPayload)
	})

	dispatchTrackEnd(p, endedEvent(cur, "finished"))

	assert.Equal(t, "b", p.queue.GetCurrent().Identifier)
	assert.Equal(t, "a", captured.Track.Identifier)
	assert.Equal(t, "finished", captured.Reason)
	assert.Equal(t, []*Track{cur}, p.queue.GetPrevious())
}

func TestDispatchTrackEnd_EmptyQueueEmitsQueueEnd(t *testing.T) {
	p := newTestPlayer(t)
	cur := trackWithID("a")
	cur.Encoded = "enc-a"
	require.NoError(t, p.queue.SetCurrent(cur))

	var gotQueueEnd bool
	p.manager.bus.On(EventQueueEnd, func(payload interface{}) { gotQueueEnd = true })

	dispatchTrackEnd(p, endedEvent(cur, "finished"))

	assert.True(t, gotQueueEnd)
	assert.Nil(t, p.queue.GetCurrent())
	assert.False(t, p.Playing)
}

func TestDispatchTrackEnd_ReplacedDoesNotAdvance(t *testing.T) {
	p := newTestPlayer(t)
	cur := trackWithID("a")
	cur.Encoded = "enc-a"
	next := trackWithID("b")
	require.NoError(t, p.queue.SetCurrent(cur))
	require.NoError(t, p.queue.Add([]*Track{next}, 0))

	var captured TrackEndPayload
	p.manager.bus.On(EventTrackEnd, func(payload interface{}) { captured = payload.(TrackEndPayload) })

	dispatchTrackEnd(p, endedEvent(cur, "replaced"))

	// current track is untouched; the queue isn't rotated for a replace.
	assert.Equal(t, "a", p.queue.GetCurrent().Identifier)
	assert.Equal(t, 1, p.queue.Size())
	assert.Equal(t, "replaced", captured.Reason)
}

func TestDispatchTrackEnd_TrackRepeatReplaysSameTrack(t *testing.T) {
	p := newTestPlayer(t)
	cur := trackWithID("a")
	cur.Encoded = "enc-a"
	require.NoError(t, p.queue.SetCurrent(cur))
	p.TrackRepeat = true

	dispatchTrackEnd(p, endedEvent(cur, "finished"))

	assert.Equal(t, "a", p.queue.GetCurrent().Identifier)
	assert.Equal(t, 0, p.queue.Size())
}

func TestDispatchTrackEnd_QueueRepeatRotatesToEndAndReplaysFirst(t *testing.T) {
	p := newTestPlayer(t)
	cur := trackWithID("a")
	cur.Encoded = "enc-a"
	next := trackWithID("b")
	require.NoError(t, p.queue.SetCurrent(cur))
	require.NoError(t, p.queue.Add([]*Track{next}, 0))
	p.QueueRepeat = true

	dispatchTrackEnd(p, endedEvent(cur, "finished"))

	// "a" was appended to the back of upcoming, "b" popped to current.
	assert.Equal(t, "b", p.queue.GetCurrent().Identifier)
	assert.Equal(t, []string{"a"}, identifiers(p.queue.GetTracks()))
}

func TestDispatchTrackEnd_LoadFailedAdvancesEvenWithoutRepeat(t *testing.T) {
	p := newTestPlayer(t)
	cur := trackWithID("a")
	cur.Encoded = "enc-a"
	next := trackWithID("b")
	require.NoError(t, p.queue.SetCurrent(cur))
	require.NoError(t, p.queue.Add([]*Track{next}, 0))

	dispatchTrackEnd(p, endedEvent(cur, "loadFailed"))

	assert.Equal(t, "b", p.queue.GetCurrent().Identifier)
}

func TestDispatchTrackEnd_AutoplayDisabledStopsAtQueueEnd(t *testing.T) {
	p := newTestPlayer(t)
	cur := trackWithID("a")
	cur.Encoded = "enc-a"
	require.NoError(t, p.queue.SetCurrent(cur))
	p.IsAutoplay = false
	p.Playing = true

	dispatchTrackEnd(p, endedEvent(cur, "finished"))

	assert.False(t, p.Playing)
	assert.Nil(t, p.queue.GetCurrent())
}
