package lavago

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlayerWithSend(t *testing.T, send func(guildID string, payload []byte) error) *Player {
	t.Helper()
	m := &Manager{
		opts: &ManagerOptions{PlayNextOnEnd: false, Send: send},
		bus:  newEventBus(),
	}
	p := newPlayer(m, nil, "guild-1", NewMemoryQueue("guild-1", 20), noopLogger())
	t.Cleanup(func() { close(p.done) })
	return p
}

func TestPlayer_ConnectTransitionsToConnected(t *testing.T) {
	var sentPayload []byte
	p := newTestPlayerWithSend(t, func(guildID string, payload []byte) error {
		sentPayload = payload
		return nil
	})

	require.NoError(t, p.Connect("vc-1", false, true))

	assert.Equal(t, PlayerConnected, p.State)
	assert.Equal(t, "vc-1", p.VoiceChannelID)
	assert.NotEmpty(t, sentPayload)
}

func TestPlayer_ConnectRequiresVoiceChannel(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error { return nil })
	err := p.Connect("", false, false)
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrInvalidArgument, lerr.Code)
}

func TestPlayer_ConnectFailureRevertsState(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error {
		return errBusiness(ErrGeneral, "gateway unreachable")
	})
	err := p.Connect("vc-1", false, false)
	require.Error(t, err)
	assert.Equal(t, PlayerDisconnected, p.State)
}

func TestPlayer_SetVolumeValidatesRange(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error { return nil })
	// no node attached, so UpdatePlayer is unreachable unless validation
	// rejects first.
	err := p.SetVolume(1001)
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrVolumeOutOfRange, lerr.Code)
	assert.Equal(t, 100, p.Volume) // unchanged
}

func TestPlayer_SetTrackRepeatAndQueueRepeatAreMutuallyExclusive(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error { return nil })

	require.NoError(t, p.SetTrackRepeat(true))
	assert.True(t, p.TrackRepeat)

	require.NoError(t, p.SetQueueRepeat(true))
	assert.True(t, p.QueueRepeat)
	assert.False(t, p.TrackRepeat, "enabling queue repeat must clear track repeat")
}

func TestPlayer_SetDynamicRepeatRequiresMultipleUpcoming(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error { return nil })
	require.NoError(t, p.queue.SetCurrent(trackWithID("a")))

	err := p.SetDynamicRepeat(true, 5000)
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrRepeatConflict, lerr.Code)

	require.NoError(t, p.queue.Add([]*Track{trackWithID("b"), trackWithID("c")}, 0))
	require.NoError(t, p.SetDynamicRepeat(true, 5000))
	assert.True(t, p.DynamicRepeat)
}

func TestPlayer_SetAutoplayRequiresBotUserWhenEnabling(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error { return nil })

	err := p.SetAutoplay(true, nil, 3)
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrInvalidArgument, lerr.Code)

	require.NoError(t, p.SetAutoplay(true, "bot-user", 0))
	assert.True(t, p.IsAutoplay)
	assert.Equal(t, 3, p.AutoplayTries) // non-positive tries falls back to default
	assert.Equal(t, "bot-user", p.Data[reservedAutoplayUserKey])
}

func TestPlayer_PreviousSetsSkipFlagAndPlaysFromPrevious(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error { return nil })
	require.NoError(t, p.queue.AddPrevious(trackWithID("old")))

	err := p.Previous()
	// play() fails because there's no node attached; the skip flag must
	// still have been set before the failing play() call ran.
	require.Error(t, err)
	skip, _ := p.Data[reservedSkipFlagKey].(bool)
	assert.True(t, skip)
}

func TestPlayer_PreviousThenTrackEndDoesNotReinsertOutgoingTrack(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error { return nil })
	b := &Track{Identifier: "b", Encoded: "enc-b"}
	a := &Track{Identifier: "a", Encoded: "enc-a"}
	c := &Track{Identifier: "c", Encoded: "enc-c"}
	require.NoError(t, p.queue.AddPrevious(b))
	require.NoError(t, p.queue.AddPrevious(a)) // previous is now [a, b]
	require.NoError(t, p.queue.SetCurrent(c))

	// play() errors for lack of a node, but SetCurrent(a) already ran inside
	// it, and the skip flag was set beforehand — both of which Previous()
	// depends on regardless of the REST failure.
	_ = p.Previous()
	assert.Equal(t, "a", p.queue.GetCurrent().Identifier)

	// the node now reports TrackEndEvent for the outgoing track c.
	p.onTrackEnd(&eventPayload{Type: "TrackEndEvent", Reason: "finished", Track: rawTrack{Encoded: c.Encoded}})

	assert.Equal(t, "a", p.queue.GetCurrent().Identifier, "current must stay on the track Previous() switched to")
	assert.Equal(t, []string{"b"}, identifiers(p.queue.GetPrevious()), "c must not be reinserted ahead of b")
}

func TestPlayer_StopWithoutNodeErrors(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error { return nil })
	require.NoError(t, p.queue.SetCurrent(trackWithID("a")))

	err := p.Stop(1)
	require.Error(t, err)
	var lerr *LavagoError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ErrInvalidState, lerr.Code)
}

func TestPlayer_PauseNoopWhenAlreadyInState(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error { return nil })
	require.NoError(t, p.queue.SetCurrent(trackWithID("a")))

	err := p.Pause(false) // already unpaused, no REST call should be attempted
	require.NoError(t, err)
	assert.False(t, p.Paused)
}

func TestPlayer_PauseNoopWhenQueueEmpty(t *testing.T) {
	p := newTestPlayerWithSend(t, func(string, []byte) error { return nil })
	// no node attached, so any REST call would error; an empty queue must
	// return before reaching it.
	err := p.Pause(true)
	require.NoError(t, err)
	assert.False(t, p.Paused)
	assert.Nil(t, p.queue.GetCurrent())
}
