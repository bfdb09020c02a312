package lavago

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPersistenceTestManager(t *testing.T) *Manager {
	t.Helper()
	return &Manager{
		opts:    &ManagerOptions{ClientID: "bot-1", UseNode: LeastPlayers, DataDirectory: t.TempDir()},
		log:     noopLogger(),
		nodes:   map[string]*Node{},
		players: map[string]*Player{},
		bus:     newEventBus(),
	}
}

func TestPersistPlayer_WritesReadableSnapshot(t *testing.T) {
	m := newPersistenceTestManager(t)
	p := newPlayer(m, nil, "g1", NewMemoryQueue("g1", 20), noopLogger())
	t.Cleanup(func() { close(p.done) })
	require.NoError(t, p.queue.Add([]*Track{trackWithID("a"), trackWithID("b")}, 0))
	p.Volume = 50
	p.TrackRepeat = true

	require.NoError(t, m.persistPlayer(p))

	data, err := os.ReadFile(m.persistenceFile("g1"))
	require.NoError(t, err)

	var snap playerSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "g1", snap.GuildID)
	assert.Equal(t, 50, snap.Volume)
	assert.True(t, snap.TrackRepeat)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "a", snap.Current.Identifier)
	assert.Equal(t, []string{"b"}, identifiers(snap.Upcoming))

	_, statErr := os.Stat(m.persistenceFile("g1") + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestRestorePlayersForNode_ReconcilesFinishedTrackAndRemovesFile(t *testing.T) {
	m := newPersistenceTestManager(t)
	n := newTestNode(t, m)
	m.nodes["n1"] = n

	seed := newPlayer(m, n, "g1", NewMemoryQueue("g1", 20), noopLogger())
	require.NoError(t, seed.queue.SetCurrent(trackWithID("finished-track")))
	require.NoError(t, seed.queue.Add([]*Track{trackWithID("next")}, 0))
	require.NoError(t, m.persistPlayer(seed))
	close(seed.done)
	delete(m.players, "g1")

	m.restorePlayersForNode(n)

	restored := m.getPlayer("g1")
	require.NotNil(t, restored)
	t.Cleanup(func() { close(restored.done) })

	// GetAllPlayers failed (no live node), so reportedTrack is empty and the
	// snapshot's current track is treated as finished: dispatchTrackEnd
	// advances into the upcoming queue rather than resuming playback.
	assert.False(t, restored.Playing)
	assert.Equal(t, "next", restored.queue.GetCurrent().Identifier)

	_, statErr := os.Stat(m.persistenceFile("g1"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSweepOrphanedPersistence_RemovesFilesWithoutLivePlayer(t *testing.T) {
	m := newPersistenceTestManager(t)
	require.NoError(t, os.MkdirAll(m.persistenceDir(), 0o755))
	orphanPath := filepath.Join(m.persistenceDir(), "orphan-guild.json")
	require.NoError(t, os.WriteFile(orphanPath, []byte(`{"guildId":"orphan-guild"}`), 0o644))

	m.sweepOrphanedPersistence()

	_, statErr := os.Stat(orphanPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSweepOrphanedPersistence_KeepsFileWithLivePlayer(t *testing.T) {
	m := newPersistenceTestManager(t)
	p := newPlayer(m, nil, "g1", NewMemoryQueue("g1", 20), noopLogger())
	t.Cleanup(func() { close(p.done) })
	m.players["g1"] = p

	require.NoError(t, os.MkdirAll(m.persistenceDir(), 0o755))
	livePath := filepath.Join(m.persistenceDir(), "g1.json")
	require.NoError(t, os.WriteFile(livePath, []byte(`{"guildId":"g1"}`), 0o644))

	m.sweepOrphanedPersistence()

	_, statErr := os.Stat(livePath)
	assert.NoError(t, statErr)
}
