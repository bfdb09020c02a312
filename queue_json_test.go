package lavago

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONQueue_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()

	q, err := NewJSONQueue("guild-1", 20, dir)
	require.NoError(t, err)

	require.NoError(t, q.Add([]*Track{trackWithID("a"), trackWithID("b")}, 0))
	require.NoError(t, q.AddPrevious(trackWithID("z")))

	reloaded, err := NewJSONQueue("guild-1", 20, dir)
	require.NoError(t, err)

	assert.Equal(t, "a", reloaded.GetCurrent().Identifier)
	assert.Equal(t, []string{"b"}, identifiers(reloaded.GetTracks()))
	assert.Len(t, reloaded.GetPrevious(), 1)
	assert.Equal(t, "z", reloaded.GetPrevious()[0].Identifier)
}

func TestJSONQueue_MissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	q, err := NewJSONQueue("guild-new", 20, dir)
	require.NoError(t, err)

	assert.Nil(t, q.GetCurrent())
	assert.Empty(t, q.GetTracks())
}

func TestJSONQueue_WriteIsAtomic(t *testing.T) {
	dir := t.TempDir()
	q, err := NewJSONQueue("guild-1", 20, dir)
	require.NoError(t, err)

	require.NoError(t, q.Add([]*Track{trackWithID("a")}, 0))

	// no leftover .tmp file after a successful flush.
	_, statErr := os.Stat(filepath.Join(dir, "guild-1.queue.json.tmp"))
	assert.True(t, os.IsNotExist(statErr))
}
