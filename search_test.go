package lavago

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchIdentifier_PrependsPlatformPrefix(t *testing.T) {
	assert.Equal(t, "ytsearch:never gonna give you up", searchIdentifier("youtube", "never gonna give you up"))
	assert.Equal(t, "scsearch:some track", searchIdentifier("soundcloud", "some track"))
	assert.Equal(t, "spsearch:some track", searchIdentifier("spotify", "some track"))
}

func TestSearchIdentifier_UnknownPlatformFallsBackToYouTube(t *testing.T) {
	assert.Equal(t, "ytsearch:some track", searchIdentifier("not-a-real-platform", "some track"))
}

func TestSearchIdentifier_PassesThroughExistingURLsUnprefixed(t *testing.T) {
	assert.Equal(t, "https://youtu.be/abc123", searchIdentifier("youtube", "https://youtu.be/abc123"))
	assert.Equal(t, "http://example.com/track", searchIdentifier("soundcloud", "http://example.com/track"))
}

func TestNormalizeYouTubeTitle_SplitsArtistAndTitle(t *testing.T) {
	author, title := normalizeYouTubeTitle("Rick Astley - Never Gonna Give You Up (Official Video)", "RickAstleyVEVO")
	assert.Equal(t, "Rick Astley", author)
	assert.Equal(t, "Never Gonna Give You Up", title)
}

func TestNormalizeYouTubeTitle_StripsMarketingWordsCaseInsensitively(t *testing.T) {
	_, title := normalizeYouTubeTitle("Some Song [Official Music Video] (HD)", "Some Author")
	assert.NotContains(t, title, "Official")
	assert.NotContains(t, title, "HD")
}

func TestNormalizeYouTubeTitle_FallsBackToRawAuthorWithoutDashSplit(t *testing.T) {
	author, title := normalizeYouTubeTitle("Just A Title With No Artist Marker", "Channel Name")
	assert.Equal(t, "Channel Name", author)
	assert.Equal(t, "Just A Title With No Artist Marker", title)
}

func TestRandomRelatedIndex_StaysWithinDocumentedRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		idx := randomRelatedIndex(rng)
		assert.GreaterOrEqual(t, idx, 2)
		assert.LessOrEqual(t, idx, 24)
	}
}
