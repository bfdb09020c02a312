package lavago

import (
	"math/rand"
	"regexp"
	"strings"
)

// LoadType mirrors the node's /v4/loadtracks discriminator (spec §6).
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

// Playlist describes a loaded playlist's metadata alongside its tracks
// (spec §4.8 "Search").
type Playlist struct {
	Name          string
	SelectedTrack int
	Tracks        []*Track
}

// SearchResult is the Manager.Search return value: at most one of
// Tracks/Playlist is populated depending on LoadType, or Err on
// LoadTypeError; none of the three is set for LoadTypeEmpty.
type SearchResult struct {
	LoadType LoadType
	Tracks   []*Track
	Playlist *Playlist
	Err      error
}

// AutoplayPlatform is a closed enum of recommender sources (spec §4.6).
type AutoplayPlatform string

const (
	PlatformSpotify    AutoplayPlatform = "spotify"
	PlatformDeezer     AutoplayPlatform = "deezer"
	PlatformSoundCloud AutoplayPlatform = "soundcloud"
	PlatformTidal      AutoplayPlatform = "tidal"
	PlatformVKMusic    AutoplayPlatform = "vkmusic"
	PlatformQobuz      AutoplayPlatform = "qobuz"
	PlatformYouTube    AutoplayPlatform = "youtube"
)

// searchPrefixes maps a platform identifier to its loadtracks search prefix.
var searchPrefixes = map[string]string{
	"youtube":    "ytsearch",
	"ytmsearch":  "ytmsearch",
	"soundcloud": "scsearch",
	"spotify":    "spsearch",
	"deezer":     "dzsearch",
	"applemusic": "amsearch",
}

var urlPattern = regexp.MustCompile(`^https?://`)

// searchIdentifier prepends a platform prefix unless query already looks
// like an http(s) URL (spec §4.8 "Search").
func searchIdentifier(platform, query string) string {
	if urlPattern.MatchString(query) {
		return query
	}
	prefix, ok := searchPrefixes[platform]
	if !ok {
		prefix = "ytsearch"
	}
	return prefix + ":" + query
}

// marketingBlocklist is stripped when normalizeYouTubeTitles is enabled.
var marketingBlocklist = []string{
	"official video", "official music video", "official audio", "lyric video",
	"lyrics", "hd", "hq", "4k", "remastered", "visualizer",
}

var bracketPattern = regexp.MustCompile(`[\(\[][^)\]]*[\)\]]`)
var artistTitlePattern = regexp.MustCompile(`^\s*([^-]+?)\s*-\s*(.+?)\s*$`)

// normalizeYouTubeTitle removes bracketed segments and marketing words and
// splits "Artist - Title" patterns into (author, title) (spec §4.8). Only
// matched bracket pairs are removed; an unmatched bracket stays in the title.
func normalizeYouTubeTitle(rawTitle, rawAuthor string) (author, title string) {
	cleaned := bracketPattern.ReplaceAllString(rawTitle, "")
	cleaned = stripWordsCaseInsensitive(cleaned, marketingBlocklist)
	cleaned = strings.TrimSpace(cleaned)

	if m := artistTitlePattern.FindStringSubmatch(cleaned); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return rawAuthor, cleaned
}

func stripWordsCaseInsensitive(s string, words []string) string {
	out := s
	for _, w := range words {
		re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(w))
		out = re.ReplaceAllString(out, "")
	}
	return strings.Join(strings.Fields(out), " ")
}

// randomRelatedIndex picks the related-list index used by the YouTube
// autoplay strategy, in [2,24] per spec §4.6.
func randomRelatedIndex(rng *rand.Rand) int {
	return 2 + rng.Intn(23)
}
