package lavago

import (
	"encoding/json"
	"strings"
	"time"
)

// Track is an immutable (after build) value object, spec §3 "Track".
type Track struct {
	Encoded    string                 `json:"encoded"`
	Identifier string                 `json:"identifier"`
	Title      string                 `json:"title"`
	Author     string                 `json:"author"`
	Duration   time.Duration          `json:"-"`
	DurationMs int64                  `json:"length"`
	ISRC       string                 `json:"isrc,omitempty"`
	IsSeekable bool                   `json:"isSeekable"`
	IsStream   bool                   `json:"isStream"`
	URI        string                 `json:"uri,omitempty"`
	ArtworkURL string                 `json:"artworkUrl,omitempty"`
	Thumbnail  string                 `json:"-"`
	SourceName string                 `json:"sourceName"`
	PluginInfo map[string]interface{} `json:"pluginInfo,omitempty"`
	CustomData map[string]interface{} `json:"customData,omitempty"`
	Requester  interface{}            `json:"-"`
	Position   time.Duration          `json:"-"`
}

// known normalized source names, a closed set per spec §3.
const (
	SourceYouTube    = "youtube"
	SourceSpotify    = "spotify"
	SourceSoundCloud = "soundcloud"
	SourceDeezer     = "deezer"
	SourceTidal      = "tidal"
	SourceVKMusic    = "vkmusic"
	SourceQobuz      = "qobuz"
	SourceLocal      = "local"
	SourceHTTP       = "http"
	SourceUnknown    = "unknown"
)

// rawTrackInfo mirrors the wire shape of a Lavalink v4 track, used both for
// REST decode and WS payload decode.
type rawTrackInfo struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	ISRC       string `json:"isrc"`
	IsSeekable bool   `json:"isSeekable"`
	IsStream   bool   `json:"isStream"`
	URI        string `json:"uri"`
	ArtworkURL string `json:"artworkUrl"`
	SourceName string `json:"sourceName"`
}

type rawTrack struct {
	Encoded    string                 `json:"encoded"`
	Info       rawTrackInfo           `json:"info"`
	PluginInfo map[string]interface{} `json:"pluginInfo"`
}

// TrackUtils builds Track values from raw node payloads (spec §3 "Lifecycle").
type TrackUtils struct {
	// Partial narrows which fields are retained on Build; nil/empty keeps all.
	Partial map[string]bool
}

func NewTrackUtils(partialFields []string) *TrackUtils {
	tu := &TrackUtils{Partial: map[string]bool{}}
	for _, f := range partialFields {
		tu.Partial[f] = true
	}
	return tu
}

func (tu *TrackUtils) keep(field string) bool {
	if len(tu.Partial) == 0 {
		return true
	}
	return tu.Partial[field]
}

// Build constructs a Track from a raw node payload, always retaining the
// encoded blob regardless of the partial-field configuration.
func (tu *TrackUtils) Build(data []byte, requester interface{}) (*Track, error) {
	var rt rawTrack
	if err := json.Unmarshal(data, &rt); err != nil {
		return nil, errValidation(ErrTrackDecodeFailed, "decode track: %v", err)
	}
	return tu.fromRaw(rt, requester), nil
}

func (tu *TrackUtils) fromRaw(rt rawTrack, requester interface{}) *Track {
	t := &Track{Encoded: rt.Encoded}
	if tu.keep("identifier") {
		t.Identifier = rt.Info.Identifier
	}
	if tu.keep("title") {
		t.Title = rt.Info.Title
	}
	if tu.keep("author") {
		t.Author = rt.Info.Author
	}
	if tu.keep("duration") || tu.keep("length") {
		t.DurationMs = rt.Info.Length
		t.Duration = time.Duration(rt.Info.Length) * time.Millisecond
	}
	if tu.keep("isrc") {
		t.ISRC = rt.Info.ISRC
	}
	t.IsSeekable = rt.Info.IsSeekable
	t.IsStream = rt.Info.IsStream
	if tu.keep("uri") {
		t.URI = rt.Info.URI
	}
	if tu.keep("artworkUrl") {
		t.ArtworkURL = rt.Info.ArtworkURL
	}
	t.SourceName = normalizeSourceName(rt.Info.SourceName)
	t.PluginInfo = rt.PluginInfo
	t.Requester = requester
	if t.SourceName == SourceYouTube {
		t.Thumbnail = deriveYouTubeThumbnail(t.Identifier)
	}
	return t
}

func normalizeSourceName(raw string) string {
	switch strings.ToLower(raw) {
	case "youtube":
		return SourceYouTube
	case "spotify":
		return SourceSpotify
	case "soundcloud":
		return SourceSoundCloud
	case "deezer":
		return SourceDeezer
	case "tidal":
		return SourceTidal
	case "vkmusic", "vk":
		return SourceVKMusic
	case "qobuz":
		return SourceQobuz
	case "local":
		return SourceLocal
	case "http", "https":
		return SourceHTTP
	default:
		if raw == "" {
			return SourceUnknown
		}
		return strings.ToLower(raw)
	}
}

func deriveYouTubeThumbnail(identifier string) string {
	if identifier == "" {
		return ""
	}
	return "https://img.youtube.com/vi/" + identifier + "/maxresdefault.jpg"
}

// decodeEncodedTracksResponse decodes the /v4/decodetracks REST response body.
func decodeEncodedTracksResponse(data []byte) ([]rawTrack, error) {
	var out []rawTrack
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errValidation(ErrTrackDecodeFailed, "decode tracks response: %v", err)
	}
	return out, nil
}
