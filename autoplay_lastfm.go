package lavago

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

var lastFmHTTPClient = &http.Client{Timeout: 10 * time.Second}

const lastFmAPIBase = "https://ws.audioscrobbler.com/2.0/"

type lastFmSimilarResponse struct {
	SimilarTracks struct {
		Track []struct {
			Name   string `json:"name"`
			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"track"`
	} `json:"similartracks"`
}

type lastFmTopTracksResponse struct {
	TopTracks struct {
		Track []struct {
			Name string `json:"name"`
		} `json:"track"`
	} `json:"toptracks"`
}

type lastFmSearchResponse struct {
	Results struct {
		TrackMatches struct {
			Track []struct {
				Name   string `json:"name"`
				Artist string `json:"artist"`
			} `json:"track"`
		} `json:"trackmatches"`
	} `json:"results"`
}

func lastFmGet(apiKey string, params url.Values, out interface{}) error {
	params.Set("api_key", apiKey)
	params.Set("format", "json")
	req, err := http.NewRequest(http.MethodGet, lastFmAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return errNoRecommendation
	}
	resp, err := lastFmHTTPClient.Do(req)
	if err != nil {
		return errNoRecommendation
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errNoRecommendation
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errNoRecommendation
	}
	return nil
}

// lastFmRecoverArtist searches by title alone to recover an artist name
// when the seed track carries no author (spec §4.6 "if only title known,
// search to recover an artist first").
func lastFmRecoverArtist(apiKey, title string) string {
	params := url.Values{}
	params.Set("method", "track.search")
	params.Set("track", title)
	params.Set("limit", "1")

	var out lastFmSearchResponse
	if err := lastFmGet(apiKey, params, &out); err != nil {
		return ""
	}
	if len(out.Results.TrackMatches.Track) == 0 {
		return ""
	}
	return out.Results.TrackMatches.Track[0].Artist
}

// recommendLastFm falls back to track.getSimilar, then artist.getTopTracks
// when the similarity list is empty, resolving the chosen title/artist pair
// through the manager's default search platform (spec §4.6 "Last.fm
// fallback").
func recommendLastFm(p *Player, seed *Track) (*Track, error) {
	apiKey := p.manager.opts.LastFmAPIKey
	if apiKey == "" {
		return nil, errNoRecommendation
	}

	artist := seed.Author
	title := seed.Title
	if artist == "" && title != "" {
		artist = lastFmRecoverArtist(apiKey, title)
	}
	if artist == "" {
		return nil, errNoRecommendation
	}

	var pickTitle string

	if title != "" {
		params := url.Values{}
		params.Set("method", "track.getsimilar")
		params.Set("artist", artist)
		params.Set("track", title)
		params.Set("limit", "10")

		var out lastFmSimilarResponse
		if err := lastFmGet(apiKey, params, &out); err == nil && len(out.SimilarTracks.Track) > 0 {
			idx := globalRand.Intn(len(out.SimilarTracks.Track))
			match := out.SimilarTracks.Track[idx]
			pickTitle = match.Name
			artist = match.Artist.Name
		}
	}

	if pickTitle == "" {
		params := url.Values{}
		params.Set("method", "artist.gettoptracks")
		params.Set("artist", artist)
		params.Set("limit", "10")

		var out lastFmTopTracksResponse
		if err := lastFmGet(apiKey, params, &out); err != nil || len(out.TopTracks.Track) == 0 {
			return nil, errNoRecommendation
		}
		idx := globalRand.Intn(len(out.TopTracks.Track))
		pickTitle = out.TopTracks.Track[idx].Name
	}

	identifier := searchIdentifier(p.manager.opts.DefaultSearchPlatform, artist+" - "+pickTitle)

	requester := p.Data[reservedAutoplayUserKey]
	return loadSingleTrack(p, identifier, requester)
}
