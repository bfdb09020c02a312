package lavago

import (
	"encoding/json"
	"errors"
)

// errNoRecommendation signals a platform strategy found nothing usable;
// the caller falls through to the next source (spec §4.6).
var errNoRecommendation = errors.New("lavago: no autoplay recommendation")

// autoplayStrategy probes one platform for a track related to seed.
type autoplayStrategy func(p *Player, seed *Track) (*Track, error)

var autoplayStrategies = map[AutoplayPlatform]autoplayStrategy{
	PlatformSpotify:    recommendSpotify,
	PlatformDeezer:     recommendDeezer,
	PlatformTidal:      recommendTidal,
	PlatformVKMusic:    recommendVKMusic,
	PlatformQobuz:      recommendQobuz,
	PlatformYouTube:    recommendYouTube,
	PlatformSoundCloud: recommendSoundCloud,
}

// recommendNext walks autoPlaySearchPlatforms in order, skipping platforms
// the connected node doesn't advertise, and falls back to Last.fm when
// every platform strategy comes up empty (spec §4.6 "Algorithm").
func recommendNext(p *Player, seed *Track) (*Track, error) {
	if seed == nil {
		return nil, errNoRecommendation
	}
	for _, platform := range p.manager.opts.AutoPlaySearchPlatforms {
		if !p.node.SupportsSource(string(platform)) {
			continue
		}
		strategy, ok := autoplayStrategies[platform]
		if !ok {
			continue
		}
		track, err := strategy(p, seed)
		if err != nil || track == nil {
			continue
		}
		if track.URI != "" && track.URI == seed.URI {
			continue
		}
		return track, nil
	}

	if p.manager.opts.LastFmAPIKey != "" {
		track, err := recommendLastFm(p, seed)
		if err == nil && track != nil && track.URI != seed.URI {
			return track, nil
		}
	}
	return nil, errNoRecommendation
}

// loadSingleTrack resolves a loadtracks identifier probe to a single Track,
// used by every identifier-probe strategy (spec §4.6 "black-box identifier
// probes").
func loadSingleTrack(p *Player, identifier string, requester interface{}) (*Track, error) {
	resp, err := p.node.rest.LoadTracks(identifier)
	if err != nil {
		return nil, err
	}
	switch LoadType(resp.LoadType) {
	case LoadTypeTrack:
		return p.manager.trackUtils.Build(resp.Data, requester)
	case LoadTypeSearch:
		var raws []rawTrack
		if err := json.Unmarshal(resp.Data, &raws); err != nil || len(raws) == 0 {
			return nil, errNoRecommendation
		}
		return p.manager.trackUtils.fromRaw(raws[0], requester), nil
	case LoadTypePlaylist:
		var pd playlistData
		if err := json.Unmarshal(resp.Data, &pd); err != nil || len(pd.Tracks) == 0 {
			return nil, errNoRecommendation
		}
		return p.manager.trackUtils.fromRaw(pd.Tracks[0], requester), nil
	default:
		return nil, errNoRecommendation
	}
}
