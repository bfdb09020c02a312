package lavago

import "fmt"

// identifierProbeSchemes maps a platform to the loadtracks scheme its node
// plugin understands for a bare recommendation seed (spec §4.6).
var identifierProbeSchemes = map[AutoplayPlatform]string{
	PlatformDeezer:  "dzrec",
	PlatformTidal:   "tdrec",
	PlatformVKMusic: "vkrec",
	PlatformQobuz:   "qbrec",
}

func recommendByIdentifierProbe(platform AutoplayPlatform, p *Player, seed *Track) (*Track, error) {
	scheme, ok := identifierProbeSchemes[platform]
	if !ok {
		return nil, errNoRecommendation
	}
	identifier := fmt.Sprintf("%s:%s", scheme, seed.Identifier)
	requester := p.Data[reservedAutoplayUserKey]
	return loadSingleTrack(p, identifier, requester)
}

func recommendDeezer(p *Player, seed *Track) (*Track, error) {
	return recommendByIdentifierProbe(PlatformDeezer, p, seed)
}

func recommendTidal(p *Player, seed *Track) (*Track, error) {
	return recommendByIdentifierProbe(PlatformTidal, p, seed)
}

func recommendVKMusic(p *Player, seed *Track) (*Track, error) {
	return recommendByIdentifierProbe(PlatformVKMusic, p, seed)
}

func recommendQobuz(p *Player, seed *Track) (*Track, error) {
	return recommendByIdentifierProbe(PlatformQobuz, p, seed)
}

// recommendYouTube fabricates a related-list URL from the seed's video id
// and a random list-index in [2,24] (spec §4.6 "For YouTube").
func recommendYouTube(p *Player, seed *Track) (*Track, error) {
	if seed.SourceName != SourceYouTube || seed.Identifier == "" {
		return nil, errNoRecommendation
	}
	index := randomRelatedIndex(globalRand)
	identifier := fmt.Sprintf("https://www.youtube.com/watch?v=%s&list=RD%s&index=%d", seed.Identifier, seed.Identifier, index)
	requester := p.Data[reservedAutoplayUserKey]
	return loadSingleTrack(p, identifier, requester)
}
