package lavago

import (
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var soundCloudHTTPClient = &http.Client{Timeout: 10 * time.Second}

// recommendSoundCloud fetches the seed track's page and scrapes the
// recommended-tracks section for a sibling link (spec §4.6 "for
// SoundCloud").
func recommendSoundCloud(p *Player, seed *Track) (*Track, error) {
	if seed.SourceName != SourceSoundCloud || seed.URI == "" {
		return nil, errNoRecommendation
	}

	req, err := http.NewRequest(http.MethodGet, seed.URI, nil)
	if err != nil {
		return nil, errNoRecommendation
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; lavago/1.0)")
	resp, err := soundCloudHTTPClient.Do(req)
	if err != nil {
		return nil, errNoRecommendation
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errNoRecommendation
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errNoRecommendation
	}

	link := scrapeRecommendedLink(doc, seed.URI)
	if link == "" {
		return nil, errNoRecommendation
	}
	requester := p.Data[reservedAutoplayUserKey]
	return loadSingleTrack(p, link, requester)
}

// scrapeRecommendedLink walks the "recommended" <section>'s <article
// itemprop> anchors and returns the first track URL that isn't seedURI.
func scrapeRecommendedLink(doc *goquery.Document, seedURI string) string {
	var found string
	doc.Find(`section[aria-label="Recommended tracks"] article[itemprop] a[itemprop="url"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return true
		}
		if !strings.HasPrefix(href, "http") {
			href = "https://soundcloud.com" + href
		}
		if href == seedURI {
			return true
		}
		found = href
		return false
	})
	return found
}
