package lavago

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// RESTClient is the typed HTTP client to a single audio node, rooted at
// /v4 (spec §4.1, component C1).
type RESTClient struct {
	opts       *NodeOptions
	httpClient *http.Client
	log        *zap.Logger
}

func newRESTClient(opts *NodeOptions, log *zap.Logger) *RESTClient {
	return &RESTClient{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.APIRequestTimeout},
		log:        log,
	}
}

func (r *RESTClient) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errValidation(ErrInvalidArgument, "marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, r.opts.httpBase()+path, reader)
	if err != nil {
		return errTransport(ErrRESTRequestFailed, r.opts.Identifier, 0, err, "build request: %v", err)
	}
	req.Header.Set("Authorization", r.opts.Password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return errTransport(ErrRESTRequestFailed, r.opts.Identifier, 0, err, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return errTransport(ErrRESTUnauthorized, r.opts.Identifier, resp.StatusCode, nil, "unauthorized")
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return errTransport(ErrRESTRequestFailed, r.opts.Identifier, resp.StatusCode, nil, "%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return errTransport(ErrRESTRequestFailed, r.opts.Identifier, resp.StatusCode, err, "decode response: %v", err)
	}
	return nil
}

// --- generic verbs, per spec §4.1 ---

func (r *RESTClient) Get(path string, out interface{}) error    { return r.do(http.MethodGet, path, nil, out) }
func (r *RESTClient) Post(path string, body, out interface{}) error {
	return r.do(http.MethodPost, path, body, out)
}
func (r *RESTClient) Patch(path string, body, out interface{}) error {
	return r.do(http.MethodPatch, path, body, out)
}
func (r *RESTClient) Put(path string, body, out interface{}) error {
	return r.do(http.MethodPut, path, body, out)
}
func (r *RESTClient) Delete(path string) error { return r.do(http.MethodDelete, path, nil, nil) }

// FetchInfo loads the node's capabilities (spec §4.4).
func (r *RESTClient) FetchInfo() (*nodeInfoResponse, error) {
	var out nodeInfoResponse
	if err := r.Get("/v4/info", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadTracks proxies a search or direct-identifier load to the node.
func (r *RESTClient) LoadTracks(identifier string) (*loadTracksResponse, error) {
	var out loadTracksResponse
	if err := r.Get("/v4/loadtracks?identifier="+url.QueryEscape(identifier), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecodeTracks resolves encoded blobs back into track metadata.
func (r *RESTClient) DecodeTracks(encoded []string) ([]rawTrack, error) {
	var raw json.RawMessage
	if err := r.Post("/v4/decodetracks", encoded, &raw); err != nil {
		return nil, err
	}
	return decodeEncodedTracksResponse(raw)
}

// GetAllPlayers lists active player snapshots for the session.
func (r *RESTClient) GetAllPlayers(sessionID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := r.Get(fmt.Sprintf("/v4/sessions/%s/players", sessionID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdatePlayer sends a PATCH with the partial player-state to apply.
func (r *RESTClient) UpdatePlayer(sessionID, guildID string, data *updatePlayerRequest, noReplace bool) error {
	if sessionID == "" {
		return errValidation(ErrInvalidState, "updatePlayer: missing sessionId")
	}
	path := fmt.Sprintf("/v4/sessions/%s/players/%s?noReplace=%t", sessionID, guildID, noReplace)
	return r.Patch(path, data, nil)
}

// DestroyPlayer removes the node-side player for a guild.
func (r *RESTClient) DestroyPlayer(sessionID, guildID string) error {
	if sessionID == "" {
		return errValidation(ErrInvalidState, "destroyPlayer: missing sessionId")
	}
	return r.Delete(fmt.Sprintf("/v4/sessions/%s/players/%s", sessionID, guildID))
}

// PatchSession enables/disables resume for the current session.
func (r *RESTClient) PatchSession(sessionID string, resuming bool, timeoutSeconds int) error {
	return r.Patch(fmt.Sprintf("/v4/sessions/%s", sessionID), &resumingPatchRequest{Resuming: resuming, Timeout: timeoutSeconds}, nil)
}

// --- plugin extensions (spec §6) ---

func (r *RESTClient) GetSponsorBlock(sessionID, guildID string) ([]string, error) {
	var out []string
	path := fmt.Sprintf("/v4/sessions/%s/players/%s/sponsorblock/categories", sessionID, guildID)
	if err := r.Get(path, &out); err != nil {
		return nil, errPlugin(ErrSponsorBlockMissing, r.opts.Identifier, "sponsorblock not available: %v", err)
	}
	return out, nil
}

func (r *RESTClient) SetSponsorBlock(sessionID, guildID string, categories []string) error {
	path := fmt.Sprintf("/v4/sessions/%s/players/%s/sponsorblock/categories", sessionID, guildID)
	if err := r.Put(path, categories, nil); err != nil {
		return errPlugin(ErrSponsorBlockMissing, r.opts.Identifier, "sponsorblock not available: %v", err)
	}
	return nil
}

func (r *RESTClient) DeleteSponsorBlock(sessionID, guildID string) error {
	path := fmt.Sprintf("/v4/sessions/%s/players/%s/sponsorblock/categories", sessionID, guildID)
	if err := r.Delete(path); err != nil {
		return errPlugin(ErrSponsorBlockMissing, r.opts.Identifier, "sponsorblock not available: %v", err)
	}
	return nil
}

func (r *RESTClient) GetLyrics(sessionID, guildID string, skipTrackSource bool) (*Lyrics, error) {
	path := fmt.Sprintf("/v4/sessions/%s/players/%s/lyrics?skipTrackSource=%t", sessionID, guildID, skipTrackSource)
	var out Lyrics
	if err := r.Get(path, &out); err != nil {
		return nil, errPlugin(ErrLyricsPluginMissing, r.opts.Identifier, "lyrics plugin not available: %v", err)
	}
	return &out, nil
}
