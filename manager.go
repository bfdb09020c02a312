package lavago

import (
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager owns the node pool and player registry for one chat-platform
// client (spec §3 "Manager", component C8).
type Manager struct {
	opts *ManagerOptions
	log  *zap.Logger

	mu      sync.RWMutex
	nodes   map[string]*Node
	players map[string]*Player

	bus          *EventBus
	sessionStore *sessionStore
	trackUtils   *TrackUtils
	initiated    bool

	sweepStop chan struct{}
}

// NewManager validates options and wires the event bus, session store and
// track builder, but does not yet connect any node (call Init for that).
func NewManager(opts *ManagerOptions, log *zap.Logger) (*Manager, error) {
	if opts.Send == nil {
		return nil, errValidation(ErrInvalidConfig, "ManagerOptions.Send is required")
	}
	if opts.ClientID == "" {
		return nil, errValidation(ErrInvalidConfig, "ManagerOptions.ClientID is required")
	}
	store, err := newSessionStore(opts.DataDirectory)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		opts:         opts,
		log:          log,
		nodes:        map[string]*Node{},
		players:      map[string]*Player{},
		bus:          newEventBus(),
		sessionStore: store,
		trackUtils:   NewTrackUtils(opts.TrackPartial),
	}
	for _, plugin := range opts.Plugins {
		if err := plugin.Load(m); err != nil {
			return nil, errCatastrophic(ErrGeneral, "", err, "load plugin %s: %v", plugin.Name(), err)
		}
	}
	return m, nil
}

// On subscribes handler to name (spec §9 "Event emitter pattern").
func (m *Manager) On(name EventName, handler EventHandler) { m.bus.On(name, handler) }

// Init connects every configured node and starts the orphan-file sweep.
func (m *Manager) Init() error {
	for _, opts := range m.opts.Nodes {
		if _, err := m.CreateNode(opts); err != nil {
			return err
		}
	}
	m.initiated = true
	m.sweepStop = make(chan struct{})
	go m.orphanSweepLoop()
	return nil
}

// CreateNode registers and connects a new audio node.
func (m *Manager) CreateNode(opts *NodeOptions) (*Node, error) {
	m.mu.Lock()
	if _, exists := m.nodes[opts.Identifier]; exists {
		m.mu.Unlock()
		return nil, errBusiness(ErrNodeAlreadyExists, "node %q already registered", opts.Identifier)
	}
	n := newNode(m, opts, m.log)
	m.nodes[opts.Identifier] = n
	m.mu.Unlock()

	m.bus.emit(EventNodeCreate, NodeLifecyclePayload{Node: n})
	if err := n.Connect(); err != nil {
		m.bus.emit(EventNodeError, NodeErrorPayload{Node: n, Err: err})
	}
	return n, nil
}

func (m *Manager) getNode(identifier string) *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[identifier]
}

func (m *Manager) getPlayer(guildID string) *Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.players[guildID]
}

func (m *Manager) removePlayer(guildID string) {
	m.mu.Lock()
	delete(m.players, guildID)
	m.mu.Unlock()
}

func (m *Manager) playersOnNode(n *Node) []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Player, 0)
	for _, p := range m.players {
		if p.node == n {
			out = append(out, p)
		}
	}
	return out
}

// useableNode implements the three routing policies (spec §4.8 "Routing").
func (m *Manager) useableNode() (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		if n.State() == NodeConnected {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil, errBusiness(ErrNoUseableNode, "no connected node available")
	}

	if m.opts.EnablePriorityMode {
		return weightedPriorityPick(candidates), nil
	}
	if m.opts.UseNode == LeastLoad {
		return leastLoadPick(candidates), nil
	}
	return leastPlayersPick(candidates), nil
}

func weightedPriorityPick(candidates []*Node) *Node {
	total := 0
	weighted := make([]*Node, 0, len(candidates))
	for _, n := range candidates {
		p := n.opts.Priority
		if p <= 0 {
			continue
		}
		total += p
		weighted = append(weighted, n)
	}
	if total == 0 || len(weighted) == 0 {
		return candidates[0]
	}
	r := globalRand.Intn(total)
	for _, n := range weighted {
		r -= n.opts.Priority
		if r < 0 {
			return n
		}
	}
	return weighted[len(weighted)-1]
}

func leastLoadPick(candidates []*Node) *Node {
	var best *Node
	bestLoad := -1.0
	for _, n := range candidates {
		stats := n.Stats()
		load := 0.0
		if stats != nil && stats.CPU.Cores > 0 {
			load = 100 * stats.CPU.LavalinkLoad / float64(stats.CPU.Cores)
		}
		if best == nil || load < bestLoad {
			best, bestLoad = n, load
		}
	}
	return best
}

func leastPlayersPick(candidates []*Node) *Node {
	var best *Node
	bestPlayers := -1
	for _, n := range candidates {
		stats := n.Stats()
		players := 0
		if stats != nil {
			players = stats.Players
		}
		if best == nil || players < bestPlayers {
			best, bestPlayers = n, players
		}
	}
	return best
}

// createPlayer registers a new Player for guildID on the given node
// identifier (or a routed node when identifier is empty).
func (m *Manager) createPlayer(guildID, identifier string) (*Player, error) {
	m.mu.Lock()
	if p, exists := m.players[guildID]; exists {
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()

	var node *Node
	if identifier != "" {
		node = m.getNode(identifier)
		if node == nil {
			return nil, errBusiness(ErrNoUseableNode, "node %q not found", identifier)
		}
	} else {
		n, err := m.useableNode()
		if err != nil {
			return nil, err
		}
		node = n
	}

	q, err := m.newQueue(guildID)
	if err != nil {
		return nil, err
	}
	p := newPlayer(m, node, guildID, q, m.log)

	m.mu.Lock()
	m.players[guildID] = p
	m.mu.Unlock()

	m.bus.emit(EventPlayerCreate, PlayerLifecyclePayload{Player: p})
	return p, nil
}

// CreatePlayer is the public entry point for player creation/connect.
func (m *Manager) CreatePlayer(guildID, voiceChannelID, textChannelID string, selfMute, selfDeaf bool) (*Player, error) {
	p, err := m.createPlayer(guildID, "")
	if err != nil {
		return nil, err
	}
	p.TextChannelID = textChannelID
	if err := p.Connect(voiceChannelID, selfMute, selfDeaf); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Manager) newQueue(guildID string) (Queue, error) {
	switch m.opts.StateStorage {
	case StateStorageJSON:
		return NewJSONQueue(guildID, m.opts.MaxPreviousTracks, m.opts.DataDirectory+"/queues")
	case StateStorageRedis:
		return nil, errValidation(ErrInvalidConfig, "redis queue backend requires an explicit client; use NewRedisQueue directly")
	default:
		return NewMemoryQueue(guildID, m.opts.MaxPreviousTracks), nil
	}
}

func (m *Manager) sendVoiceUpdate(guildID, channelID string, selfMute, selfDeaf bool) error {
	var cid interface{}
	if channelID != "" {
		cid = channelID
	}
	data, err := json.Marshal(map[string]interface{}{
		"op": 4,
		"d": map[string]interface{}{
			"guild_id":  guildID,
			"channel_id": cid,
			"self_mute": selfMute,
			"self_deaf": selfDeaf,
		},
	})
	if err != nil {
		return errValidation(ErrInvalidArgument, "marshal voice update: %v", err)
	}
	return m.opts.Send(guildID, data)
}

// gatewayVoicePacket is the opaque envelope accepted by UpdateVoiceState
// (spec §6 "Inbound gateway packets").
type gatewayVoicePacket struct {
	T string `json:"t"`
	D struct {
		Token     string `json:"token"`
		GuildID   string `json:"guild_id"`
		Endpoint  string `json:"endpoint"`
		UserID    string `json:"user_id"`
		SessionID string `json:"session_id"`
		ChannelID string `json:"channel_id"`
	} `json:"d"`
}

// UpdateVoiceState fans a gateway voice packet into the owning Player. A
// server update that completes the voice session REST-updates the node; a
// state update only records the session id and channel
// (spec §4.8 "Voice-state fan-in").
func (m *Manager) UpdateVoiceState(raw []byte) error {
	var pkt gatewayVoicePacket
	if err := json.Unmarshal(raw, &pkt); err != nil {
		return errValidation(ErrInvalidArgument, "updateVoiceState: decode packet: %v", err)
	}
	if pkt.D.Token != "" {
		return m.onVoiceServerUpdate(pkt.D.GuildID, pkt.D.Token, pkt.D.Endpoint)
	}
	if pkt.D.SessionID != "" && pkt.D.UserID == m.opts.ClientID {
		return m.onVoiceStateUpdate(pkt.D.GuildID, pkt.D.SessionID, pkt.D.ChannelID)
	}
	return nil
}

func (m *Manager) onVoiceServerUpdate(guildID, token, endpoint string) error {
	p := m.getPlayer(guildID)
	if p == nil {
		return nil
	}
	return p.exec(func() error {
		p.voice.Token = token
		p.voice.Endpoint = endpoint
		if !p.voice.complete() {
			return nil
		}
		return p.updatePlayer(&updatePlayerRequest{Voice: &voiceStatePayload{
			Token: token, Endpoint: endpoint, SessionID: p.voice.SessionID,
		}}, false)
	})
}

func (m *Manager) onVoiceStateUpdate(guildID, sessionID, channelID string) error {
	p := m.getPlayer(guildID)
	if p == nil {
		return nil
	}
	if channelID == "" {
		m.bus.emit(EventPlayerDisconnect, PlayerDisconnectPayload{Player: p})
		return p.Destroy(false)
	}
	return p.exec(func() error {
		p.voice.SessionID = sessionID
		if p.VoiceChannelID != channelID {
			old := p.VoiceChannelID
			p.VoiceChannelID = channelID
			m.bus.emit(EventPlayerMove, PlayerMovePayload{Player: p, OldChannelID: old, NewChannelID: channelID})
		}
		return nil
	})
}

// Search proxies a query to a routed node's /v4/loadtracks, building Tracks
// or a Playlist descriptor (spec §4.8 "Search").
func (m *Manager) Search(platform, query string, requester interface{}) (*SearchResult, error) {
	node, err := m.useableNode()
	if err != nil {
		return nil, err
	}
	identifier := searchIdentifier(platform, query)
	resp, err := node.rest.LoadTracks(identifier)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{LoadType: LoadType(resp.LoadType)}
	switch result.LoadType {
	case LoadTypeTrack:
		var rt rawTrack
		if err := json.Unmarshal(resp.Data, &rt); err != nil {
			return nil, errValidation(ErrTrackDecodeFailed, "search: decode track: %v", err)
		}
		result.Tracks = []*Track{m.buildTrack(rt, requester)}
	case LoadTypeSearch:
		var raws []rawTrack
		if err := json.Unmarshal(resp.Data, &raws); err != nil {
			return nil, errValidation(ErrTrackDecodeFailed, "search: decode results: %v", err)
		}
		result.Tracks = m.buildTracks(raws, requester)
	case LoadTypePlaylist:
		var pd playlistData
		if err := json.Unmarshal(resp.Data, &pd); err != nil {
			return nil, errValidation(ErrTrackDecodeFailed, "search: decode playlist: %v", err)
		}
		result.Playlist = &Playlist{
			Name:          pd.Info.Name,
			SelectedTrack: pd.Info.SelectedTrack,
			Tracks:        m.buildTracks(pd.Tracks, requester),
		}
	case LoadTypeError:
		var le loadErrorData
		_ = json.Unmarshal(resp.Data, &le)
		result.Err = errTransport(ErrRESTRequestFailed, node.ID(), 0, nil, "load failed: %s", le.Message)
	}

	if m.opts.NormalizeYouTubeTitles && result.Tracks != nil {
		for _, t := range result.Tracks {
			if t.SourceName == SourceYouTube {
				t.Author, t.Title = normalizeYouTubeTitle(t.Title, t.Author)
			}
		}
	}
	return result, nil
}

func (m *Manager) buildTrack(rt rawTrack, requester interface{}) *Track {
	return m.trackUtils.fromRaw(rt, requester)
}

func (m *Manager) buildTracks(raws []rawTrack, requester interface{}) []*Track {
	out := make([]*Track, len(raws))
	for i, rt := range raws {
		out[i] = m.buildTrack(rt, requester)
	}
	return out
}

func (m *Manager) orphanSweepLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweepOrphanedPersistence()
		case <-m.sweepStop:
			return
		}
	}
}

// Shutdown persists every connected player, drains in-flight REST work up
// to a deadline, and closes every node socket cleanly (spec §5 "Graceful
// shutdown").
func (m *Manager) Shutdown() error {
	if m.sweepStop != nil {
		close(m.sweepStop)
	}

	m.mu.RLock()
	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		if p.State != PlayerDisconnected {
			players = append(players, p)
		}
	}
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.RUnlock()

	g := new(errgroup.Group)
	g.SetLimit(16)
	for _, p := range players {
		p := p
		g.Go(func() error { return m.persistPlayer(p) })
	}
	persistErr := g.Wait()

	time.Sleep(2 * time.Second)

	for _, n := range nodes {
		_ = n.Destroy()
	}

	return persistErr
}

// WaitForSignal blocks until SIGINT/SIGTERM, then runs Shutdown. Intended
// for cmd/ entry points; library users may call Shutdown directly instead.
func (m *Manager) WaitForSignal() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return m.Shutdown()
}
