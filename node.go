package lavago

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NodeConnState is the Node's reconnect/resume state machine (spec §4.4).
type NodeConnState int

const (
	NodeDisconnected NodeConnState = iota
	NodeConnecting
	NodeConnected
	NodeClosed
	NodeErrored
	NodeReconnecting
)

// Node owns one audio node's WS lifecycle, its REST client, its stats/info
// cache and its session-id persistence (spec §3 "Node", component C4).
type Node struct {
	manager *Manager
	opts    *NodeOptions
	rest    *RESTClient
	sock    *socket
	log     *zap.Logger

	mu                sync.RWMutex
	state             NodeConnState
	sessionID         string
	reconnectAttempts int
	reconnectTimer    *time.Timer
	stats             *statsPayload
	info              *nodeInfoResponse
	destroyed         bool
}

func newNode(m *Manager, opts *NodeOptions, log *zap.Logger) *Node {
	n := &Node{
		manager: m,
		opts:    opts,
		rest:    newRESTClient(opts, log),
		log:     log.With(zap.String("nodeId", opts.Identifier)),
	}
	n.sock = newSocket(opts.wsURL())
	n.sock.dataReceived = n.onMessage
	n.sock.closed = n.onClosed
	return n
}

func (n *Node) ID() string { return n.opts.Identifier }

func (n *Node) State() NodeConnState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

func (n *Node) setState(s NodeConnState) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

func (n *Node) Stats() *statsPayload {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

func (n *Node) Info() *nodeInfoResponse {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.info
}

// SupportsSource reports whether the node's cached /v4/info advertises a
// given sourceManager, used by the autoplay recommender (spec §4.6).
func (n *Node) SupportsSource(name string) bool {
	info := n.Info()
	if info == nil {
		return false
	}
	for _, s := range info.SourceManagers {
		if s == name {
			return true
		}
	}
	return false
}

func (n *Node) hasPlugin(name string) bool {
	info := n.Info()
	if info == nil {
		return false
	}
	for _, p := range info.Plugins {
		if p.Name == name {
			return true
		}
	}
	return false
}

// Connect opens the WS handshake (spec §4.4 "Connect handshake").
func (n *Node) Connect() error {
	n.setState(NodeConnecting)
	headers := http.Header{}
	headers.Set("Authorization", n.opts.Password)
	headers.Set("User-Id", n.manager.opts.ClientID)
	headers.Set("Client-Name", n.manager.opts.ClientName)
	if sid := n.manager.sessionStore.get(n.opts.Identifier); sid != "" && n.opts.EnableResume {
		headers.Set("Session-Id", sid)
	}
	if err := n.sock.connect(headers); err != nil {
		n.setState(NodeErrored)
		return errTransport(ErrNodeConnectFailed, n.opts.Identifier, 0, err, "connect: %v", err)
	}
	n.setState(NodeConnected)
	n.mu.Lock()
	n.reconnectAttempts = 0
	n.mu.Unlock()
	n.manager.bus.emit(EventNodeConnect, NodeLifecyclePayload{Node: n})
	return nil
}

// Destroy performs a clean shutdown: cancels any pending reconnect timer and
// closes the socket with code 1000, reason "destroy" so it is never retried.
func (n *Node) Destroy() error {
	n.mu.Lock()
	n.destroyed = true
	if n.reconnectTimer != nil {
		n.reconnectTimer.Stop()
	}
	n.mu.Unlock()
	n.setState(NodeClosed)
	err := n.sock.close(1000, "destroy")
	n.manager.bus.emit(EventNodeDestroy, NodeLifecyclePayload{Node: n})
	return err
}

func (n *Node) send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errValidation(ErrInvalidArgument, "marshal ws frame: %v", err)
	}
	return n.sock.send(data)
}

// onClosed is the socket's close callback; schedules a reconnect unless the
// close was clean (code 1000, reason "destroy") or the node was destroyed.
func (n *Node) onClosed(code int, reason string) {
	n.mu.RLock()
	destroyed := n.destroyed
	n.mu.RUnlock()
	if destroyed {
		return
	}

	for _, p := range n.manager.playersOnNode(n) {
		n.manager.bus.emit(EventSocketClosed, SocketClosedPayload{Player: p, Code: code, Reason: reason})
	}

	if code == 1000 && reason == "destroy" {
		n.setState(NodeClosed)
		return
	}
	n.setState(NodeErrored)
	n.scheduleReconnect()
}

func (n *Node) scheduleReconnect() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	n.reconnectAttempts++
	attempt := n.reconnectAttempts
	retries := n.opts.Retries
	delay := n.opts.ReconnectDelay
	n.mu.Unlock()

	if attempt > retries {
		err := errCatastrophic(ErrReconnectExhausted, n.opts.Identifier, nil, "Unable to connect after %d attempts.", retries)
		n.manager.bus.emit(EventNodeError, NodeErrorPayload{Node: n, Err: err})
		_ = n.Destroy()
		return
	}

	n.setState(NodeReconnecting)
	n.manager.bus.emit(EventNodeReconnect, NodeLifecyclePayload{Node: n})
	timer := time.AfterFunc(delay, func() {
		if err := n.Connect(); err != nil {
			n.scheduleReconnect()
		}
	})
	n.mu.Lock()
	n.reconnectTimer = timer
	n.mu.Unlock()
}

// onMessage dispatches an inbound WS frame by op (spec §4.4 "Frame handling").
// Never panics: malformed frames are logged and surfaced as NodeError.
func (n *Node) onMessage(data []byte) {
	var bp basePayload
	if err := json.Unmarshal(data, &bp); err != nil {
		n.log.Warn("malformed frame", zap.Error(err))
		n.manager.bus.emit(EventNodeError, NodeErrorPayload{Node: n, Err: errTransport(ErrNodeProtocolError, n.opts.Identifier, 0, err, "malformed frame: %v", err)})
		return
	}
	n.manager.bus.emit(EventNodeRaw, data)

	switch bp.Op {
	case opReady:
		n.handleReady(data)
	case opStats:
		n.handleStats(data)
	case opPlayerUpdate:
		n.handlePlayerUpdate(data)
	case opEvent:
		n.handleEvent(data)
	default:
		err := errTransport(ErrNodeProtocolError, n.opts.Identifier, 0, nil, "unknown op %q", bp.Op)
		n.manager.bus.emit(EventNodeError, NodeErrorPayload{Node: n, Err: err})
	}
}

func (n *Node) handleReady(data []byte) {
	var rp readyPayload
	if err := json.Unmarshal(data, &rp); err != nil {
		n.log.Warn("bad ready frame", zap.Error(err))
		return
	}
	n.mu.Lock()
	n.sessionID = rp.SessionID
	n.mu.Unlock()

	if err := n.manager.sessionStore.set(n.opts.Identifier, rp.SessionID); err != nil {
		n.log.Warn("persist session id failed", zap.Error(err))
	}

	info, err := n.rest.FetchInfo()
	if err != nil {
		n.log.Warn("fetch node info failed", zap.Error(err))
	} else {
		n.mu.Lock()
		n.info = info
		n.mu.Unlock()
	}

	if n.opts.EnableResume {
		if err := n.rest.PatchSession(rp.SessionID, true, n.opts.ResumeTimeoutSeconds); err != nil {
			n.log.Warn("enable resume failed", zap.Error(err))
		}
	}

	if rp.Resumed {
		n.manager.restorePlayersForNode(n)
	}
}

func (n *Node) handleStats(data []byte) {
	var sp statsPayload
	if err := json.Unmarshal(data, &sp); err != nil {
		n.log.Warn("bad stats frame", zap.Error(err))
		return
	}
	n.mu.Lock()
	n.stats = &sp
	n.mu.Unlock()
}

func (n *Node) handlePlayerUpdate(data []byte) {
	var pu playerUpdatePayload
	if err := json.Unmarshal(data, &pu); err != nil {
		n.log.Warn("bad playerUpdate frame", zap.Error(err))
		return
	}
	p := n.manager.getPlayer(pu.GuildID)
	if p == nil {
		return
	}
	p.onPositionUpdate(pu.State.Position)
}

func (n *Node) handleEvent(data []byte) {
	var ep eventPayload
	if err := json.Unmarshal(data, &ep); err != nil {
		n.log.Warn("bad event frame", zap.Error(err))
		return
	}
	p := n.manager.getPlayer(ep.GuildID)
	if p == nil {
		return
	}
	switch ep.Type {
	case eventTrackStart:
		p.onTrackStart(&ep)
	case eventTrackEnd:
		p.onTrackEnd(&ep)
	case eventTrackStuck:
		p.onTrackStuck(&ep)
	case eventTrackException:
		p.onTrackException(&ep)
	case eventWebSocketClosed:
		n.manager.bus.emit(EventSocketClosed, SocketClosedPayload{Player: p, Code: ep.Code, Reason: ep.Reason, ByRemote: ep.ByRemote})
	case eventSegmentsLoaded:
		n.manager.bus.emit(EventSegmentsLoaded, ep)
	case eventSegmentSkipped:
		n.manager.bus.emit(EventSegmentSkipped, ep)
	case eventChaptersLoaded:
		n.manager.bus.emit(EventChaptersLoaded, ep)
	case eventChapterStarted:
		n.manager.bus.emit(EventChapterStarted, ep)
	default:
		n.log.Debug("unhandled event type", zap.String("type", ep.Type))
	}
}

// --- plugin-gated REST proxies (spec §4.4, §4.7) ---

func (n *Node) GetSponsorBlock(guildID string) ([]string, error) {
	if !n.hasPlugin("sponsorblock-plugin") {
		return nil, errPlugin(ErrSponsorBlockMissing, n.opts.Identifier, "sponsorblock-plugin not loaded")
	}
	return n.rest.GetSponsorBlock(n.SessionID(), guildID)
}

func (n *Node) SetSponsorBlock(guildID string, categories []string) error {
	if !n.hasPlugin("sponsorblock-plugin") {
		return errPlugin(ErrSponsorBlockMissing, n.opts.Identifier, "sponsorblock-plugin not loaded")
	}
	return n.rest.SetSponsorBlock(n.SessionID(), guildID, categories)
}

func (n *Node) DeleteSponsorBlock(guildID string) error {
	if !n.hasPlugin("sponsorblock-plugin") {
		return errPlugin(ErrSponsorBlockMissing, n.opts.Identifier, "sponsorblock-plugin not loaded")
	}
	return n.rest.DeleteSponsorBlock(n.SessionID(), guildID)
}

func (n *Node) FetchInfo() (*nodeInfoResponse, error) { return n.rest.FetchInfo() }

func (n *Node) GetLyrics(guildID string, skipTrackSource bool) (*Lyrics, error) {
	if !n.hasPlugin("lavalyrics-plugin") {
		return nil, errPlugin(ErrLyricsPluginMissing, n.opts.Identifier, "lavalyrics-plugin not loaded")
	}
	return n.rest.GetLyrics(n.SessionID(), guildID, skipTrackSource)
}
