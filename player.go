package lavago

import (
	"time"

	"go.uber.org/zap"
)

// PlayerConnectionState is the voice-connection state machine for a Player
// (spec §3 "Player").
type PlayerConnectionState int

const (
	PlayerDisconnected PlayerConnectionState = iota
	PlayerConnecting
	PlayerConnected
	PlayerDisconnecting
	PlayerDestroying
)

// reservedAutoplayUserKey is the Data map key under which setAutoplay stores
// the bot user reference (spec §4.7 "setAutoplay").
const reservedAutoplayUserKey = "lavago:autoplayBotUser"

// reservedSkipFlagKey marks that the next TrackEnd originated from
// previous() and must not be re-appended to previous (spec §4.7 "previous").
const reservedSkipFlagKey = "lavago:skipPrevious"

// PlayOptions narrows the fields of updatePlayer a play() call may set,
// beyond the encoded track itself (spec §4.1/§4.7).
type PlayOptions struct {
	NoReplace bool
	StartTime *int64
	EndTime   *int64
}

type voiceState struct {
	SessionID string
	Token     string
	Endpoint  string
}

func (v voiceState) complete() bool {
	return v.SessionID != "" && v.Token != "" && v.Endpoint != ""
}

// Player is the per-guild playback state machine (spec §3 "Player",
// component C7). All mutating operations are serialized through cmds so
// the actor is single-writer, matching the teacher's Node/Socket send
// goroutine shape generalized to per-guild ownership.
type Player struct {
	manager *Manager
	node    *Node
	log     *zap.Logger

	GuildID        string
	VoiceChannelID string
	TextChannelID  string

	Volume int
	Playing bool
	Paused  bool
	Position time.Duration

	State PlayerConnectionState

	TrackRepeat             bool
	QueueRepeat              bool
	DynamicRepeat            bool
	DynamicRepeatIntervalMs  int

	IsAutoplay    bool
	AutoplayTries int

	voice voiceState

	filters *Filters
	queue   Queue
	Data    map[string]interface{}

	dynamicRepeatTimer *time.Timer

	cmds chan playerCmd
	done chan struct{}
}

type playerCmd struct {
	fn   func() error
	done chan error
}

func newPlayer(m *Manager, n *Node, guildID string, q Queue, log *zap.Logger) *Player {
	p := &Player{
		manager: m,
		node:    n,
		log:     log.With(zap.String("guildId", guildID)),
		GuildID: guildID,
		Volume:  100,
		State:   PlayerDisconnected,
		queue:   q,
		Data:    map[string]interface{}{},
		cmds:    make(chan playerCmd, 32),
		done:    make(chan struct{}),
	}
	p.filters = newFilters(p)
	go p.loop()
	return p
}

func (p *Player) loop() {
	for {
		select {
		case c := <-p.cmds:
			c.done <- c.fn()
		case <-p.done:
			return
		}
	}
}

// exec submits fn to the player's single-writer command loop and waits for
// it to complete, serializing it against every other Player operation and
// against inbound playerUpdate/event frames (spec §5 "ordering guarantees").
func (p *Player) exec(fn func() error) error {
	done := make(chan error, 1)
	select {
	case p.cmds <- playerCmd{fn: fn, done: done}:
	case <-p.done:
		return errBusiness(ErrInvalidState, "player %s is destroyed", p.GuildID)
	}
	return <-done
}

func (p *Player) snapshot() *PlayerSnapshot {
	return &PlayerSnapshot{
		GuildID:        p.GuildID,
		VoiceChannelID: p.VoiceChannelID,
		TextChannelID:  p.TextChannelID,
		Volume:         p.Volume,
		Playing:        p.Playing,
		Paused:         p.Paused,
		Position:       p.Position.Milliseconds(),
		State:          p.State,
		TrackRepeat:    p.TrackRepeat,
		QueueRepeat:    p.QueueRepeat,
		DynamicRepeat:  p.DynamicRepeat,
		IsAutoplay:     p.IsAutoplay,
		AutoplayTries:  p.AutoplayTries,
		Current:        p.queue.GetCurrent(),
	}
}

// mutate wraps a state-mutating body: it captures a snapshot before and
// after fn runs and emits exactly one PlayerStateUpdate, unless fn fails
// (spec §4.7 "every state-mutating operation").
func (p *Player) mutate(kind PlayerStateChangeKind, detail string, fn func() error) error {
	return p.exec(func() error {
		old := p.snapshot()
		if err := fn(); err != nil {
			return err
		}
		p.manager.bus.emit(EventPlayerStateUpdate, PlayerStateUpdate{
			OldPlayer: old,
			NewPlayer: p.snapshot(),
			Change:    PlayerStateChange{Kind: kind, Detail: detail},
		})
		return nil
	})
}

func (p *Player) sessionID() string {
	if p.node == nil {
		return ""
	}
	return p.node.SessionID()
}

func (p *Player) updatePlayer(data *updatePlayerRequest, noReplace bool) error {
	if p.node == nil {
		return errValidation(ErrInvalidState, "player %s has no active node", p.GuildID)
	}
	return p.node.rest.UpdatePlayer(p.sessionID(), p.GuildID, data, noReplace)
}

// Connect transitions Disconnected->Connecting->Connected and emits the
// outbound voice-join payload via the Manager's send callback (spec §4.7).
func (p *Player) Connect(voiceChannelID string, selfMute, selfDeaf bool) error {
	if voiceChannelID == "" {
		return errValidation(ErrInvalidArgument, "connect: voiceChannelId is required")
	}
	return p.mutate(ChangeConnection, "connect", func() error {
		p.State = PlayerConnecting
		p.VoiceChannelID = voiceChannelID
		if err := p.manager.sendVoiceUpdate(p.GuildID, voiceChannelID, selfMute, selfDeaf); err != nil {
			p.State = PlayerDisconnected
			return err
		}
		p.State = PlayerConnected
		return nil
	})
}

// Disconnect pauses playback, leaves the voice channel, and clears
// VoiceChannelID (spec §4.7).
func (p *Player) Disconnect() error {
	return p.mutate(ChangeConnection, "disconnect", func() error {
		if p.node != nil {
			_ = p.updatePlayer(&updatePlayerRequest{Paused: boolPtr(true)}, false)
		}
		p.Paused = true
		if err := p.manager.sendVoiceUpdate(p.GuildID, "", false, false); err != nil {
			return err
		}
		p.VoiceChannelID = ""
		p.State = PlayerDisconnected
		return nil
	})
}

// Destroy tears the player down: optionally disconnects, destroys the
// node-side player, clears the queue, and removes itself from the Manager.
func (p *Player) Destroy(disconnect bool) error {
	err := p.mutate(ChangeDestroy, "destroy", func() error {
		p.State = PlayerDestroying
		if disconnect && p.VoiceChannelID != "" {
			_ = p.manager.sendVoiceUpdate(p.GuildID, "", false, false)
			p.VoiceChannelID = ""
		}
		if p.node != nil {
			if err := p.node.rest.DestroyPlayer(p.sessionID(), p.GuildID); err != nil {
				p.log.Warn("destroy player on node failed", zap.Error(err))
			}
		}
		_ = p.queue.Clear()
		if p.dynamicRepeatTimer != nil {
			p.dynamicRepeatTimer.Stop()
		}
		return nil
	})
	p.manager.removePlayer(p.GuildID)
	close(p.done)
	return err
}

// trackFromEvent resolves the Track the event refers to, preferring the
// queue's current track (since the node echoes only the encoded blob).
func (p *Player) trackFromEvent(ep *eventPayload) *Track {
	cur := p.queue.GetCurrent()
	if cur != nil && cur.Encoded == ep.Track.Encoded {
		return cur
	}
	if ep.Track.Encoded == "" {
		return cur
	}
	tu := NewTrackUtils(nil)
	return tu.fromRaw(ep.Track, nil)
}

func (p *Player) autoPlayOnEnd() bool {
	return p.manager.opts.PlayNextOnEnd
}

// play issues the REST update that starts playback of the queue's current
// track (or, when track is non-nil, adopts it as current first).
func (p *Player) play(track *Track, opts *PlayOptions) error {
	if track != nil {
		if err := p.queue.SetCurrent(track); err != nil {
			return err
		}
	}
	cur := p.queue.GetCurrent()
	if cur == nil {
		return errBusiness(ErrNoCurrentTrack, "play: no current track")
	}
	req := &updatePlayerRequest{EncodedTrack: &cur.Encoded}
	noReplace := false
	if opts != nil {
		req.StartTime = opts.StartTime
		req.EndTime = opts.EndTime
		noReplace = opts.NoReplace
	}
	if err := p.updatePlayer(req, noReplace); err != nil {
		return err
	}
	p.Playing = true
	p.Position = 0
	p.manager.bus.emit(EventTrackStart, TrackStartPayload{Player: p, Track: cur})
	return nil
}

// Play is the public, serialized entry point for play() (spec §4.7 "play").
func (p *Player) Play(track *Track, opts *PlayOptions) error {
	return p.mutate(ChangeTrack, "start", func() error { return p.play(track, opts) })
}

// Pause is a no-op if the player is already in the requested state or the
// queue is empty.
func (p *Player) Pause(pause bool) error {
	return p.mutate(ChangePause, "pause", func() error {
		if p.Paused == pause {
			return nil
		}
		if p.queue.GetCurrent() == nil {
			return nil
		}
		if err := p.updatePlayer(&updatePlayerRequest{Paused: boolPtr(pause)}, false); err != nil {
			return err
		}
		p.Paused = pause
		return nil
	})
}

// Seek clamps position to [0, current.duration] and issues a REST update.
func (p *Player) Seek(position time.Duration) error {
	return p.mutate(ChangeTrack, "timeUpdate", func() error {
		cur := p.queue.GetCurrent()
		if cur == nil {
			return errBusiness(ErrNoCurrentTrack, "seek: no current track")
		}
		if position < 0 {
			position = 0
		}
		if position > cur.Duration {
			position = cur.Duration
		}
		ms := position.Milliseconds()
		if err := p.updatePlayer(&updatePlayerRequest{Position: &ms}, false); err != nil {
			return err
		}
		p.Position = position
		return nil
	})
}

// Stop discards encodedTrack on the node. If n>1, the first n-1 upcoming
// tracks are dropped so the nth becomes current on the ensuing TrackEnd
// (spec §4.7 "stop").
func (p *Player) Stop(n int) error {
	return p.mutate(ChangeTrack, "end", func() error {
		if n > 1 {
			if err := p.queue.Remove(0, n-1); err != nil {
				return err
			}
		}
		if err := p.updatePlayer(&updatePlayerRequest{ClearTrack: true}, false); err != nil {
			return err
		}
		p.Playing = false
		return nil
	})
}

// Previous pops the most recent previous track and plays it; the
// reservedSkipFlagKey keeps the resulting TrackEnd from appending the
// outgoing track to previous.
func (p *Player) Previous() error {
	return p.mutate(ChangeTrack, "previous", func() error {
		prev, err := p.queue.PopPrevious()
		if err != nil {
			return err
		}
		p.Data[reservedSkipFlagKey] = true
		return p.play(prev, nil)
	})
}

func (p *Player) SetVolume(v int) error {
	return p.mutate(ChangeVolume, "volume", func() error {
		if v < 0 || v > 1000 {
			return errValidation(ErrVolumeOutOfRange, "setVolume: %d out of [0,1000]", v)
		}
		if err := p.updatePlayer(&updatePlayerRequest{Volume: &v}, false); err != nil {
			return err
		}
		p.Volume = v
		return nil
	})
}

func (p *Player) clearRepeatFlags() {
	p.TrackRepeat = false
	p.QueueRepeat = false
	p.DynamicRepeat = false
	if p.dynamicRepeatTimer != nil {
		p.dynamicRepeatTimer.Stop()
		p.dynamicRepeatTimer = nil
	}
}

func (p *Player) SetTrackRepeat(on bool) error {
	return p.mutate(ChangeRepeat, "track", func() error {
		p.clearRepeatFlags()
		p.TrackRepeat = on
		return nil
	})
}

func (p *Player) SetQueueRepeat(on bool) error {
	return p.mutate(ChangeRepeat, "queue", func() error {
		p.clearRepeatFlags()
		p.QueueRepeat = on
		return nil
	})
}

// SetDynamicRepeat requires |upcoming|>1 to enable; a timer reshuffles the
// queue every intervalMs while it's on (spec §4.7).
func (p *Player) SetDynamicRepeat(on bool, intervalMs int) error {
	return p.mutate(ChangeRepeat, "dynamic", func() error {
		if !on {
			p.clearRepeatFlags()
			return nil
		}
		if p.queue.Size() <= 1 {
			return errBusiness(ErrRepeatConflict, "setDynamicRepeat: requires more than one upcoming track")
		}
		p.clearRepeatFlags()
		p.DynamicRepeat = true
		p.DynamicRepeatIntervalMs = intervalMs
		p.dynamicRepeatTimer = time.AfterFunc(time.Duration(intervalMs)*time.Millisecond, p.reshuffleLoop)
		return nil
	})
}

func (p *Player) reshuffleLoop() {
	_ = p.exec(func() error {
		if !p.DynamicRepeat {
			return nil
		}
		_ = p.queue.Shuffle()
		p.dynamicRepeatTimer = time.AfterFunc(time.Duration(p.DynamicRepeatIntervalMs)*time.Millisecond, p.reshuffleLoop)
		return nil
	})
}

// SetAutoplay requires botUser when enabling (spec §4.7 "setAutoplay").
func (p *Player) SetAutoplay(on bool, botUser interface{}, tries int) error {
	return p.mutate(ChangeAutoplay, "autoplay", func() error {
		if on && botUser == nil {
			return errValidation(ErrInvalidArgument, "setAutoplay: botUser is required to enable autoplay")
		}
		p.IsAutoplay = on
		if tries <= 0 {
			tries = 3
		}
		p.AutoplayTries = tries
		if on {
			p.Data[reservedAutoplayUserKey] = botUser
		} else {
			delete(p.Data, reservedAutoplayUserKey)
		}
		return nil
	})
}

// MoveNode transfers this player to another Node without touching the
// voice channel (spec §4.7 "moveNode").
func (p *Player) MoveNode(identifier string) error {
	return p.mutate(ChangeConnection, "moveNode", func() error {
		if !p.voice.complete() {
			return errBusiness(ErrMissingVoiceState, "moveNode: voice state incomplete")
		}
		target := p.manager.getNode(identifier)
		if target == nil {
			return errBusiness(ErrNoUseableNode, "moveNode: node %q not found", identifier)
		}
		old := p.node
		if old != nil {
			_ = old.rest.DestroyPlayer(old.SessionID(), p.GuildID)
		}
		p.node = target
		cur := p.queue.GetCurrent()
		var encoded *string
		if cur != nil {
			encoded = &cur.Encoded
		}
		ms := p.Position.Milliseconds()
		req := &updatePlayerRequest{
			Paused:       boolPtr(p.Paused),
			Volume:       intPtr(p.Volume),
			Position:     &ms,
			EncodedTrack: encoded,
			Voice: &voiceStatePayload{
				Token:     p.voice.Token,
				Endpoint:  p.voice.Endpoint,
				SessionID: p.voice.SessionID,
			},
		}
		if err := p.updatePlayer(req, false); err != nil {
			p.node = old
			return err
		}
		return p.filters.push(true)
	})
}

// SwitchGuild creates/overwrites a player in another guild carrying this
// player's queue and settings, then destroys self (spec §4.7).
func (p *Player) SwitchGuild(newGuildID string, force bool) (*Player, error) {
	existing := p.manager.getPlayer(newGuildID)
	if existing != nil && !force {
		return nil, errBusiness(ErrNodeAlreadyExists, "switchGuild: player already exists for %s", newGuildID)
	}
	np, err := p.manager.createPlayer(newGuildID, p.node.ID())
	if err != nil {
		return nil, err
	}
	_ = np.exec(func() error {
		np.TrackRepeat = p.TrackRepeat
		np.QueueRepeat = p.QueueRepeat
		np.DynamicRepeat = p.DynamicRepeat
		np.IsAutoplay = p.IsAutoplay
		np.AutoplayTries = p.AutoplayTries
		np.Volume = p.Volume
		if cur := p.queue.GetCurrent(); cur != nil {
			_ = np.queue.SetCurrent(cur)
		}
		if upcoming := p.queue.GetTracks(); len(upcoming) > 0 {
			_ = np.queue.Add(upcoming, 0)
		}
		return nil
	})
	_ = p.Destroy(true)
	return np, nil
}

func (p *Player) GetCurrentLyrics(skipTrackSource bool) (*Lyrics, error) {
	if p.node == nil {
		return nil, errValidation(ErrInvalidState, "getCurrentLyrics: player has no active node")
	}
	return p.node.GetLyrics(p.GuildID, skipTrackSource)
}

func (p *Player) GetSponsorBlock() ([]string, error) {
	if p.node == nil {
		return nil, errValidation(ErrInvalidState, "getSponsorBlock: player has no active node")
	}
	return p.node.GetSponsorBlock(p.GuildID)
}

func (p *Player) SetSponsorBlock(categories []string) error {
	if p.node == nil {
		return errValidation(ErrInvalidState, "setSponsorBlock: player has no active node")
	}
	return p.node.SetSponsorBlock(p.GuildID, categories)
}

func (p *Player) DeleteSponsorBlock() error {
	if p.node == nil {
		return errValidation(ErrInvalidState, "deleteSponsorBlock: player has no active node")
	}
	return p.node.DeleteSponsorBlock(p.GuildID)
}

// --- Node-driven callbacks (executed through the command loop) ---

func (p *Player) onPositionUpdate(positionMs int64) {
	_ = p.mutate(ChangeTrack, "timeUpdate", func() error {
		p.Position = time.Duration(positionMs) * time.Millisecond
		return nil
	})
}

func (p *Player) onTrackStart(ep *eventPayload) {
	_ = p.exec(func() error {
		p.Playing = true
		p.Position = 0
		return nil
	})
}

func (p *Player) onTrackEnd(ep *eventPayload) {
	_ = p.exec(func() error {
		if skip, _ := p.Data[reservedSkipFlagKey].(bool); skip {
			delete(p.Data, reservedSkipFlagKey)
			// A client-initiated Previous() already popped the new current
			// track off previous; the outgoing track must not be
			// re-appended to previous by dispatchTrackEnd's replaced-case,
			// so this bypasses the dispatcher entirely rather than routing
			// through it.
			p.emitTrackEnd(p.trackFromEvent(ep), "replaced")
			return nil
		}
		dispatchTrackEnd(p, ep)
		return nil
	})
}

func (p *Player) onTrackStuck(ep *eventPayload) {
	_ = p.exec(func() error {
		p.manager.bus.emit(EventTrackStuck, TrackStuckPayload{Player: p, Track: p.queue.GetCurrent(), ThresholdMs: ep.ThresholdMs})
		return nil
	})
}

func (p *Player) onTrackException(ep *eventPayload) {
	_ = p.exec(func() error {
		msg := ""
		if ep.Exception != nil {
			msg = ep.Exception.Message
		}
		p.manager.bus.emit(EventTrackError, TrackErrorPayload{Player: p, Track: p.queue.GetCurrent(), ErrorMessage: msg})
		dispatchTrackEnd(p, ep)
		return nil
	})
}

func (p *Player) emitTrackEnd(ended *Track, reason string) {
	p.manager.bus.emit(EventTrackEnd, TrackEndPayload{Player: p, Track: ended, Reason: reason})
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
