package lavago

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// playerSnapshot is the on-disk shape of a persisted Player: no
// Manager/Filters back-references, just enough to recreate playback state
// (spec §4.8 "Persistence and restore").
type playerSnapshot struct {
	NodeIdentifier          string   `json:"nodeIdentifier"`
	GuildID                 string   `json:"guildId"`
	VoiceChannelID          string   `json:"voiceChannelId"`
	TextChannelID           string   `json:"textChannelId"`
	Volume                  int      `json:"volume"`
	Paused                  bool     `json:"paused"`
	PositionMs              int64    `json:"positionMs"`
	TrackRepeat             bool     `json:"trackRepeat"`
	QueueRepeat             bool     `json:"queueRepeat"`
	DynamicRepeat           bool     `json:"dynamicRepeat"`
	DynamicRepeatIntervalMs int      `json:"dynamicRepeatIntervalMs"`
	IsAutoplay              bool     `json:"isAutoplay"`
	AutoplayTries           int      `json:"autoplayTries"`
	VoiceSessionID          string   `json:"voiceSessionId"`
	VoiceToken              string   `json:"voiceToken"`
	VoiceEndpoint           string   `json:"voiceEndpoint"`
	Current                 *Track   `json:"current,omitempty"`
	Upcoming                []*Track `json:"upcoming,omitempty"`
}

func (m *Manager) persistenceDir() string {
	return filepath.Join(m.opts.DataDirectory, "players")
}

func (m *Manager) persistenceFile(guildID string) string {
	return filepath.Join(m.persistenceDir(), guildID+".json")
}

// persistPlayer snapshots p and writes it atomically, skip-and-continue on
// failure per the catastrophic-error category (spec §7).
func (m *Manager) persistPlayer(p *Player) error {
	var snap *playerSnapshot
	err := p.exec(func() error {
		nodeID := ""
		if p.node != nil {
			nodeID = p.node.ID()
		}
		snap = &playerSnapshot{
			NodeIdentifier:          nodeID,
			GuildID:                 p.GuildID,
			VoiceChannelID:          p.VoiceChannelID,
			TextChannelID:           p.TextChannelID,
			Volume:                  p.Volume,
			Paused:                  p.Paused,
			PositionMs:              p.Position.Milliseconds(),
			TrackRepeat:             p.TrackRepeat,
			QueueRepeat:             p.QueueRepeat,
			DynamicRepeat:           p.DynamicRepeat,
			DynamicRepeatIntervalMs: p.DynamicRepeatIntervalMs,
			IsAutoplay:              p.IsAutoplay,
			AutoplayTries:           p.AutoplayTries,
			VoiceSessionID:          p.voice.SessionID,
			VoiceToken:              p.voice.Token,
			VoiceEndpoint:           p.voice.Endpoint,
			Current:                 p.queue.GetCurrent(),
			Upcoming:                p.queue.GetTracks(),
		}
		return nil
	})
	if err != nil {
		m.log.Warn("persist player: snapshot failed", zap.String("guildId", p.GuildID), zap.Error(err))
		return nil
	}

	if err := os.MkdirAll(m.persistenceDir(), 0o755); err != nil {
		m.log.Warn("persist player: mkdir failed", zap.Error(err))
		return nil
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		m.log.Warn("persist player: marshal failed", zap.Error(err))
		return nil
	}
	path := m.persistenceFile(p.GuildID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		m.log.Warn("persist player: write failed", zap.Error(err))
		return nil
	}
	if err := os.Rename(tmp, path); err != nil {
		m.log.Warn("persist player: rename failed", zap.Error(err))
	}
	return nil
}

// restNodePlayer is the minimal shape read back from GET
// /v4/sessions/{id}/players to reconcile current-track state on restore.
type restNodePlayer struct {
	GuildID string   `json:"guildId"`
	Track   *rawTrack `json:"track"`
}

// restorePlayersForNode reads every persisted snapshot claiming nodeID,
// recreates each Player, reconciles its current track against what the
// node actually reports playing, and deletes the file once restored
// (spec §4.8 "On Node ready with resumed=true").
func (m *Manager) restorePlayersForNode(n *Node) {
	entries, err := os.ReadDir(m.persistenceDir())
	if err != nil {
		return
	}

	var nodePlayers []restNodePlayer
	if raw, err := n.rest.GetAllPlayers(n.SessionID()); err == nil {
		_ = json.Unmarshal(raw, &nodePlayers)
	}
	reportedTrack := map[string]*rawTrack{}
	for _, np := range nodePlayers {
		reportedTrack[np.GuildID] = np.Track
	}

	restored := make([]string, 0)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(m.persistenceDir(), e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var snap playerSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}
		if snap.NodeIdentifier != n.ID() {
			continue
		}
		if m.restorePlayer(n, &snap, reportedTrack[snap.GuildID]) {
			_ = os.Remove(path)
			restored = append(restored, snap.GuildID)
		}
	}

	if len(restored) > 0 {
		m.bus.emit(EventRestoreComplete, RestoreCompletePayload{Node: n, RestoredGuilds: restored})
	}
}

func (m *Manager) restorePlayer(n *Node, snap *playerSnapshot, reported *rawTrack) bool {
	p, err := m.createPlayer(snap.GuildID, n.ID())
	if err != nil {
		m.log.Warn("restore player failed", zap.String("guildId", snap.GuildID), zap.Error(err))
		return false
	}

	_ = p.exec(func() error {
		p.VoiceChannelID = snap.VoiceChannelID
		p.TextChannelID = snap.TextChannelID
		p.Volume = snap.Volume
		p.Paused = snap.Paused
		p.TrackRepeat = snap.TrackRepeat
		p.QueueRepeat = snap.QueueRepeat
		p.DynamicRepeat = snap.DynamicRepeat
		p.DynamicRepeatIntervalMs = snap.DynamicRepeatIntervalMs
		p.IsAutoplay = snap.IsAutoplay
		p.AutoplayTries = snap.AutoplayTries
		p.voice = voiceState{SessionID: snap.VoiceSessionID, Token: snap.VoiceToken, Endpoint: snap.VoiceEndpoint}

		if snap.Current != nil {
			_ = p.queue.SetCurrent(snap.Current)
		}
		if len(snap.Upcoming) > 0 {
			_ = p.queue.Add(snap.Upcoming, 0)
		}

		if p.DynamicRepeat {
			p.dynamicRepeatTimer = time.AfterFunc(time.Duration(p.DynamicRepeatIntervalMs)*time.Millisecond, p.reshuffleLoop)
		}

		if p.voice.complete() {
			_ = p.updatePlayer(&updatePlayerRequest{Voice: &voiceStatePayload{
				Token: p.voice.Token, Endpoint: p.voice.Endpoint, SessionID: p.voice.SessionID,
			}}, false)
		}

		stillPlaying := reported != nil && snap.Current != nil && reported.Encoded == snap.Current.Encoded
		if stillPlaying {
			p.Position = time.Duration(snap.PositionMs) * time.Millisecond
			p.Playing = true
		} else if snap.Current != nil {
			ep := &eventPayload{GuildID: snap.GuildID, Type: eventTrackEnd, Reason: "finished", Track: rawTrack{Encoded: snap.Current.Encoded}}
			dispatchTrackEnd(p, ep)
		}
		return nil
	})

	m.bus.emit(EventPlayerRestored, PlayerLifecyclePayload{Player: p})
	return true
}

// sweepOrphanedPersistence removes persisted files with no corresponding
// in-memory player (spec §4.8 "Orphaned files are cleaned up on a periodic
// sweep").
func (m *Manager) sweepOrphanedPersistence() {
	entries, err := os.ReadDir(m.persistenceDir())
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		guildID := strings.TrimSuffix(e.Name(), ".json")
		if m.getPlayer(guildID) != nil {
			continue
		}
		_ = os.Remove(filepath.Join(m.persistenceDir(), e.Name()))
	}
}
