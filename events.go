package lavago

import "sync"

// EventName enumerates the Manager's closed event set (GLOSSARY "Manager events").
type EventName string

const (
	EventDebug             EventName = "debug"
	EventNodeCreate        EventName = "nodeCreate"
	EventNodeConnect       EventName = "nodeConnect"
	EventNodeReconnect     EventName = "nodeReconnect"
	EventNodeDisconnect    EventName = "nodeDisconnect"
	EventNodeDestroy       EventName = "nodeDestroy"
	EventNodeError         EventName = "nodeError"
	EventNodeRaw           EventName = "nodeRaw"
	EventPlayerCreate      EventName = "playerCreate"
	EventPlayerDestroy     EventName = "playerDestroy"
	EventPlayerDisconnect  EventName = "playerDisconnect"
	EventPlayerMove        EventName = "playerMove"
	EventPlayerRestored    EventName = "playerRestored"
	EventPlayerStateUpdate EventName = "playerStateUpdate"
	EventQueueEnd          EventName = "queueEnd"
	EventTrackStart        EventName = "trackStart"
	EventTrackEnd          EventName = "trackEnd"
	EventTrackStuck        EventName = "trackStuck"
	EventTrackError        EventName = "trackError"
	EventSocketClosed      EventName = "socketClosed"
	EventSegmentsLoaded    EventName = "segmentsLoaded"
	EventSegmentSkipped    EventName = "segmentSkipped"
	EventChaptersLoaded    EventName = "chaptersLoaded"
	EventChapterStarted    EventName = "chapterStarted"
	EventRestoreComplete   EventName = "restoreComplete"
	EventLyricsFound       EventName = "lyricsFound"
	EventLyricsLine        EventName = "lyricsLine"
	EventLyricsNotFound    EventName = "lyricsNotFound"
)

// EventHandler receives the documented payload for its subscribed EventName.
type EventHandler func(payload interface{})

// EventBus is a typed pub-sub over the closed EventName set (spec §9
// "Event emitter pattern").
type EventBus struct {
	mu        sync.RWMutex
	listeners map[EventName][]EventHandler
}

func newEventBus() *EventBus {
	return &EventBus{listeners: map[EventName][]EventHandler{}}
}

// On registers a handler for name; multiple handlers may subscribe to the
// same event.
func (b *EventBus) On(name EventName, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], handler)
}

func (b *EventBus) emit(name EventName, payload interface{}) {
	b.mu.RLock()
	handlers := append([]EventHandler{}, b.listeners[name]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(payload)
	}
}

// --- documented payload tuples (spec §6/§9) ---

type NodeErrorPayload struct {
	Node *Node
	Err  error
}

type NodeLifecyclePayload struct {
	Node *Node
}

type PlayerLifecyclePayload struct {
	Player *Player
}

type PlayerMovePayload struct {
	Player        *Player
	OldChannelID  string
	NewChannelID  string
}

type PlayerDisconnectPayload struct {
	Player *Player
}

// PlayerStateChangeKind is the typed `change` tag on PlayerStateUpdate
// (spec §4.7 "every state-mutating operation").
type PlayerStateChangeKind string

const (
	ChangeAutoplay   PlayerStateChangeKind = "autoplayChange"
	ChangeConnection PlayerStateChangeKind = "connectionChange"
	ChangeRepeat     PlayerStateChangeKind = "repeatChange"
	ChangePause      PlayerStateChangeKind = "pauseChange"
	ChangeQueue      PlayerStateChangeKind = "queueChange"
	ChangeTrack      PlayerStateChangeKind = "trackChange"
	ChangeVolume     PlayerStateChangeKind = "volumeChange"
	ChangeChannel    PlayerStateChangeKind = "channelChange"
	ChangeCreate     PlayerStateChangeKind = "playerCreate"
	ChangeDestroy    PlayerStateChangeKind = "playerDestroy"
	ChangeFilter     PlayerStateChangeKind = "filterChange"
)

// RepeatChangeDetail/TrackChangeDetail narrow a ChangeRepeat/ChangeTrack
// change further, e.g. "dynamic"|"track"|"queue" and
// "start"|"end"|"previous"|"timeUpdate"|"autoPlay".
type PlayerStateChange struct {
	Kind   PlayerStateChangeKind
	Detail string
}

// PlayerSnapshot is a shallow copy of Player state captured before a
// mutation, used as PlayerStateUpdate.OldPlayer (spec §4.7).
type PlayerSnapshot struct {
	GuildID          string
	VoiceChannelID   string
	TextChannelID    string
	Volume           int
	Playing          bool
	Paused           bool
	Position         int64
	State            PlayerConnectionState
	TrackRepeat      bool
	QueueRepeat      bool
	DynamicRepeat    bool
	IsAutoplay       bool
	AutoplayTries    int
	Current          *Track
}

type PlayerStateUpdate struct {
	OldPlayer *PlayerSnapshot
	NewPlayer *PlayerSnapshot
	Change    PlayerStateChange
}

type QueueEndPayload struct {
	Player *Player
}

type TrackStartPayload struct {
	Player *Player
	Track  *Track
}

type TrackEndPayload struct {
	Player *Player
	Track  *Track
	Reason string
}

type TrackStuckPayload struct {
	Player      *Player
	Track       *Track
	ThresholdMs int64
}

type TrackErrorPayload struct {
	Player       *Player
	Track        *Track
	ErrorMessage string
}

type SocketClosedPayload struct {
	Player   *Player
	Code     int
	Reason   string
	ByRemote bool
}

type RestoreCompletePayload struct {
	Node           *Node
	RestoredGuilds []string
}
