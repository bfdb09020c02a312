package lavago

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// UseNodePolicy selects how Manager.useableNode ranks candidate nodes
// when priority-weighted routing is disabled. See spec §4.8.
type UseNodePolicy int

const (
	LeastLoad UseNodePolicy = iota
	LeastPlayers
)

// StateStorage selects the Queue/persistence backend a Player is built with.
type StateStorage int

const (
	StateStorageMemory StateStorage = iota
	StateStorageJSON
	StateStorageRedis
)

// NodeOptions configures a single audio node connection (spec §3 "Node").
type NodeOptions struct {
	Identifier string
	Host       string
	Port       int
	Password   string
	UseSSL     bool
	Priority   int
	Retries    int

	// ReconnectDelay is the fixed delay before each reconnect attempt.
	ReconnectDelay time.Duration
	// ResumeTimeoutSeconds is sent to PATCH /v4/sessions/{id} when resume is enabled.
	ResumeTimeoutSeconds int
	// APIRequestTimeout bounds every outbound REST call. Defaults to 10s (spec §5).
	APIRequestTimeout time.Duration
	// EnableResume toggles Lavalink's session-resume capability on connect.
	EnableResume bool
}

func NewNodeOptions(identifier, host string, port int, password string) *NodeOptions {
	return &NodeOptions{
		Identifier:           identifier,
		Host:                 host,
		Port:                 port,
		Password:             password,
		Priority:             1,
		Retries:              3,
		ReconnectDelay:       5 * time.Second,
		ResumeTimeoutSeconds: 60,
		APIRequestTimeout:    10 * time.Second,
		EnableResume:         true,
	}
}

func (o *NodeOptions) wsURL() string {
	scheme := "ws"
	if o.UseSSL {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/v4/websocket", scheme, o.Host, o.Port)
}

func (o *NodeOptions) httpBase() string {
	scheme := "http"
	if o.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Host, o.Port)
}

// ManagerOptions configures the Manager (spec §6 "Configuration keys").
type ManagerOptions struct {
	Nodes                   []*NodeOptions
	ClientID                string
	ClientName              string
	Plugins                 []Plugin
	PlayNextOnEnd           bool
	DefaultSearchPlatform   string
	AutoPlaySearchPlatforms []AutoplayPlatform
	LastFmAPIKey            string
	MaxPreviousTracks       int
	NormalizeYouTubeTitles  bool
	TrackPartial            []string
	EnablePriorityMode      bool
	UseNode                 UseNodePolicy
	StateStorage            StateStorage
	// Send delivers an outbound voice-gateway payload (op=4) to the host's
	// gateway socket. Required.
	Send func(guildID string, payload []byte) error
	// DataDirectory is the working-directory-relative root used for
	// sessionIds.json and players/<guildId>.json (spec §6 "Persistence layout").
	DataDirectory string
}

func NewManagerOptions() *ManagerOptions {
	return &ManagerOptions{
		ClientName:            "lavago",
		PlayNextOnEnd:         true,
		DefaultSearchPlatform: "ytsearch",
		MaxPreviousTracks:     20,
		UseNode:               LeastPlayers,
		StateStorage:          StateStorageMemory,
		DataDirectory:         "dist/sessionData",
	}
}

// Plugin is loaded by the Manager at startup; its Load hook may register
// extra event listeners. Plugin bodies are out of scope (spec §1) — only
// this interface matters.
type Plugin interface {
	Name() string
	Load(m *Manager) error
}

// LoadManagerOptionsFromEnv layers LAVAGO_* environment variables (optionally
// from a .env file) over a base ManagerOptions. Convenience only — every
// field remains settable directly.
func LoadManagerOptionsFromEnv(base *ManagerOptions) *ManagerOptions {
	_ = godotenv.Load()
	if v := os.Getenv("LAVAGO_CLIENT_ID"); v != "" {
		base.ClientID = v
	}
	if v := os.Getenv("LAVAGO_CLIENT_NAME"); v != "" {
		base.ClientName = v
	}
	if v := os.Getenv("LAVAGO_LASTFM_API_KEY"); v != "" {
		base.LastFmAPIKey = v
	}
	if v := os.Getenv("LAVAGO_MAX_PREVIOUS_TRACKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			base.MaxPreviousTracks = n
		}
	}
	if v := os.Getenv("LAVAGO_DATA_DIR"); v != "" {
		base.DataDirectory = v
	}
	return base
}
