package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BioHazard786/Pairlink/internal/coordinator"
	"github.com/BioHazard786/Pairlink/internal/negotiation"
	"github.com/BioHazard786/Pairlink/internal/netutil"
)

// Default configuration values
const (
	DefaultAddr      = ":8080"
	DefaultServerURL = "ws://localhost:8080/ws"
	DefaultRoom      = "demo"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
	DefaultName      = "pairlink"
)

// ErrRelayWithoutTURN is returned when relay-only transport is requested
// without a TURN server to relay through.
var ErrRelayWithoutTURN = errors.New("relay-only transport requires a TURN server")

// shouldForceRelay is replaced in tests.
var shouldForceRelay = netutil.ShouldForceRelay

// ServerOptions for loading server config with CLI flag overrides
type ServerOptions struct {
	Addr    string
	Origins string
}

// ServerConfig holds coordinator configuration
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	MaxMessageSize int64
}

// LoadServer reads server configuration with the following priority:
// 1. CLI flags (passed via ServerOptions) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	addr := opts.Addr
	if addr == "" {
		addr = os.Getenv("ADDR")
	}
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
	}
	if addr == "" {
		addr = DefaultAddr
	}

	origins := opts.Origins
	if origins == "" {
		origins = os.Getenv("ALLOWED_ORIGINS")
	}

	size := int64(coordinator.DefaultMaxMessageSize)
	if v := os.Getenv("MAX_MESSAGE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_MESSAGE_SIZE %q", v)
		}
		size = n
	}

	return &ServerConfig{
		Addr:           addr,
		AllowedOrigins: splitList(origins),
		MaxMessageSize: size,
	}, nil
}

// CoordinatorOptions converts the config for coordinator.NewServer.
func (c *ServerConfig) CoordinatorOptions() coordinator.ServerOptions {
	return coordinator.ServerOptions{
		Addr:           c.Addr,
		AllowedOrigins: c.AllowedOrigins,
		MaxMessageSize: c.MaxMessageSize,
	}
}

// ParticipantOptions for loading participant config with CLI flag overrides
type ParticipantOptions struct {
	ServerURL  string
	Room       string
	Name       string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// ParticipantConfig holds participant configuration
type ParticipantConfig struct {
	// ServerURL is the coordinator WebSocket endpoint
	ServerURL string

	Room string
	Name string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	RelayOnly bool

	// AutoRelay is set when RelayOnly was chosen by network detection
	// rather than requested.
	AutoRelay bool
}

// LoadParticipant reads participant configuration: CLI flag > env > default.
func LoadParticipant(opts ParticipantOptions) (*ParticipantConfig, error) {
	cfg := &ParticipantConfig{
		ServerURL:  pick(opts.ServerURL, "SERVER_URL", DefaultServerURL),
		Room:       pick(opts.Room, "ROOM", DefaultRoom),
		Name:       pick(opts.Name, "DISPLAY_NAME", defaultName()),
		STUNServer: pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer: turnHost(pick(opts.TURNServer, "TURN_SERVER", "")),
		TURNUser:   pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:   pick(opts.TURNPass, "TURN_PASSWORD", ""),
		RelayOnly:  opts.ForceRelay || truthy(os.Getenv("FORCE_RELAY")),
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: want ws:// or wss://", cfg.ServerURL)
	}

	if cfg.RelayOnly && cfg.TURNServer == "" {
		return nil, ErrRelayWithoutTURN
	}
	if !cfg.RelayOnly && cfg.TURNServer != "" && shouldForceRelay() {
		cfg.RelayOnly = true
		cfg.AutoRelay = true
	}

	return cfg, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *ParticipantConfig) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *ParticipantConfig) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// Policy returns the ICE policy every session of this participant uses.
func (c *ParticipantConfig) Policy() negotiation.Policy {
	var servers []negotiation.ICEServer
	if stun := c.GetSTUNServers(); stun != nil {
		servers = append(servers, negotiation.ICEServer{URLs: stun})
	}
	if turn := c.GetTURNServers(); turn != nil {
		servers = append(servers, negotiation.ICEServer{
			URLs:       turn,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return negotiation.Policy{ICEServers: servers, RelayOnly: c.RelayOnly}
}

// StatsURL returns the coordinator's /stats endpoint for a ws:// or wss://
// server URL.
func StatsURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid server URL %q: unsupported scheme", serverURL)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws") + "/stats"
	u.RawQuery = ""
	return u.String(), nil
}

func pick(flag, env, fallback string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return fallback
}

func defaultName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return DefaultName
}

// turnHost strips a turn: or turns: scheme so the host can be expanded
// into per-transport URLs.
func turnHost(s string) string {
	s = strings.TrimPrefix(s, "turns:")
	s = strings.TrimPrefix(s, "turn:")
	return strings.TrimSuffix(s, "/")
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
