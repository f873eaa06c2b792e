// Package config provides a single immutable configuration record for
// gchat-bridge. It is built once at startup and passed by pointer to every
// component constructor, which keeps configuration out of package-level
// mutable state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds every tunable parameter for the gateway process.
type Config struct {
	// CacheDir is where cached_auth.json and favorites.json live. Resolution
	// order when unset: explicit flag -> GCHAT_CACHE_DIR -> ~/.gchat.
	CacheDir string `json:"cache_dir"`

	// Browser and Profile select which on-disk cookie store the Cookie Vault
	// reads from (e.g. "chrome", "brave", "edge", "chromium", "arc").
	Browser string `json:"browser"`
	Profile string `json:"profile"`

	// RequestTimeout bounds a single RPC Transport HTTP round trip.
	RequestTimeout time.Duration `json:"request_timeout"`

	// BootstrapTimeout bounds the Auth Manager's bootstrap-page fetch.
	BootstrapTimeout time.Duration `json:"bootstrap_timeout"`

	// XSRFTokenTTL is how long a scraped xsrf token is considered valid.
	XSRFTokenTTL time.Duration `json:"xsrf_token_ttl"`

	// ThreadExpanderParallelism is the P of §4.7 (default 5).
	ThreadExpanderParallelism int `json:"thread_expander_parallelism"`

	// CursorMaxPages bounds a single Cursor Engine pagination.
	CursorMaxPages int `json:"cursor_max_pages"`

	// CursorPageSize is the default page size passed to list_topics.
	CursorPageSize int `json:"cursor_page_size"`

	// WebChannelFrameTimeout is the inactivity window treated as a dropped
	// connection (§5: 60 s).
	WebChannelFrameTimeout time.Duration `json:"webchannel_frame_timeout"`

	// WebChannelPingInterval is how often sendPing() fires to keep the
	// session marked present.
	WebChannelPingInterval time.Duration `json:"webchannel_ping_interval"`

	// WebChannelPresenceTimeout (T in §4.8) is the timeout attached to the
	// server-side "presence shared" flag refreshed alongside each ping.
	WebChannelPresenceTimeout time.Duration `json:"webchannel_presence_timeout"`

	// GatewayListenAddr is the address the REST+WS server binds to.
	GatewayListenAddr string `json:"gateway_listen_addr"`

	// MarkReadSpacing is the minimum interval between dispatched
	// mark-as-read RPCs (§4.10: 100 ms).
	MarkReadSpacing time.Duration `json:"mark_read_spacing"`

	// MarkReadQueueSize bounds the mark-as-read FIFO queue.
	MarkReadQueueSize int `json:"mark_read_queue_size"`

	// PermittedProxyDomains lists the hostname suffixes the authenticated
	// media proxy will fetch (§6).
	PermittedProxyDomains []string `json:"permitted_proxy_domains"`
}

// LoadConfig reads a JSON file at filename and deserialises it into a Config.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return cfg, nil
}

// DefaultConfig returns a *Config pre-filled with the defaults named
// throughout the spec (§5, §4.7, §4.10).
func DefaultConfig() *Config {
	return &Config{
		CacheDir:                  defaultCacheDir(),
		Browser:                   "chrome",
		Profile:                   "Default",
		RequestTimeout:            30 * time.Second,
		BootstrapTimeout:          30 * time.Second,
		XSRFTokenTTL:              24 * time.Hour,
		ThreadExpanderParallelism: 5,
		CursorMaxPages:            1000,
		CursorPageSize:            100,
		WebChannelFrameTimeout:    60 * time.Second,
		WebChannelPingInterval:    20 * time.Second,
		WebChannelPresenceTimeout: 120 * time.Second,
		GatewayListenAddr:         ":8080",
		MarkReadSpacing:           100 * time.Millisecond,
		MarkReadQueueSize:         256,
		PermittedProxyDomains:     []string{"google.com", "googleusercontent.com", "ggpht.com"},
	}
}

// defaultCacheDir implements the §6 resolution order's final fallback;
// callers needing the full explicit-flag -> env -> default chain call
// ResolveCacheDir instead.
func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gchat"
	}
	return filepath.Join(home, ".gchat")
}

// ResolveCacheDir implements the §6 cache-directory resolution order:
// explicit flag, then GCHAT_CACHE_DIR, then ~/.gchat.
func ResolveCacheDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("GCHAT_CACHE_DIR"); env != "" {
		return env
	}
	return defaultCacheDir()
}
