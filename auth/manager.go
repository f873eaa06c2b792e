package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kdevan/gchat-bridge/cookievault"
	"github.com/kdevan/gchat-bridge/logger"
	"github.com/kdevan/gchat-bridge/xerrors"
)

// Scope names accepted by Manager.Invalidate (§4.2).
const (
	ScopeXSRF    = "xsrf"
	ScopeCookies = "cookies"
	ScopeAll     = "all"
)

const authStateFileName = "cached_auth.json"

// Manager drives the Empty -> CookiesOnly -> Authenticated -> Stale ->
// Authenticated state machine of §4.2. The state is a single AuthState
// guarded by one mutex: the Auth Manager is single-threaded with respect to
// its own cache (§5), though any number of reader goroutines may call
// Authenticate concurrently.
type Manager struct {
	vault    *cookievault.Vault
	client   *http.Client
	log      *logger.Logger
	cacheDir string
	browser  string
	profile  string
	ttl      time.Duration

	mu    sync.Mutex
	state AuthState

	stopCh chan struct{}
	once   sync.Once
}

// NewManager constructs a Manager. client is used only for the bootstrap
// page fetch; the RPC Transport and WebChannel build their own clients.
func NewManager(vault *cookievault.Vault, client *http.Client, cacheDir, browser, profile string, ttl time.Duration, log *logger.Logger) *Manager {
	if ttl <= 0 {
		ttl = defaultXSRFTokenTTL
	}
	m := &Manager{
		vault:    vault,
		client:   client,
		log:      log,
		cacheDir: cacheDir,
		browser:  browser,
		profile:  profile,
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
	if cached, err := m.load(); err == nil {
		m.state = cached
	}
	return m
}

// Authenticate implements §4.2: if forceRefresh or the cached xsrf token has
// aged past its TTL, cookies are re-extracted and the token re-scraped;
// otherwise the cached AuthState is returned with no network I/O (§8
// idempotence law).
func (m *Manager) Authenticate(ctx context.Context, forceRefresh bool) (AuthState, error) {
	m.mu.Lock()
	cached := m.state.clone()
	needsRefresh := forceRefresh || cached.XSRFToken == "" || time.Since(cached.CachedAt) >= m.ttl
	m.mu.Unlock()

	if !needsRefresh {
		return cached, nil
	}

	cookies, err := m.extractCookies()
	if err != nil {
		return AuthState{}, err
	}

	token, err := scrapeXSRFToken(ctx, m.client, cookies)
	if err != nil {
		if xe, ok := xerrors.As(err); ok && xe.Kind == xerrors.NotLoggedIn {
			// §7: try once more after invalidating cookies, then surface.
			m.Invalidate(ScopeCookies)
			cookies, err = m.extractCookies()
			if err != nil {
				return AuthState{}, err
			}
			token, err = scrapeXSRFToken(ctx, m.client, cookies)
			if err != nil {
				return AuthState{}, err
			}
		} else {
			return AuthState{}, err
		}
	}

	newState := AuthState{Cookies: cookies, XSRFToken: token, CachedAt: time.Now()}

	m.mu.Lock()
	m.state = newState
	m.mu.Unlock()

	if err := m.save(newState); err != nil {
		m.log.Errorf("auth: persist cached auth state: %v", err)
	}
	return newState.clone(), nil
}

// extractCookies fetches the hard-required cookies plus whichever
// SAPISID-family cookie is present; exactly one missing SAPISID variant is
// not itself a failure (§6 "plus at least one of").
func (m *Manager) extractCookies() (map[string]string, error) {
	required, err := m.vault.Extract(m.browser, m.profile, cookievault.RequiredCookieNames)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(required)+1)
	for name, c := range required {
		out[name] = c.Value
	}

	foundSAPISID := false
	for _, name := range cookievault.SAPISIDCookieNames {
		if c, err := m.vault.Extract(m.browser, m.profile, []string{name}); err == nil {
			out[name] = c[name].Value
			foundSAPISID = true
		}
	}
	if !foundSAPISID {
		return nil, xerrors.New(xerrors.MissingRequiredCookie, "auth", "none of %v present", cookievault.SAPISIDCookieNames)
	}
	return out, nil
}

// Invalidate clears the cached state for scope ∈ {xsrf, cookies, all}
// (§4.2).
func (m *Manager) Invalidate(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch scope {
	case ScopeXSRF:
		m.state.XSRFToken = ""
		m.state.CachedAt = time.Time{}
	case ScopeCookies:
		m.state.Cookies = nil
	case ScopeAll:
		m.state = AuthState{}
	}
}

// Snapshot returns the current cached AuthState without triggering a
// refresh, for callers (RPC Transport, WebChannel) that want a read-only
// view before each request (§5).
func (m *Manager) Snapshot() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// WatchLoop runs authenticate(true) on every tick until ctx is cancelled or
// Stop is called, catching and logging errors so one bad tick doesn't kill
// the loop (§4.2 watchLoop; grounded on token.TokenRefreshManager's
// StartAutoRefresh ticker/stopCh shape).
func (m *Manager) WatchLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Invalidate(ScopeAll)
			if _, err := m.Authenticate(ctx, true); err != nil {
				m.log.Errorf("auth: background refresh failed: %v", err)
			}
		}
	}
}

// Stop terminates any running WatchLoop. Idempotent.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.stopCh) })
}

func (m *Manager) statePath() string {
	return filepath.Join(m.cacheDir, authStateFileName)
}

// save atomically persists state as JSON (temp file + rename, §4.2).
func (m *Manager) save(state AuthState) error {
	if err := os.MkdirAll(m.cacheDir, 0o700); err != nil {
		return fmt.Errorf("auth: create cache dir %q: %w", m.cacheDir, err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshal auth state: %w", err)
	}
	tmp, err := os.CreateTemp(m.cacheDir, "cached_auth-*.json.tmp")
	if err != nil {
		return fmt.Errorf("auth: create temp auth state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("auth: write temp auth state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("auth: close temp auth state file: %w", err)
	}
	if err := os.Rename(tmpName, m.statePath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("auth: rename temp auth state file: %w", err)
	}
	return nil
}

func (m *Manager) load() (AuthState, error) {
	data, err := os.ReadFile(m.statePath()) // #nosec G304 -- path is built from the configured cache dir
	if err != nil {
		return AuthState{}, err
	}
	var state AuthState
	if err := json.Unmarshal(data, &state); err != nil {
		return AuthState{}, fmt.Errorf("auth: unmarshal cached auth state: %w", err)
	}
	return state, nil
}
