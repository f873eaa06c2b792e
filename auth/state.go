// Package auth implements the Auth Manager (§4.2): a state machine that
// derives and caches the cookie set plus the XSRF token the RPC Transport
// and WebChannel need, scraping a bootstrap page to refresh the token and
// self-healing when it goes stale.
package auth

import "time"

// AuthState is the exclusively-owned credential snapshot described in §3.
// Other components receive a read-only copy via Manager.Snapshot.
type AuthState struct {
	Cookies   map[string]string `json:"cookies"`
	XSRFToken string            `json:"xsrf_token"`
	CachedAt  time.Time         `json:"cached_at"`
}

// defaultXSRFTokenTTL is the default validity window for a scraped XSRF
// token (§3: "valid for 24h from cachedAt"); Manager.ttl overrides this from
// config.Config.XSRFTokenTTL.
const defaultXSRFTokenTTL = 24 * time.Hour

// clone returns a deep-enough copy of s for safe hand-off to a caller (the
// Cookies map is copied so callers can't mutate the Manager's internal
// state).
func (s AuthState) clone() AuthState {
	c := AuthState{XSRFToken: s.XSRFToken, CachedAt: s.CachedAt}
	c.Cookies = make(map[string]string, len(s.Cookies))
	for k, v := range s.Cookies {
		c.Cookies[k] = v
	}
	return c
}
