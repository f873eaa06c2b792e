package gateway

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/kdevan/gchat-bridge/auth"
)

// MediaProxy fetches upstream media URLs with the session's cookies attached,
// rejecting any host that doesn't end in one of a fixed set of permitted
// domain suffixes (§4.10 "Authenticated proxy", §6). Grounded on the
// teacher's ProxyManager: a mutex-guarded slice with a read accessor, here
// repurposed from round-robin egress selection to an allowlist membership
// check.
type MediaProxy struct {
	client *http.Client
	auth   *auth.Manager

	mu      sync.RWMutex
	domains []string
}

// NewMediaProxy builds a MediaProxy permitting the given hostname suffixes.
func NewMediaProxy(client *http.Client, authMgr *auth.Manager, permittedDomains []string) *MediaProxy {
	domains := make([]string, len(permittedDomains))
	copy(domains, permittedDomains)
	return &MediaProxy{client: client, auth: authMgr, domains: domains}
}

// Allowed reports whether host (or a subdomain of it) ends in one of the
// proxy's permitted suffixes.
func (p *MediaProxy) Allowed(host string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	host = strings.ToLower(host)
	for _, suffix := range p.domains {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// errDisallowedHost is returned by Fetch when the target host is not in the
// permitted set.
type errDisallowedHost struct{ host string }

func (e *errDisallowedHost) Error() string {
	return fmt.Sprintf("gateway: proxy target host %q is not permitted", e.host)
}

// Fetch retrieves target with the current session's cookies attached. The
// caller is responsible for closing the returned response body.
func (p *MediaProxy) Fetch(target *url.URL) (*http.Response, error) {
	if !p.Allowed(target.Hostname()) {
		return nil, &errDisallowedHost{host: target.Hostname()}
	}

	req, err := http.NewRequest(http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: build proxy request: %w", err)
	}

	state := p.auth.Snapshot()
	for name, value := range state.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch proxy target: %w", err)
	}
	return resp, nil
}

// copyBody streams resp's body to w, discarding on write failure (the
// connection is already gone by then, nothing more to do).
func copyBody(w io.Writer, resp *http.Response) {
	_, _ = io.Copy(w, resp.Body)
}

// parseProxyURL validates that raw is an absolute http(s) URL before it's
// handed to MediaProxy.Fetch.
func parseProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid proxy url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway: proxy url must be http(s), got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("gateway: proxy url has no host")
	}
	return u, nil
}
