// Package transport builds the browser-fingerprinted HTTP client the RPC
// Transport and WebChannel share, and implements the RPC Transport itself
// (§4.4): the two-endpoint request builder, SAPISIDHASH signing, and the
// 401/429/5xx retry interceptor.
package transport

import (
	"net/http"
	"time"

	"github.com/kdevan/gchat-bridge/config"
)

// NewClient builds the single shared *http.Client every outbound request in
// the gateway process uses. Unlike the teacher's per-session client fleet,
// one client suffices here: this gateway represents exactly one
// authenticated identity (§3 "AuthState is exclusively owned by the Auth
// Manager"), not a farm of independent sessions, so there is no contention
// to shard across separate transports.
//
// The client carries no cookie jar: cookies are attached per request from
// the Auth Manager's AuthState snapshot (§5 "readers take a snapshot before
// each RPC"), not accumulated implicitly by the HTTP stack.
func NewClient(cfg *config.Config) *http.Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Transport: newChromeRoundTripper(),
		Timeout:   timeout,
	}
}
