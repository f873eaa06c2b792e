package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Chrome 120 HTTP/2 SETTINGS values captured from real traffic (§4.4's
// requirement that the transport speak indistinguishably from the browser
// whose traffic it reproduces).
const (
	chromeH2HeaderTableSize   uint32 = 65536
	chromeH2MaxHeaderListSize uint32 = 262144
)

// chromeRoundTripper wraps an http2.Transport and applies the static
// Chrome header set (casing + order) to every outgoing request before
// handing it to HTTP/2, merging in any headers the caller already set so
// per-request values (Cookie, Authorization) win.
type chromeRoundTripper struct {
	h2 *http2.Transport
}

func newChromeRoundTripper() *chromeRoundTripper {
	return &chromeRoundTripper{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
				return utlsDialTLSContext(ctx, network, addr, cfg)
			},
			MaxDecoderHeaderTableSize: chromeH2HeaderTableSize,
			MaxEncoderHeaderTableSize: chromeH2HeaderTableSize,
			MaxHeaderListSize:         chromeH2MaxHeaderListSize,
			IdleConnTimeout:           90 * time.Second,
		},
	}
}

func (t *chromeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	caller := r.Header

	defaults := chromeOrderedHeaders()
	defaults.ApplyToRequest(r)
	for key, vals := range caller {
		for _, v := range vals {
			r.Header[key] = append(r.Header[key], v)
		}
	}

	return t.h2.RoundTrip(r)
}
