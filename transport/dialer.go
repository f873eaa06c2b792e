package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

// chromeHelloID is the uTLS ClientHello fingerprint every outbound
// connection presents (§4.4 implies a browser-identical transport, since
// the gateway reproduces the web client's own traffic end to end).
var chromeHelloID = utls.HelloChrome_Auto

// utlsDialTLSContext performs the TLS handshake with uTLS so the
// ClientHello (cipher order, extensions, GREASE) matches a real Chrome
// instead of Go's own TLS stack, which is trivially fingerprintable.
func utlsDialTLSContext(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("transport: split host/port %q: %w", addr, err)
	}
	sni := host
	if cfg != nil && cfg.ServerName != "" {
		sni = cfg.ServerName
	}

	var d net.Dialer
	rawConn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	uConn := utls.UClient(rawConn, &utls.Config{ServerName: sni}, chromeHelloID)
	if err := uConn.HandshakeContext(ctx); err != nil {
		_ = uConn.Close()
		return nil, fmt.Errorf("transport: TLS handshake with %s: %w", addr, err)
	}
	return uConn, nil
}
