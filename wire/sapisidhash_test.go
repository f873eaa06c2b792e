package wire_test

import (
	"testing"

	"github.com/kdevan/gchat-bridge/wire"
)

// TestSAPISIDHash_KnownVector exercises end-to-end scenario 2 from the test
// suite: a fixed (unixSeconds, sapisid, origin) triple must produce an
// exact, deterministic header value.
func TestSAPISIDHash_KnownVector(t *testing.T) {
	const (
		unixSeconds = 1700000000
		sapisid     = "abc123"
		origin      = "https://chat.google.com"
		// sha1("1700000000 abc123 https://chat.google.com")
		wantHex = "20c69be3f8768c569f9796a79787b96ba1ce8f88"
		want    = "SAPISIDHASH 1700000000_" + wantHex
	)
	got := wire.SAPISIDHash(unixSeconds, sapisid, origin)
	if got != want {
		t.Errorf("SAPISIDHash: got %q, want %q", got, want)
	}
}

func TestSAPISIDHash_Deterministic(t *testing.T) {
	a := wire.SAPISIDHash(1700000000, "abc123", "https://chat.google.com")
	b := wire.SAPISIDHash(1700000000, "abc123", "https://chat.google.com")
	if a != b {
		t.Errorf("SAPISIDHash should be deterministic: %q != %q", a, b)
	}
}

func TestSAPISIDHash_DiffersByOrigin(t *testing.T) {
	a := wire.SAPISIDHash(1700000000, "abc123", "https://chat.google.com")
	b := wire.SAPISIDHash(1700000000, "abc123", "https://mail.google.com")
	if a == b {
		t.Error("SAPISIDHash should differ when origin differs")
	}
}
