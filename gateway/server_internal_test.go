package gateway

import (
	"testing"

	"github.com/kdevan/gchat-bridge/domain"
)

func TestParseProxyURL_RejectsNonHTTPScheme(t *testing.T) {
	if _, err := parseProxyURL("ftp://example.com/a"); err == nil {
		t.Fatal("expected rejection of non-http(s) scheme")
	}
}

func TestParseProxyURL_RejectsMissingHost(t *testing.T) {
	if _, err := parseProxyURL("https:///path"); err == nil {
		t.Fatal("expected rejection of url with no host")
	}
}

func TestParseProxyURL_AcceptsHTTPS(t *testing.T) {
	u, err := parseProxyURL("https://lh3.googleusercontent.com/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Hostname() != "lh3.googleusercontent.com" {
		t.Errorf("hostname = %q", u.Hostname())
	}
}

func TestCursorParamRoundTrip(t *testing.T) {
	c := domain.Cursor{SortTimeCursor: "s1", TimestampCursor: "t1", AnchorTimestamp: 12345}
	encoded := encodeCursorParam(c)
	decoded, err := decodeCursorParam(encoded)
	if err != nil {
		t.Fatalf("decodeCursorParam: %v", err)
	}
	if decoded != c {
		t.Errorf("got %+v, want %+v", decoded, c)
	}
}

func TestDecodeCursorParam_RejectsMalformed(t *testing.T) {
	if _, err := decodeCursorParam("not-enough-parts"); err == nil {
		t.Fatal("expected error for malformed cursor")
	}
	if _, err := decodeCursorParam("a:b:not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric anchor")
	}
}

func TestGroupIDFromPath_SpaceAndDM(t *testing.T) {
	cases := []struct {
		kind domain.GroupKind
		raw  string
		want domain.GroupId
	}{
		{domain.GroupSpace, "abc", domain.SpaceID("abc")},
		{domain.GroupSpace, "space/abc", domain.SpaceID("abc")},
		{domain.GroupDM, "xyz", domain.DMID("xyz")},
		{domain.GroupDM, "dm/xyz", domain.DMID("xyz")},
	}
	for _, c := range cases {
		got := groupIDFromPath(c.kind, c.raw)
		if got != c.want {
			t.Errorf("groupIDFromPath(%v, %q) = %+v, want %+v", c.kind, c.raw, got, c.want)
		}
	}
}
