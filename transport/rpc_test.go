package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kdevan/gchat-bridge/auth"
	"github.com/kdevan/gchat-bridge/wire"
)

func TestCookieHeader_JoinsWithSemicolons(t *testing.T) {
	got := cookieHeader(map[string]string{"SID": "a"})
	if got != "SID=a" {
		t.Errorf("got %q, want SID=a", got)
	}
}

func TestSapisidValue_PrefersSAPISIDOverSecureVariant(t *testing.T) {
	got := sapisidValue(map[string]string{"SAPISID": "x", "__Secure-1PAPISID": "y"})
	if got != "x" {
		t.Errorf("got %q, want x", got)
	}
}

func TestSapisidValue_FallsBackToSecureVariant(t *testing.T) {
	got := sapisidValue(map[string]string{"__Secure-1PAPISID": "y"})
	if got != "y" {
		t.Errorf("got %q, want y", got)
	}
}

func TestSapisidValue_EmptyWhenNeitherPresent(t *testing.T) {
	got := sapisidValue(map[string]string{"SID": "z"})
	if got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status  int
		wantErr bool
	}{
		{http.StatusOK, false},
		{http.StatusUnauthorized, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusNotFound, true},
	}
	for _, c := range cases {
		resp := &http.Response{StatusCode: c.status, Header: http.Header{}}
		err := classifyStatus(resp, nil)
		if (err != nil) != c.wantErr {
			t.Errorf("status %d: err = %v, wantErr %v", c.status, err, c.wantErr)
		}
	}
}

func TestClassifyStatus_RateLimitedCarriesRetryAfter(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"5"}},
	}
	err := classifyStatus(resp, nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestBuildRequest_JSONEndpointUsesRPCIDAsPathSegment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	tr := &Transport{client: srv.Client()}
	state := auth.AuthState{Cookies: map[string]string{"SID": "abc"}, XSRFToken: "tok", CachedAt: time.Now()}
	req, err := tr.buildRequest(context.Background(), "some.rpc", wire.NewMessage("a"), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.URL.Query().Get("alt") != "protojson" {
		t.Errorf("expected alt=protojson query param")
	}
	if req.Header.Get("x-framework-xsrf-token") != "tok" {
		t.Errorf("expected xsrf header to be set")
	}
}
