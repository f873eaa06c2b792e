package gateway_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kdevan/gchat-bridge/config"
	"github.com/kdevan/gchat-bridge/cursor"
	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/gateway"
	"github.com/kdevan/gchat-bridge/metrics"
	"github.com/kdevan/gchat-bridge/threadexpander"
	"github.com/kdevan/gchat-bridge/wire"
)

// fakeRPC answers whoami and notifications RPCs with fixed documents; any
// other rpcID gets an empty message.
type fakeRPC struct{}

func (fakeRPC) Call(_ interface{ Done() <-chan struct{} }, rpcID string, _ *wire.Message) (*wire.Message, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *gateway.Server {
	t.Helper()
	rpc := &fixedRPC{}
	cursorEng := cursor.New(rpc, nil, 10)
	expander := threadexpander.New(rpc, 1, nil)
	markRead := gateway.NewMarkReadQueue(rpc, time.Millisecond, nil, nil)
	authMgr := newTestAuthManager(t)
	proxy := gateway.NewMediaProxy(http.DefaultClient, authMgr, cfgDomains)
	cfg := config.DefaultConfig()
	m := metrics.NewMetrics()

	return gateway.NewServer(rpc, cursorEng, expander, nil, markRead, proxy, cfg, m, nil)
}

var cfgDomains = []string{"google.com"}

func TestHandleWhoAmI(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(serverHandler(srv))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/whoami")
	if err != nil {
		t.Fatalf("GET /api/whoami: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got domain.UserRef
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "u1" || got.DisplayName != "Ada" {
		t.Errorf("got %+v", got)
	}
}

func TestHandleNotifications_FiltersByGroupKind(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(serverHandler(srv))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/spaces")
	if err != nil {
		t.Fatalf("GET /api/spaces: %v", err)
	}
	defer resp.Body.Close()

	var items []domain.WorldItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, it := range items {
		if it.Type != domain.GroupSpace {
			t.Errorf("got a non-space item in /api/spaces: %+v", it)
		}
	}
	if len(items) == 0 {
		t.Fatal("expected at least one space item")
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(serverHandler(srv))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["channel"] != "unknown" {
		t.Errorf("channel field = %v, want unknown for a nil channel", body["channel"])
	}
}

func TestHandleMarkRead_Accepted(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(serverHandler(srv))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/mark-read/abc", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/mark-read/abc: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
}

func TestHandlePresence_RequiresUserIds(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(serverHandler(srv))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/presence")
	if err != nil {
		t.Fatalf("GET /api/presence: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 when userIds is missing", resp.StatusCode)
	}
}
