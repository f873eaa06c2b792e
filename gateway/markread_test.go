package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/gateway"
	"github.com/kdevan/gchat-bridge/wire"
)

type recordingMarkReadRPC struct {
	mu       sync.Mutex
	calls    []string
	payloads []*wire.Message
	err      error
}

func (f *recordingMarkReadRPC) Call(_ context.Context, rpcID string, payload *wire.Message) (*wire.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rpcID)
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	return wire.NewMessage(), f.err
}

func (f *recordingMarkReadRPC) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// groupIDsDispatched renders each dispatched payload's groupID submessage
// (payload field 2, the EncodeMarkReadRequest body) to JSON so tests can
// compare dispatch order without a GroupId decoder.
func (f *recordingMarkReadRPC) groupIDsDispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.payloads))
	for i, p := range f.payloads {
		req, _ := p.Get(2).(*wire.Message)
		b, _ := wire.EncodeMessage(req)
		out[i] = string(b)
	}
	return out
}

func TestMarkReadQueue_EnqueueDedupsByGroupKeepingLatestCount(t *testing.T) {
	fake := &recordingMarkReadRPC{}
	q := gateway.NewMarkReadQueue(fake, time.Millisecond, nil, nil)

	q.Enqueue(domain.SpaceID("s1"), 3)
	q.Enqueue(domain.SpaceID("s1"), 7)
	q.Enqueue(domain.SpaceID("s2"), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go q.Run(ctx)

	deadline := time.After(150 * time.Millisecond)
	for fake.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 dispatches, got %d", fake.callCount())
		case <-time.After(time.Millisecond):
		}
	}
	q.Stop()

	if fake.callCount() != 2 {
		t.Fatalf("expected exactly 2 dispatches after dedup, got %d", fake.callCount())
	}
	for _, rpcID := range fake.calls {
		if rpcID != gateway.RPCMarkRead {
			t.Errorf("dispatched rpcID %q, want %q", rpcID, gateway.RPCMarkRead)
		}
	}
}

// TestMarkReadQueue_DispatchOrderIsUniqueByGroupSuffix exercises §8 scenario
// 5: enqueuing (g1,3),(g2,1),(g1,5),(g3,2),(g1,7) must dispatch in the order
// (g2,1),(g3,2),(g1,7) — g1's re-enqueues push its dispatch slot to the back,
// it does not keep the slot of its first enqueue.
func TestMarkReadQueue_DispatchOrderIsUniqueByGroupSuffix(t *testing.T) {
	fake := &recordingMarkReadRPC{}
	q := gateway.NewMarkReadQueue(fake, time.Millisecond, nil, nil)

	g1, g2, g3 := domain.SpaceID("g1"), domain.SpaceID("g2"), domain.SpaceID("g3")
	q.Enqueue(g1, 3)
	q.Enqueue(g2, 1)
	q.Enqueue(g1, 5)
	q.Enqueue(g3, 2)
	q.Enqueue(g1, 7)

	want := []string{
		string(mustEncodeMarkRead(t, g2)),
		string(mustEncodeMarkRead(t, g3)),
		string(mustEncodeMarkRead(t, g1)),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	go q.Run(ctx)

	deadline := time.After(300 * time.Millisecond)
	for fake.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected 3 dispatches, got %d", fake.callCount())
		case <-time.After(time.Millisecond):
		}
	}
	q.Stop()

	got := fake.groupIDsDispatched()
	if len(got) != len(want) {
		t.Fatalf("dispatch count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dispatch[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func mustEncodeMarkRead(t *testing.T, groupID domain.GroupId) []byte {
	t.Helper()
	b, err := wire.EncodeMessage(domain.EncodeMarkReadRequest(groupID))
	if err != nil {
		t.Fatalf("encode mark-read request: %v", err)
	}
	return b
}

func TestMarkReadQueue_StopIsIdempotent(t *testing.T) {
	fake := &recordingMarkReadRPC{}
	q := gateway.NewMarkReadQueue(fake, time.Millisecond, nil, nil)
	q.Stop()
	q.Stop() // must not panic
}

func TestMarkReadQueue_RunExitsOnContextCancellation(t *testing.T) {
	fake := &recordingMarkReadRPC{}
	q := gateway.NewMarkReadQueue(fake, time.Hour, nil, nil)
	q.Enqueue(domain.SpaceID("s1"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
