package threadexpander_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/threadexpander"
	"github.com/kdevan/gchat-bridge/wire"
)

type fakeRPC struct {
	mu       sync.Mutex
	calls    int32
	failFor  map[string]bool
	repliesN map[string]int
}

func (f *fakeRPC) Call(_ context.Context, rpcID string, payload *wire.Message) (*wire.Message, error) {
	atomic.AddInt32(&f.calls, 1)
	if rpcID != domain.RPCListMessages {
		return wire.NewMessage(), nil
	}
	// payload is [header, [groupSub, identity]]; identity.Get(2) is the topicID.
	req := payload.Sub(2)
	identity := req.Sub(2)
	topicID := identity.String(2)

	f.mu.Lock()
	fail := f.failFor[topicID]
	n := f.repliesN[topicID]
	f.mu.Unlock()
	if fail {
		return nil, errors.New("simulated failure")
	}

	msgs := make([]wire.Value, n)
	for i := 0; i < n; i++ {
		msgIdentity := wire.NewMessage(nil, topicID)
		msgs[i] = wire.NewMessage(msgIdentity, nil, nil, nil, nil, nil, nil, nil, nil, "reply text")
	}
	msgsArr := &wire.Message{Fields: msgs}
	return wire.NewMessage(nil, msgsArr), nil
}

func TestExpandFillsRepliesForFlaggedTopics(t *testing.T) {
	fake := &fakeRPC{repliesN: map[string]int{"T1": 3}}
	exp := threadexpander.New(fake, 2, nil)

	topics := []domain.Topic{
		{TopicID: "T1", HasMoreReplies: true, Replies: []domain.Message{{ID: "truncated"}}},
		{TopicID: "T2", HasMoreReplies: false, Replies: []domain.Message{{ID: "keep-as-is"}}},
	}

	out := exp.Expand(context.Background(), topics)

	if len(out) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(out))
	}
	if out[0].TopicID != "T1" || len(out[0].Replies) != 3 {
		t.Fatalf("expected T1 expanded to 3 replies, got %+v", out[0])
	}
	if out[0].HasMoreReplies {
		t.Fatal("expected HasMoreReplies cleared after expansion")
	}
	if out[1].TopicID != "T2" || len(out[1].Replies) != 1 || out[1].Replies[0].ID != "keep-as-is" {
		t.Fatalf("expected T2 untouched, got %+v", out[1])
	}
}

func TestExpandPreservesOrderAndTopicOnFailure(t *testing.T) {
	fake := &fakeRPC{failFor: map[string]bool{"T1": true}, repliesN: map[string]int{"T2": 2}}
	exp := threadexpander.New(fake, 3, nil)

	topics := []domain.Topic{
		{TopicID: "T1", HasMoreReplies: true, Replies: []domain.Message{{ID: "truncated-t1"}}},
		{TopicID: "T2", HasMoreReplies: true, Replies: []domain.Message{{ID: "truncated-t2"}}},
	}

	out := exp.Expand(context.Background(), topics)

	if out[0].TopicID != "T1" {
		t.Fatalf("expected order preserved, got %+v", out)
	}
	// T1's expansion failed: truncated replies kept, never fatal.
	if len(out[0].Replies) != 1 || out[0].Replies[0].ID != "truncated-t1" {
		t.Fatalf("expected T1 to keep truncated replies after failed expansion, got %+v", out[0])
	}
	if len(out[1].Replies) != 2 {
		t.Fatalf("expected T2 expanded, got %+v", out[1])
	}
}

func TestExpandNoTopicsNeedExpansion(t *testing.T) {
	fake := &fakeRPC{}
	exp := threadexpander.New(fake, 1, nil)
	topics := []domain.Topic{{TopicID: "T1", HasMoreReplies: false}}

	out := exp.Expand(context.Background(), topics)
	if len(out) != 1 || out[0].TopicID != "T1" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if atomic.LoadInt32(&fake.calls) != 0 {
		t.Fatalf("expected no RPCs issued, got %d", fake.calls)
	}
}
