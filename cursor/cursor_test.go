package cursor_test

import (
	"context"
	"strconv"
	"testing"

	"github.com/kdevan/gchat-bridge/cursor"
	"github.com/kdevan/gchat-bridge/domain"
	"github.com/kdevan/gchat-bridge/wire"
)

// fakeRPC simulates the list_topics batch endpoint across a fixed sequence
// of pages, keyed by how many times it has been called.
type fakeRPC struct {
	pages [][]fakeTopic
	calls int
}

type fakeTopic struct {
	id       string
	sortTime int64
}

func (f *fakeRPC) Call(_ context.Context, rpcID string, _ *wire.Message) (*wire.Message, error) {
	if rpcID != domain.RPCListTopics {
		return wire.NewMessage(), nil
	}
	i := f.calls
	f.calls++
	if i >= len(f.pages) {
		return wire.NewMessage(), nil
	}
	page := f.pages[i]

	topicFields := make([]wire.Value, len(page))
	for j, topic := range page {
		identity := wire.NewMessage(nil, topic.id)
		topicFields[j] = wire.NewMessage(identity, strconv.FormatInt(topic.sortTime, 10))
	}
	topicsArr := &wire.Message{Fields: topicFields}

	containsFirst := i == len(f.pages)-1
	return wire.NewMessage(nil, topicsArr, "s"+strconv.Itoa(i), "t"+strconv.Itoa(i), containsFirst, false, "anchor"), nil
}

func TestCursorEngineAccumulatesUniqueTopicsAcrossPages(t *testing.T) {
	fake := &fakeRPC{pages: [][]fakeTopic{
		{{id: "T3", sortTime: 300}, {id: "T2", sortTime: 200}},
		{{id: "T1", sortTime: 100}},
	}}
	eng := cursor.New(fake, nil, 10)

	_, topics, err := eng.Run(context.Background(), cursor.Options{GroupID: domain.SpaceID("spcX"), PageSize: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(topics) != 3 {
		t.Fatalf("expected 3 unique topics, got %d: %+v", len(topics), topics)
	}
	seen := map[string]bool{}
	for _, tp := range topics {
		seen[tp.TopicID] = true
	}
	for _, want := range []string{"T1", "T2", "T3"} {
		if !seen[want] {
			t.Fatalf("missing topic %s", want)
		}
	}
}

// anchorFakeRPC is like fakeRPC but only echoes the "anchor" extension field
// on its first page, matching a real server's behavior of omitting the
// anchor once a response carries no more pages.
type anchorFakeRPC struct {
	pages [][]fakeTopic
	calls int
}

func (f *anchorFakeRPC) Call(_ context.Context, rpcID string, _ *wire.Message) (*wire.Message, error) {
	if rpcID != domain.RPCListTopics {
		return wire.NewMessage(), nil
	}
	i := f.calls
	f.calls++
	if i >= len(f.pages) {
		return wire.NewMessage(), nil
	}
	page := f.pages[i]

	topicFields := make([]wire.Value, len(page))
	for j, topic := range page {
		identity := wire.NewMessage(nil, topic.id)
		topicFields[j] = wire.NewMessage(identity, strconv.FormatInt(topic.sortTime, 10))
	}
	topicsArr := &wire.Message{Fields: topicFields}

	containsFirst := i == len(f.pages)-1
	if i == 0 {
		return wire.NewMessage(nil, topicsArr, "s"+strconv.Itoa(i), "t"+strconv.Itoa(i), containsFirst, false, "anchor"), nil
	}
	return wire.NewMessage(nil, topicsArr, "s"+strconv.Itoa(i), "t"+strconv.Itoa(i), containsFirst, false), nil
}

func TestCursorEngineHoldsAnchorStickyWhenLaterPageOmitsIt(t *testing.T) {
	fake := &anchorFakeRPC{pages: [][]fakeTopic{
		{{id: "T3", sortTime: 300}},
		{{id: "T2", sortTime: 200}},
		{{id: "T1", sortTime: 100}},
	}}
	eng := cursor.New(fake, nil, 10)

	pages, _, err := eng.Run(context.Background(), cursor.Options{GroupID: domain.SpaceID("spcX"), PageSize: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	for i, p := range pages {
		if p.NextCursors.AnchorTimestamp == 0 {
			t.Fatalf("page %d: anchor dropped once a later response omitted it, got 0", i)
		}
	}
	want := pages[0].NextCursors.AnchorTimestamp
	for i, p := range pages {
		if p.NextCursors.AnchorTimestamp != want {
			t.Fatalf("page %d: anchor drifted from %d to %d", i, want, p.NextCursors.AnchorTimestamp)
		}
	}
}

func TestCursorEngineStopsAtSinceBoundary(t *testing.T) {
	fake := &fakeRPC{pages: [][]fakeTopic{
		{{id: "T3", sortTime: 300}, {id: "T2", sortTime: 200}},
		{{id: "T1", sortTime: 100}},
	}}
	eng := cursor.New(fake, nil, 10)

	pages, topics, err := eng.Run(context.Background(), cursor.Options{GroupID: domain.SpaceID("spcX"), PageSize: 2, Since: 150})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected pagination to stop after crossing since boundary, got %d pages", len(pages))
	}
	if !pages[len(pages)-1].ReachedSinceBoundary {
		t.Fatal("expected final page to report ReachedSinceBoundary")
	}
	if len(topics) != 3 {
		t.Fatalf("expected 3 accumulated topics, got %d", len(topics))
	}
}

func TestCursorEngineRespectsMaxPages(t *testing.T) {
	fake := &fakeRPC{pages: [][]fakeTopic{
		{{id: "T3", sortTime: 300}},
		{{id: "T2", sortTime: 200}},
		{{id: "T1", sortTime: 100}},
	}}
	eng := cursor.New(fake, nil, 10)

	pages, _, err := eng.Run(context.Background(), cursor.Options{GroupID: domain.SpaceID("spcX"), PageSize: 1, MaxPages: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected exactly MaxPages=2 pages, got %d", len(pages))
	}
}

func TestCursorEngineTerminatesOnContainsFirstTopic(t *testing.T) {
	fake := &fakeRPC{pages: [][]fakeTopic{
		{{id: "T2", sortTime: 200}},
		{{id: "T1", sortTime: 100}},
	}}
	eng := cursor.New(fake, nil, 10)

	pages, topics, err := eng.Run(context.Background(), cursor.Options{GroupID: domain.SpaceID("spcX"), PageSize: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if !pages[1].ContainsFirstTopic {
		t.Fatal("expected last page to report ContainsFirstTopic")
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}
}
