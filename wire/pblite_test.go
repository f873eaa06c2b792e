package wire_test

import (
	"testing"

	"github.com/kdevan/gchat-bridge/wire"
)

func TestParseMessage_SparseArray(t *testing.T) {
	raw := []byte(`[null,"topic_A",[["spcX"]]]`)
	msg, err := wire.ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.Get(1) != nil {
		t.Errorf("field 1 should be absent, got %v", msg.Get(1))
	}
	if got := msg.String(2); got != "topic_A" {
		t.Errorf("field 2: got %q, want topic_A", got)
	}
	group := msg.Sub(3)
	if group == nil {
		t.Fatal("field 3 should decode as a submessage")
	}
	spaceID := group.Sub(1)
	if spaceID == nil || spaceID.String(1) != "spcX" {
		t.Errorf("group oneof field 1 (spaceId): got %+v, want spcX", spaceID)
	}
}

func TestEncodeMessage_RoundTrip(t *testing.T) {
	original := wire.NewMessage(nil, "topic_A", wire.NewMessage("spcX"))
	encoded, err := wire.EncodeMessage(original)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	decoded, err := wire.ParseMessage(encoded)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if decoded.Get(1) != nil {
		t.Errorf("field 1 should round-trip as absent")
	}
	if got := decoded.String(2); got != "topic_A" {
		t.Errorf("field 2: got %q, want topic_A", got)
	}
	if got := decoded.Sub(3).String(1); got != "spcX" {
		t.Errorf("nested field: got %q, want spcX", got)
	}
}

func TestMessage_Get_OutOfRangeIsNil(t *testing.T) {
	msg := wire.NewMessage("only")
	if msg.Get(99) != nil {
		t.Error("out-of-range field access should return nil, not panic")
	}
}

func TestMessage_ExtensionMap(t *testing.T) {
	raw := []byte(`["a","b",{"42":"ext-value"}]`)
	msg, err := wire.ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	// The trailing object becomes field 3's value as a degenerate Message
	// whose own Ext carries "42" -> "ext-value"; exercised via Sub+Get.
	ext := msg.Sub(3)
	if ext == nil {
		t.Fatal("trailing object should decode to a submessage")
	}
	if got := ext.Get(42); got != "ext-value" {
		t.Errorf("ext field 42: got %v, want ext-value", got)
	}
}

func TestRequestHeader(t *testing.T) {
	h := wire.RequestHeader()
	if h.Get(1) != wire.ClientTypeWeb {
		t.Errorf("client-type: got %v, want %d", h.Get(1), wire.ClientTypeWeb)
	}
	if h.String(2) != wire.ClientVersion {
		t.Errorf("client-version: got %q, want %q", h.String(2), wire.ClientVersion)
	}
	cap := h.Sub(3)
	if cap == nil || cap.Get(2) != 1 {
		t.Errorf("feature-capability submessage malformed: %+v", cap)
	}
}
