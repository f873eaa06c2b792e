package wire_test

import (
	"testing"

	"github.com/kdevan/gchat-bridge/wire"
)

func TestStripXSSI(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"guard with newline", ")]}'\n[1,2,3]", "[1,2,3]"},
		{"guard with space", ")]}' [1,2,3]", "[1,2,3]"},
		{"no guard", "[1,2,3]", "[1,2,3]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := string(wire.StripXSSI([]byte(tc.in)))
			if got != tc.want {
				t.Errorf("StripXSSI(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	body := []byte(")]}'\n[\"a\",\"b\",null]")
	msg, err := wire.ParseJSONResponse(body)
	if err != nil {
		t.Fatalf("ParseJSONResponse: %v", err)
	}
	if msg.String(1) != "a" || msg.String(2) != "b" {
		t.Errorf("unexpected fields: %+v", msg.Fields)
	}
}

func TestParseBatchResponse(t *testing.T) {
	// One batch line carrying a single RPC envelope whose payload is itself
	// a JSON-encoded PBLite document, per §4.3.
	body := []byte(`)]}'
[[["dfe.t.lt","[null,\"topic_A\"]",null,"generic"]]]`)

	envelopes, err := wire.ParseBatchResponse(body)
	if err != nil {
		t.Fatalf("ParseBatchResponse: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("got %d envelopes, want 1", len(envelopes))
	}
	if envelopes[0].RPCID != "dfe.t.lt" {
		t.Errorf("RPCID: got %q, want dfe.t.lt", envelopes[0].RPCID)
	}
	if envelopes[0].Payload.String(2) != "topic_A" {
		t.Errorf("payload field 2: got %q, want topic_A", envelopes[0].Payload.String(2))
	}
}

func TestBuildBatchRequest_RoundTripsThroughParseBatchResponse(t *testing.T) {
	payload := wire.NewMessage(nil, "topic_A")
	reqBody, err := wire.BuildBatchRequest("dfe.t.lt", payload)
	if err != nil {
		t.Fatalf("BuildBatchRequest: %v", err)
	}

	// The request body is the bare f.req envelope (no XSSI guard); wrap it
	// as ParseBatchResponse expects before round-tripping.
	envelopes, err := wire.ParseBatchResponse(reqBody)
	if err != nil {
		t.Fatalf("ParseBatchResponse(BuildBatchRequest(...)): %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("got %d envelopes, want 1", len(envelopes))
	}
	if envelopes[0].RPCID != "dfe.t.lt" {
		t.Errorf("RPCID: got %q, want dfe.t.lt", envelopes[0].RPCID)
	}
	if envelopes[0].Payload.String(2) != "topic_A" {
		t.Errorf("payload field 2: got %q, want topic_A", envelopes[0].Payload.String(2))
	}
}
