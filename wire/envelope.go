package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
)

// xssiGuard is the four-byte prefix every response begins with, followed by
// whitespace, to prevent the response being executed as a <script> include
// on an attacker-controlled page (cross-site script inclusion).
const xssiGuard = ")]}'"

// StripXSSI removes the leading XSSI guard and any whitespace that follows
// it. It is a no-op if the guard is not present, so callers can call it
// defensively on any response body.
func StripXSSI(body []byte) []byte {
	trimmed := bytes.TrimPrefix(body, []byte(xssiGuard))
	return bytes.TrimLeft(trimmed, " \t\r\n")
}

// BatchEnvelope is one decoded element of the batch-endpoint's
// newline-delimited array-of-arrays response: [rpcId, payload, null, "generic"].
type BatchEnvelope struct {
	RPCID   string
	Payload *Message
}

// ParseBatchResponse parses the JSON-protobuf batch endpoint's response
// body (after XSSI stripping) into its constituent RPC envelopes.
//
// The outer shape is a newline-delimited sequence of JSON arrays; each
// element of a line wraps a chunk of the form [rpcId, payloadAsJSONString,
// null, "generic"] behind one or more levels of singleton-array nesting
// (observed depth varies; nothing in §4.3 pins it down). payloadAsJSONString
// is itself a JSON-encoded PBLite document and is parsed a second time into
// a *Message.
func ParseBatchResponse(body []byte) ([]BatchEnvelope, error) {
	stripped := StripXSSI(body)

	var out []BatchEnvelope
	scanner := bufio.NewScanner(bytes.NewReader(stripped))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var elements []json.RawMessage
		if err := json.Unmarshal(line, &elements); err != nil {
			return nil, fmt.Errorf("wire: parse batch line: %w", err)
		}
		for _, elem := range elements {
			env, err := decodeBatchChunk(elem)
			if err != nil {
				return nil, err
			}
			if env != nil {
				out = append(out, *env)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("wire: scan batch response: %w", err)
	}
	return out, nil
}

// decodeBatchChunk decodes one line element down to its
// [rpcId, payloadAsJsonString, null, tag] chunk, unwrapping however many
// levels of singleton-array nesting the upstream wrapped it in. Elements
// that never bottom out at an rpcId/payload pair (keep-alive no-ops, for
// instance) are skipped by returning a nil envelope.
func decodeBatchChunk(raw json.RawMessage) (*BatchEnvelope, error) {
	chunk, ok := unwrapChunk(raw)
	if !ok || len(chunk) < 2 {
		return nil, nil
	}

	var rpcID string
	if err := json.Unmarshal(chunk[0], &rpcID); err != nil || rpcID == "" {
		return nil, nil //nolint:nilerr // not every chunk is an rpc envelope
	}

	var payloadStr string
	if err := json.Unmarshal(chunk[1], &payloadStr); err != nil || payloadStr == "" {
		return &BatchEnvelope{RPCID: rpcID}, nil
	}

	payload, err := ParseMessage([]byte(payloadStr))
	if err != nil {
		return nil, fmt.Errorf("wire: parse batch payload for rpc %q: %w", rpcID, err)
	}
	return &BatchEnvelope{RPCID: rpcID, Payload: payload}, nil
}

// unwrapChunk peels off singleton-array wrappers around raw until it finds
// an array shaped like a chunk (len >= 2, first element a non-empty JSON
// string) or runs out of arrays to unwrap.
func unwrapChunk(raw json.RawMessage) ([]json.RawMessage, bool) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, false
	}
	for len(arr) == 1 {
		var inner []json.RawMessage
		if err := json.Unmarshal(arr[0], &inner); err != nil {
			break
		}
		arr = inner
	}
	return arr, true
}

// ParseJSONResponse parses the JSON-protobuf endpoint's response body (after
// XSSI stripping) as a single PBLite document.
func ParseJSONResponse(body []byte) (*Message, error) {
	stripped := StripXSSI(body)
	return ParseMessage(stripped)
}

// BuildBatchRequest encodes payload as the "f.req" envelope the batch
// endpoint expects (§4.3, §4.4): a JSON array of one array of
// [rpcId, payloadAsJsonString, null, "generic"], mirroring the shape
// decodeBatchChunk reads back out of a response.
func BuildBatchRequest(rpcID string, payload *Message) ([]byte, error) {
	payloadJSON, err := EncodeMessage(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encode batch payload for rpc %q: %w", rpcID, err)
	}
	chunk := []interface{}{rpcID, string(payloadJSON), nil, "generic"}
	envelope := [][]interface{}{chunk}
	out, err := json.Marshal([][][]interface{}{envelope})
	if err != nil {
		return nil, fmt.Errorf("wire: encode f.req envelope for rpc %q: %w", rpcID, err)
	}
	return out, nil
}
