// Package wire implements the undocumented wire protocol the Google Chat web
// client speaks: PBLite (protobuf-over-JSON as sparse positional arrays),
// the XSSI-guarded response envelope, and SAPISIDHASH request signing.
package wire

import (
	"encoding/json"
	"fmt"
)

// Value is a single PBLite field value: nil, a JSON scalar (string, float64,
// bool), a nested *Message (for submessages), or a []Value (repeated
// fields). Decoding tolerates either array or object encoding at every
// position, per §4.3.
type Value interface{}

// Message is a decoded PBLite document: a sparse, 1-based array of field
// values plus an optional extension map for sparse high field numbers.
//
// Fields[0] holds field number 1, Fields[1] holds field number 2, and so on.
// A nil entry means the field was absent on the wire.
type Message struct {
	Fields []Value
	// Ext holds fields carried in a trailing extension-map object, keyed by
	// the field number as a string (per §4.3, for sparse high field
	// numbers that would otherwise bloat the positional array).
	Ext map[string]Value
}

// Get returns field number n (1-based), checking Ext if it falls outside
// Fields, or nil if the field is absent.
func (m *Message) Get(n int) Value {
	if m == nil {
		return nil
	}
	if n >= 1 && n <= len(m.Fields) {
		return m.Fields[n-1]
	}
	if m.Ext != nil {
		return m.Ext[fmt.Sprintf("%d", n)]
	}
	return nil
}

// Len reports the highest field number directly addressable via Fields
// (i.e. len(m.Fields)); it does not include fields only present in Ext.
func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Fields)
}

// String returns field n as a string, or "" if absent or not a string.
func (m *Message) String(n int) string {
	s, _ := m.Get(n).(string)
	return s
}

// Sub returns field n as a nested *Message, decoding it from a raw array if
// necessary. Returns nil if the field is absent or not a submessage shape.
func (m *Message) Sub(n int) *Message {
	v := m.Get(n)
	switch t := v.(type) {
	case *Message:
		return t
	case []Value:
		return &Message{Fields: t}
	default:
		return nil
	}
}

// ParseMessage decodes raw JSON bytes representing a single PBLite document
// into a *Message. The top level, and every nested level, may be encoded as
// either a JSON array (the common case) or a JSON object (tolerated per
// §4.3 for interoperability with decoders that emit keyed objects).
func ParseMessage(raw []byte) (*Message, error) {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("wire: parse PBLite message: %w", err)
	}
	return decodeValue(generic).(*Message), nil
}

// decodeValue recursively converts a generically-unmarshalled JSON value
// (map[string]interface{}, []interface{}, or scalar) into wire Values,
// turning every array or object into a *Message so callers can always use
// Get/Sub regardless of which shape the server happened to emit.
func decodeValue(v interface{}) Value {
	switch t := v.(type) {
	case []interface{}:
		fields := make([]Value, len(t))
		for i, el := range t {
			fields[i] = decodeValue(el)
		}
		return &Message{Fields: fields}
	case map[string]interface{}:
		// A trailing extension-map object at the top level is handled by
		// the caller (mergeExtensionMap); a bare object encountered
		// elsewhere is tolerated as a degenerate Message whose fields are
		// keyed only in Ext.
		ext := make(map[string]Value, len(t))
		for k, el := range t {
			ext[k] = decodeValue(el)
		}
		return &Message{Ext: ext}
	default:
		return t
	}
}

// EncodeMessage serialises m back into the sparse positional-array JSON
// shape described in §4.3. Trailing nil fields are retained (not trimmed)
// so that round-tripping preserves field positions; callers that want a
// compact encoding should trim trailing nils themselves before calling.
func EncodeMessage(m *Message) ([]byte, error) {
	return json.Marshal(encodeValue(m))
}

func encodeValue(v Value) interface{} {
	switch t := v.(type) {
	case *Message:
		if t == nil {
			return nil
		}
		if len(t.Fields) == 0 && t.Ext != nil {
			out := make(map[string]interface{}, len(t.Ext))
			for k, el := range t.Ext {
				out[k] = encodeValue(el)
			}
			return out
		}
		arr := make([]interface{}, len(t.Fields))
		for i, el := range t.Fields {
			arr[i] = encodeValue(el)
		}
		if len(t.Ext) > 0 {
			ext := make(map[string]interface{}, len(t.Ext))
			for k, el := range t.Ext {
				ext[k] = encodeValue(el)
			}
			return append(arr, ext)
		}
		return arr
	case []Value:
		arr := make([]interface{}, len(t))
		for i, el := range t {
			arr[i] = encodeValue(el)
		}
		return arr
	default:
		return t
	}
}

// NewMessage builds a *Message directly from a slice of already-decoded
// Values, for callers constructing a request document rather than parsing
// a response.
func NewMessage(fields ...Value) *Message {
	return &Message{Fields: fields}
}
