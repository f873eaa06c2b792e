package wire

// ClientVersion is the fixed literal every request's header submessage
// carries as its client-version field (§4.3, §6).
const ClientVersion = "2440378181258"

// ClientTypeWeb is the client-type enum value for the web client (§4.3).
const ClientTypeWeb = 2

// RequestHeader builds the leading request-header PBLite field attached to
// every RPC: client-type, client-version, and a feature-capability
// sub-message [null, 1].
func RequestHeader() *Message {
	featureCapability := NewMessage(nil, 1)
	return NewMessage(ClientTypeWeb, ClientVersion, featureCapability)
}
