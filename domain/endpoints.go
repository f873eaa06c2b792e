package domain

// Endpoint names which of the RPC Transport's two upstream endpoints an
// rpcId is sent to (§4.4, §9: "two distinct request encodings ... do not
// guess which to use — mirror the source's per-method choice").
type Endpoint int

const (
	// EndpointJSONProtobuf is the "POST /api/{method}?alt=protojson" path:
	// the simpler, directly-typed request/response shape. Unmapped rpcIds
	// default here (§9).
	EndpointJSONProtobuf Endpoint = iota
	// EndpointBatch is the "POST /_/DynamiteWebUi/data/batchexecute" path,
	// used for rpcIds the source only ever drives through that endpoint.
	EndpointBatch
)

// endpointTable records the per-rpcId endpoint choice observed in captured
// traffic. RPCListTopics and RPCListMessages are batch-endpoint calls; every
// other rpcId defaults to EndpointJSONProtobuf until traffic shows
// otherwise.
var endpointTable = map[string]Endpoint{
	RPCListTopics:   EndpointBatch,
	RPCListMessages: EndpointBatch,
}

// EndpointFor returns the endpoint rpcID should be sent to.
func EndpointFor(rpcID string) Endpoint {
	if ep, ok := endpointTable[rpcID]; ok {
		return ep
	}
	return EndpointJSONProtobuf
}
