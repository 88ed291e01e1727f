package adapter

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is the gRPC content-subtype this codec registers under
// (lowercased automatically by encoding.RegisterCodec).
const jsonCodecName = "sbjson"

// jsonCodec lets the gRPC-backed adapter exchange plain JSON frames over
// a gRPC stream instead of protobuf — there is no .proto service
// description for the session broker's wire frame, and generating one
// is out of scope for an adapter whose job is translation, not schema
// ownership. gRPC's codec registry exists precisely for this: register
// once, then select it per-call with grpc.CallContentSubtype.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
