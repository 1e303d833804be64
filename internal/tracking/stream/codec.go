package stream

import "encoding/json"

// Codec marshals stream messages as JSON. The service types are plain
// structs, not generated proto messages, so the default proto codec cannot
// serialize them; servers must be built with grpc.ForceServerCodec(Codec{})
// and clients must select the matching codec.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (Codec) Name() string { return "json" }
