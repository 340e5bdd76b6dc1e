package service

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// WithJSONCodec is the codec option both ends of the engine API use.
func WithJSONCodec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}

// jsonCodec lets connect carry plain Go structs instead of generated proto
// messages; the outer bot/API layer speaks JSON.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(message any) ([]byte, error) {
	return json.Marshal(message)
}

func (jsonCodec) Unmarshal(data []byte, message any) error {
	return json.Unmarshal(data, message)
}
