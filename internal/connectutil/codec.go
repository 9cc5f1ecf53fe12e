package connectutil

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// JSONCodec marshals plain Go request and response structs as JSON, so
// Connect handlers can serve messages that are not generated from
// protobuf. It replaces Connect's protobuf-only "json" codec.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(msg any) ([]byte, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return raw, nil
}

func (JSONCodec) Unmarshal(raw []byte, msg any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
