package wire

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// codecName replaces the protobuf JSON codec of ConnectRPC. Messages are
// plain Go structs, so they are encoded with encoding/json.
const codecName = "json"

// Codec is a connect.Codec for the plain struct messages of this package.
type Codec struct{}

var _ connect.Codec = Codec{}

// Name implements connect.Codec.
func (Codec) Name() string { return codecName }

// Marshal implements connect.Codec.
func (Codec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return data, nil
}

// Unmarshal implements connect.Codec. An empty body decodes to the zero
// message.
func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}

// codecOption registers Codec ahead of caller options.
func codecOption() connect.Option { return connect.WithCodec(Codec{}) }
