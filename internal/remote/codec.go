package remote

import "fmt"

// Codec encodes the membership messages in protobuf wire format. It is
// named "proto" so peers see the standard application/grpc+proto content
// type; it is installed per connection, never registered globally.
type Codec struct{}

func (Codec) Name() string { return "proto" }

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("remote: cannot marshal %T", v)
	}
	return m.marshal(), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("remote: cannot unmarshal into %T", v)
	}
	return m.unmarshal(data)
}
