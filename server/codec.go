package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CodecName is the content subtype of the CBOR codec, as in
// "application/cbor" and "application/grpc+cbor".
const CodecName = "cbor"

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Codec encodes service messages as canonical CBOR. It satisfies both
// connect.Codec and grpc's encoding.Codec.
type Codec struct{}

// Name returns "cbor".
func (Codec) Name() string { return CodecName }

// Marshal encodes v.
func (Codec) Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// Unmarshal decodes data into v.
func (Codec) Unmarshal(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
