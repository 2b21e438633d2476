package types

import (
	"encoding/json"
	"fmt"

	"github.com/hc-network/gcond/common"
)

// CanonicalJSON serializes v into the canonical textual form used for
// content addressing and the guest boundary: UTF-8 JSON with struct fields
// in declaration order and map keys sorted. The same value always yields
// the same bytes.
func CanonicalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

// FromCanonicalJSON decodes canonical bytes into dst, mapping decode
// failures onto the serialization error kind.
func FromCanonicalJSON(data []byte, dst interface{}) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return nil
}

// AddressOfContent returns the content address of v's canonical form.
func AddressOfContent(v interface{}) (common.Address, error) {
	b, err := CanonicalJSON(v)
	if err != nil {
		return common.NullAddress, err
	}
	return common.AddressOf(b), nil
}
