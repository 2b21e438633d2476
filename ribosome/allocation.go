// Package ribosome loads application bytecode modules, exposes the host
// API to guest code and marshals typed values across the trust boundary
// via the guest's linear memory.
package ribosome

import (
	"errors"
	"fmt"

	"github.com/hc-network/gcond/params"
)

// ErrorCode enumerates guest-visible failure codes. A code travels as an
// encoded allocation with zero length and the code in the offset half.
type ErrorCode uint16

const (
	CodeSuccess ErrorCode = iota
	CodeUnspecified
	CodeArgumentDeserializationFailed
	CodeOutOfMemory
	CodeReceivedWrongActionResult
	CodeCallbackFailed
	CodeRecursiveCallForbidden
	CodeResponseSerializationFailed
	CodeNotAnAllocation
	CodeZeroSizedAllocation
	CodeUnknownEntryType
)

func (c ErrorCode) String() string {
	switch c {
	case CodeSuccess:
		return "Success"
	case CodeUnspecified:
		return "Unspecified"
	case CodeArgumentDeserializationFailed:
		return "ArgumentDeserializationFailed"
	case CodeOutOfMemory:
		return "OutOfMemory"
	case CodeReceivedWrongActionResult:
		return "ReceivedWrongActionResult"
	case CodeCallbackFailed:
		return "CallbackFailed"
	case CodeRecursiveCallForbidden:
		return "RecursiveCallForbidden"
	case CodeResponseSerializationFailed:
		return "ResponseSerializationFailed"
	case CodeNotAnAllocation:
		return "NotAnAllocation"
	case CodeZeroSizedAllocation:
		return "ZeroSizedAllocation"
	case CodeUnknownEntryType:
		return "UnknownEntryType"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint16(c))
	}
}

// Err renders the code as a guest failure error, nil for success.
func (c ErrorCode) Err() error {
	if c == CodeSuccess {
		return nil
	}
	return fmt.Errorf("guest returned %s", c)
}

var (
	ErrOutOfMemory     = errors.New("ribosome: allocation exceeds page")
	ErrNotAnAllocation = errors.New("ribosome: encoded value is not an allocation")
)

// Allocation is one region of guest linear memory. Length zero never
// describes data; zero-length encodings are reserved for status codes.
type Allocation struct {
	Offset uint16
	Length uint16
}

// EncodedAllocation packs (offset, length) into the high/low halves of one
// machine word crossing the guest boundary.
type EncodedAllocation uint32

// Encode packs the allocation.
func (a Allocation) Encode() EncodedAllocation {
	return EncodedAllocation(uint32(a.Offset)<<16 | uint32(a.Length))
}

// EncodeCode packs a status code as a zero-length encoding.
func EncodeCode(c ErrorCode) EncodedAllocation {
	return EncodedAllocation(uint32(c) << 16)
}

// Decode splits an encoded value into a data allocation. Zero-length
// encodings are status codes, not allocations, and the page bound applies.
func (e EncodedAllocation) Decode() (Allocation, error) {
	offset := uint16(e >> 16)
	length := uint16(e)
	if length == 0 {
		return Allocation{}, ErrNotAnAllocation
	}
	if uint32(offset)+uint32(length) > params.WasmPageSize {
		return Allocation{}, ErrOutOfMemory
	}
	return Allocation{Offset: offset, Length: length}, nil
}

// Code returns the status code of a zero-length encoding; data-bearing
// encodings report CodeSuccess with ok=false.
func (e EncodedAllocation) Code() (ErrorCode, bool) {
	if uint16(e) != 0 {
		return CodeSuccess, false
	}
	return ErrorCode(e >> 16), true
}

// WasmStack is the monotonically-advancing allocator over one guest page.
// The host writes arguments at the current top; the guest writes returns
// at the advanced top.
type WasmStack struct {
	top uint16
}

// Top returns the current stack top.
func (s *WasmStack) Top() uint16 { return s.top }

// Allocate reserves length bytes at the current top.
func (s *WasmStack) Allocate(length int) (Allocation, error) {
	if length == 0 {
		return Allocation{}, ErrNotAnAllocation
	}
	if length > params.WasmPageSize || uint32(s.top)+uint32(length) > params.WasmPageSize {
		return Allocation{}, ErrOutOfMemory
	}
	alloc := Allocation{Offset: s.top, Length: uint16(length)}
	s.top += uint16(length)
	return alloc, nil
}

// Deallocate rolls the top back to alloc's offset if alloc is the topmost
// allocation. Out-of-order frees are ignored, preserving stack discipline.
func (s *WasmStack) Deallocate(alloc Allocation) {
	if alloc.Offset+alloc.Length == s.top {
		s.top = alloc.Offset
	}
}
