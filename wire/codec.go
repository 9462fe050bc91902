// This is free and unencumbered software released into the public domain.
//
// Anyone is free to copy, modify, publish, use, compile, sell, or
// distribute this software, either in source code form or as a compiled
// binary, for any purpose, commercial or non-commercial, and by any
// means.
//
// In jurisdictions that recognize copyright laws, the author or authors
// of this software dedicate any and all copyright interest in the
// software to the public domain. We make this dedication for the benefit
// of the public at large and to the detriment of our heirs and
// successors. We intend this dedication to be an overt act of
// relinquishment in perpetuity of all present and future rights to this
// software under copyright law.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF
// MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
// IN NO EVENT SHALL THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR
// OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE,
// ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.
//
// For more information, please refer to <https://unlicense.org>

package wire

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

const (
	magic         byte = 0xb7
	version       byte = 1
	headerLen          = 3 // magic, version, type
)

// ErrDecode is returned for any malformed datagram: bad magic, bad
// version, an unrecognized type tag, or an RLP body that doesn't match
// the shape the type tag promised. Callers should drop the datagram
// and count it, per §7.
var ErrDecode = errors.New("wire: malformed datagram")

// ErrOversize is returned by Encode when the encoded datagram would
// exceed mtu. Oversize Entries batches must be split by the caller
// before Encode is reached (§7 "Oversize").
var ErrOversize = errors.New("wire: message exceeds mtu")

// rlpBody maps each Type to the payload whose RLP encoding follows
// the three-byte header.
func rlpBody(t Type) (interface{}, bool) {
	switch t {
	case TypeHashRange:
		return new(HashRange), true
	case TypeHashRangeFanout:
		return new(HashRangeFanout), true
	case TypeEntryRequest:
		return new(EntryRequest), true
	case TypeEntries:
		return new(Entries), true
	case TypeEagerUpdate:
		return new(EagerUpdate), true
	default:
		return nil, false
	}
}

func typeOf(payload interface{}) (Type, bool) {
	switch payload.(type) {
	case *HashRange, HashRange:
		return TypeHashRange, true
	case *HashRangeFanout, HashRangeFanout:
		return TypeHashRangeFanout, true
	case *EntryRequest, EntryRequest:
		return TypeEntryRequest, true
	case *Entries, Entries:
		return TypeEntries, true
	case *EagerUpdate, EagerUpdate:
		return TypeEagerUpdate, true
	default:
		return 0, false
	}
}

// Encode renders payload (one of HashRange, HashRangeFanout,
// EntryRequest, Entries, EagerUpdate, by value or pointer) as a single
// datagram bounded by mtu. mtu <= 0 disables the size check.
func Encode(payload interface{}, mtu int) ([]byte, error) {
	typ, ok := typeOf(payload)
	if !ok {
		return nil, fmt.Errorf("wire: unknown message type %T", payload)
	}
	body, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", typ, err)
	}
	out := make([]byte, 0, headerLen+len(body))
	out = append(out, magic, version, byte(typ))
	out = append(out, body...)
	if mtu > 0 && len(out) > mtu {
		return nil, ErrOversize
	}
	return out, nil
}

// Decode parses a datagram produced by Encode. The returned value is
// always a pointer to the concrete message type named by the returned
// Type (e.g. *HashRange for TypeHashRange).
func Decode(datagram []byte) (Type, interface{}, error) {
	if len(datagram) < headerLen {
		return 0, nil, ErrDecode
	}
	if datagram[0] != magic || datagram[1] != version {
		return 0, nil, ErrDecode
	}
	typ := Type(datagram[2])
	body, ok := rlpBody(typ)
	if !ok {
		return 0, nil, ErrDecode
	}
	if err := rlp.DecodeBytes(datagram[headerLen:], body); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return typ, body, nil
}
