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

// Package wire defines the five datagram kinds the reconciliation
// protocol exchanges and their canonical binary encoding. The package
// is deliberately blind to the tree's generic key/value types: keys,
// values and timestamps all travel as pre-serialized bytes, so wire
// stays reusable across any hrtree.Schema instantiation.
package wire

// Type identifies a datagram's payload shape.
type Type byte

const (
	TypeHashRange Type = iota + 1
	TypeHashRangeFanout
	TypeEntryRequest
	TypeEntries
	TypeEagerUpdate
)

func (t Type) String() string {
	switch t {
	case TypeHashRange:
		return "HashRange"
	case TypeHashRangeFanout:
		return "HashRangeFanout"
	case TypeEntryRequest:
		return "EntryRequest"
	case TypeEntries:
		return "Entries"
	case TypeEagerUpdate:
		return "EagerUpdate"
	default:
		return "Unknown"
	}
}

// Inf tags which infinity, if any, a Bound represents. RLP only
// encodes unsigned integer kinds, so the tag is unsigned rather than
// the signed -1/0/+1 a Go-only representation would use.
const (
	InfFinite uint8 = 0
	InfNeg    uint8 = 1
	InfPos    uint8 = 2
)

// Bound is one edge of a half-open wire range, mirroring
// hrtree.Bound but over an opaque encoded key.
type Bound struct {
	Inf uint8
	Key []byte
}

// Range is a half-open key range [Lo, Hi) as it travels on the wire.
type Range struct {
	Lo Bound
	Hi Bound
}

// Timestamp is the wire encoding of hrtree.Timestamp. Wall is unsigned
// because RLP has no signed integer kind; clock.Generator never
// produces a negative wall component.
type Timestamp struct {
	Wall uint64
	Seq  uint32
}

// Entry is the wire encoding of one hrtree.Entry.
type Entry struct {
	Key       []byte
	Value     []byte
	Timestamp Timestamp
	Tombstone bool
}

// HashRange announces the sender's cumulated hash and entry count over
// Range. A responder whose own fingerprint matches needs to send
// nothing back; that silence is itself the termination signal (§4.D).
type HashRange struct {
	Session uint64
	Range   Range
	Hash    uint64
	Count   uint64
}

// SubRange is one piece of a HashRangeFanout partition.
type SubRange struct {
	Range Range
	Hash  uint64
	Count uint64
}

// HashRangeFanout answers a mismatched HashRange by partitioning
// Parent into Subs, so the initiator can prune everything that still
// matches and recurse only into what doesn't.
type HashRangeFanout struct {
	Session uint64
	Parent  Range
	Subs    []SubRange
}

// EntryRequest asks the peer to send the entries it holds in Range.
type EntryRequest struct {
	Session uint64
	Range   Range
}

// Entries carries a batch of entries, possibly one of several
// datagrams covering a single logical response; More is false on the
// last datagram of the batch (§4.C "end marker").
type Entries struct {
	Session uint64
	Entries []Entry
	More    bool
}

// EagerUpdate is the unsolicited single-entry propagation sent on
// every local write, to mask reconciliation latency in the common
// no-loss case (§4.E).
type EagerUpdate struct {
	Entry Entry
}
