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

// Package hrtree implements the Hash-Range Tree: an ordered key-value
// B+tree whose internal nodes cache the XOR-cumulated hash of every
// entry in their subtree, so that the cumulated hash of any half-open
// key range can be computed in O(log n) instead of by full enumeration.
package hrtree

import "fmt"

// DefaultOrder is the branching factor used when a Tree is constructed
// without an explicit WithOrder option. 16-64 is the documented safe
// band; 32 balances node-internal scan cost against tree height for
// typical key sizes.
const DefaultOrder = 32

// Hash is the fixed-width cumulated hash type. XOR is its combining
// operation: associative, commutative, self-inverse, identity zero.
type Hash = uint64

// Timestamp totally orders writes for last-writer-wins resolution.
// Wall is nanoseconds; in production it is Unix time as seen by the
// writer's local clock (see clock.Generator). Seq is the writer's
// per-process random salt: it is the same for every timestamp one
// process produces and breaks ties between writes from different
// processes that share a Wall. Ordering within one process comes from
// Wall alone, which a clock.Generator never repeats.
// Only a clock.Generator should construct a fresh Timestamp; peers
// otherwise only ever copy one they received.
type Timestamp struct {
	Wall int64
	Seq  uint32
}

// Compare returns -1, 0 or 1 as t is less than, equal to, or greater
// than o.
func (t Timestamp) Compare(o Timestamp) int {
	switch {
	case t.Wall < o.Wall:
		return -1
	case t.Wall > o.Wall:
		return 1
	case t.Seq < o.Seq:
		return -1
	case t.Seq > o.Seq:
		return 1
	default:
		return 0
	}
}

// Less reports whether t strictly precedes o.
func (t Timestamp) Less(o Timestamp) bool { return t.Compare(o) < 0 }

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%d", t.Wall, t.Seq)
}

// Entry is the (key, value, timestamp) triple stored at a leaf.
// Tombstone marks a deletion that is still being retained for the
// configured grace interval (see the reconcile package); its Value is
// meaningless and never hashed.
type Entry[K any, V any] struct {
	Key       K
	Value     V
	Timestamp Timestamp
	Tombstone bool
}

// Schema supplies everything the tree needs to order, serialize and
// hash a concrete (K, V) instantiation. It plays the role that trait
// bounds (Ord, Serialize) play in the source specification; Go has no
// first-class way to attach methods to type parameters, so the tree
// takes them as plain functions instead, the same shape the rest of
// the ecosystem's generic containers (e.g. ordered trees keyed by a
// Less func rather than an Ordered constraint) use.
type Schema[K any, V any] struct {
	// Less reports whether a sorts strictly before b.
	Less func(a, b K) bool
	// EncodeKey/EncodeValue produce the stable byte encoding used both
	// for hashing and for the wire codec.
	EncodeKey   func(K) []byte
	EncodeValue func(V) []byte
	// DecodeKey/DecodeValue invert the above; only needed by callers
	// that reconstruct entries from the wire (the reconcile package).
	DecodeKey   func([]byte) (K, error)
	DecodeValue func([]byte) (V, error)
}

func (s Schema[K, V]) validate() {
	if s.Less == nil || s.EncodeKey == nil || s.EncodeValue == nil {
		panic("hrtree: Schema.Less, EncodeKey and EncodeValue are required")
	}
}

// compareEntries breaks timestamp ties deterministically using a hash
// of the value, so that two peers applying the same conflicting pair
// of writes in opposite order converge on the same winner (§4.D).
func compareEntries[K any, V any](s Schema[K, V], newer, older Entry[K, V]) int {
	if c := newer.Timestamp.Compare(older.Timestamp); c != 0 {
		return c
	}
	nh := entryValueHash(s, newer)
	oh := entryValueHash(s, older)
	switch {
	case nh < oh:
		return -1
	case nh > oh:
		return 1
	default:
		return 0
	}
}
