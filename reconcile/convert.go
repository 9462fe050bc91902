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

package reconcile

import (
	"fmt"

	"github.com/distlabs/hrkv/hrtree"
	"github.com/distlabs/hrkv/wire"
)

// boundToWire renders an hrtree.Bound using schema's key encoder.
func boundToWire[K any](b hrtree.Bound[K], encodeKey func(K) []byte) wire.Bound {
	switch {
	case b.IsNegInf():
		return wire.Bound{Inf: wire.InfNeg}
	case b.IsPosInf():
		return wire.Bound{Inf: wire.InfPos}
	default:
		return wire.Bound{Inf: wire.InfFinite, Key: encodeKey(b.Key())}
	}
}

func boundFromWire[K any](b wire.Bound, decodeKey func([]byte) (K, error)) (hrtree.Bound[K], error) {
	switch b.Inf {
	case wire.InfNeg:
		return hrtree.NegInf[K](), nil
	case wire.InfPos:
		return hrtree.PosInf[K](), nil
	default:
		k, err := decodeKey(b.Key)
		if err != nil {
			return hrtree.Bound[K]{}, fmt.Errorf("reconcile: decoding bound key: %w", err)
		}
		return hrtree.At(k), nil
	}
}

func rangeToWire[K any](lo, hi hrtree.Bound[K], encodeKey func(K) []byte) wire.Range {
	return wire.Range{Lo: boundToWire(lo, encodeKey), Hi: boundToWire(hi, encodeKey)}
}

func rangeFromWire[K any](r wire.Range, decodeKey func([]byte) (K, error)) (lo, hi hrtree.Bound[K], err error) {
	lo, err = boundFromWire(r.Lo, decodeKey)
	if err != nil {
		return
	}
	hi, err = boundFromWire(r.Hi, decodeKey)
	return
}

func entryToWire[K any, V any](s hrtree.Schema[K, V], e hrtree.Entry[K, V]) wire.Entry {
	var value []byte
	if !e.Tombstone {
		value = s.EncodeValue(e.Value)
	}
	return wire.Entry{
		Key:       s.EncodeKey(e.Key),
		Value:     value,
		Timestamp: wire.Timestamp{Wall: uint64(e.Timestamp.Wall), Seq: e.Timestamp.Seq},
		Tombstone: e.Tombstone,
	}
}

func entryFromWire[K any, V any](s hrtree.Schema[K, V], w wire.Entry) (hrtree.Entry[K, V], error) {
	k, err := s.DecodeKey(w.Key)
	if err != nil {
		return hrtree.Entry[K, V]{}, fmt.Errorf("reconcile: decoding entry key: %w", err)
	}
	var v V
	if !w.Tombstone {
		v, err = s.DecodeValue(w.Value)
		if err != nil {
			return hrtree.Entry[K, V]{}, fmt.Errorf("reconcile: decoding entry value: %w", err)
		}
	}
	return hrtree.Entry[K, V]{
		Key:       k,
		Value:     v,
		Timestamp: hrtree.Timestamp{Wall: int64(w.Timestamp.Wall), Seq: w.Timestamp.Seq},
		Tombstone: w.Tombstone,
	}, nil
}

// splitEntriesForMTU packs entries into the fewest Entries messages
// whose encoded datagram fits mtu, in order, with More set on every
// message but the last (§4.C "end marker").
func splitEntriesForMTU(session uint64, entries []wire.Entry, mtu int) []wire.Entries {
	if len(entries) == 0 {
		return []wire.Entries{{Session: session}}
	}
	var batches []wire.Entries
	cur := wire.Entries{Session: session}
	for _, e := range entries {
		candidate := cur
		candidate.Entries = append(append([]wire.Entry(nil), cur.Entries...), e)
		if _, err := wire.Encode(&candidate, mtu); err != nil && len(cur.Entries) > 0 {
			cur.More = true
			batches = append(batches, cur)
			cur = wire.Entries{Session: session, Entries: []wire.Entry{e}}
			continue
		}
		cur = candidate
	}
	batches = append(batches, cur)
	return batches
}
