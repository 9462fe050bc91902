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

package hrtree

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// entryHash is H(serialize(k) || serialize(v) || serialize(t)), the
// non-cryptographic 64-bit mixer every peer must compute identically.
// A tombstone hashes its key and timestamp only, never a stale value.
func entryHash[K any, V any](s Schema[K, V], e Entry[K, V]) Hash {
	d := xxhash.New()
	d.Write(s.EncodeKey(e.Key))
	if !e.Tombstone {
		d.Write(s.EncodeValue(e.Value))
	}
	var tsb [9]byte
	binary.BigEndian.PutUint64(tsb[:8], uint64(e.Timestamp.Wall))
	if e.Tombstone {
		tsb[8] = 1
	}
	d.Write(tsb[:])
	var seq [4]byte
	binary.BigEndian.PutUint32(seq[:], e.Timestamp.Seq)
	d.Write(seq[:])
	return d.Sum64()
}

// entryValueHash is the tiebreaker hash of just the value, used by
// compareEntries when two conflicting writes share a Timestamp.
func entryValueHash[K any, V any](s Schema[K, V], e Entry[K, V]) Hash {
	if e.Tombstone {
		return 0
	}
	return xxhash.Sum64(s.EncodeValue(e.Value))
}
