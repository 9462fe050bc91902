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

// RangeHash returns the XOR of the hashes of every entry whose key
// falls in [lo, hi). It descends only at the two boundary paths,
// using a child's cached summary directly whenever that child's whole
// key range is covered by [lo, hi) (§4.B).
func (t *Tree[K, V]) RangeHash(lo, hi Bound[K]) Hash {
	h, _ := t.RangeHashAndCount(lo, hi)
	return h
}

// RangeHashAndCount is RangeHash plus the number of entries it covered.
func (t *Tree[K, V]) RangeHashAndCount(lo, hi Bound[K]) (Hash, int) {
	if rangeEmpty(t.schema.Less, lo, hi) {
		return 0, 0
	}
	return t.rangeHash(t.root, lo, hi)
}

func (t *Tree[K, V]) rangeHash(n *node[K, V], lo, hi Bound[K]) (Hash, int) {
	less := t.schema.Less
	if n.leaf {
		var h Hash
		var c int
		for _, e := range n.entries {
			if inRange(less, e.Key, lo, hi) {
				h ^= entryHash(t.schema, e)
				c++
			}
		}
		return h, c
	}

	var h Hash
	var c int
	for i := range n.children {
		cs := n.sums[i]
		if cs.empty() {
			continue
		}
		childLo, childHi := childBounds(n, i)
		switch {
		case rangeContains(less, lo, hi, childLo, childHi):
			h ^= cs.hash
			c += cs.count
		case rangeDisjoint(less, lo, hi, childLo, childHi):
			continue
		default:
			ch, cc := t.rangeHash(n.children[i], lo, hi)
			h ^= ch
			c += cc
		}
	}
	return h, c
}

// SubRange is one piece of a range partitioned by SplitRange.
type SubRange[K any] struct {
	Lo, Hi Bound[K]
	Hash   Hash
	Count  int
}

// SplitRange partitions [lo, hi) into at most fanout contiguous
// sub-ranges of roughly equal entry count, each reported with its own
// cumulated hash. Partitioning follows the tree's own structure: the
// highest level whose children fall within [lo, hi) is reported
// directly from cached summaries; a boundary child that only partially
// overlaps is recursed into down to its leaves, where each entry in
// range becomes a sub-range of its own. Adjacent sub-ranges are then
// merged, smallest combined count first, until at most fanout remain
// (§4.B).
func (t *Tree[K, V]) SplitRange(lo, hi Bound[K], fanout int) []SubRange[K] {
	if fanout < 1 {
		fanout = 1
	}
	if rangeEmpty(t.schema.Less, lo, hi) {
		return nil
	}
	return t.splitRange(t.root, lo, hi, fanout)
}

func (t *Tree[K, V]) splitRange(n *node[K, V], lo, hi Bound[K], fanout int) []SubRange[K] {
	less := t.schema.Less
	if n.leaf {
		// Sub-ranges are contiguous: the first starts at lo, each later
		// one starts at its own key and ends the previous one, and the
		// last ends at hi, so each holds exactly one entry.
		var out []SubRange[K]
		for _, e := range n.entries {
			if !inRange(less, e.Key, lo, hi) {
				continue
			}
			subLo := lo
			if len(out) > 0 {
				subLo = At(e.Key)
				out[len(out)-1].Hi = subLo
			}
			out = append(out, SubRange[K]{Lo: subLo, Hi: hi, Hash: entryHash(t.schema, e), Count: 1})
		}
		return out
	}

	var parts []SubRange[K]
	for i := range n.children {
		cs := n.sums[i]
		if cs.empty() {
			continue
		}
		childLo, childHi := childBounds(n, i)
		if rangeDisjoint(less, lo, hi, childLo, childHi) {
			continue
		}
		effLo, effHi := boundMax(less, lo, childLo), boundMin(less, hi, childHi)
		if rangeContains(less, lo, hi, childLo, childHi) {
			parts = append(parts, SubRange[K]{Lo: effLo, Hi: effHi, Hash: cs.hash, Count: cs.count})
			continue
		}
		// Partial overlap at a boundary: recurse so the caller still
		// gets whole-subtree fingerprints for the covered part.
		sub := t.rangeHashOrRecurse(n.children[i], effLo, effHi, fanout)
		parts = append(parts, sub...)
	}

	if len(parts) <= fanout {
		return coalesce(less, parts, fanout)
	}
	return coalesce(less, parts, fanout)
}

// rangeHashOrRecurse is splitRange's entry point for a partially
// overlapping child: if fanout is 1 or less, it folds the overlap into
// one fingerprint instead of descending further; otherwise it splits
// the child with the same fanout (a leaf child yields one sub-range per
// entry), leaving the caller's coalesce to cap the count.
func (t *Tree[K, V]) rangeHashOrRecurse(n *node[K, V], lo, hi Bound[K], fanout int) []SubRange[K] {
	if fanout <= 1 {
		h, c := t.rangeHash(n, lo, hi)
		return []SubRange[K]{{Lo: lo, Hi: hi, Hash: h, Count: c}}
	}
	return t.splitRange(n, lo, hi, fanout)
}

// coalesce merges adjacent sub-ranges, smallest-count first, until at
// most fanout remain.
func coalesce[K any](less func(a, b K) bool, parts []SubRange[K], fanout int) []SubRange[K] {
	for len(parts) > fanout && len(parts) > 1 {
		// Merge the pair with the smallest combined count, to keep
		// sub-ranges close to equal size.
		best := 0
		bestCount := parts[0].Count + parts[1].Count
		for i := 1; i < len(parts)-1; i++ {
			c := parts[i].Count + parts[i+1].Count
			if c < bestCount {
				best, bestCount = i, c
			}
		}
		merged := SubRange[K]{
			Lo:    parts[best].Lo,
			Hi:    parts[best+1].Hi,
			Hash:  parts[best].Hash ^ parts[best+1].Hash,
			Count: parts[best].Count + parts[best+1].Count,
		}
		parts = append(parts[:best], append([]SubRange[K]{merged}, parts[best+2:]...)...)
	}
	return parts
}
