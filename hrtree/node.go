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

// summary is the cached {hash, count, min, max} an internalNode keeps
// for each of its children, so that a fully-covered child never has to
// be opened to answer a range_hash query (invariant 2, §3).
type summary[K any] struct {
	hash  Hash
	count int
	min   K
	max   K
}

func (s summary[K]) empty() bool { return s.count == 0 }

// node is a single B+tree node. Exactly one of the leaf-only or
// internal-only field groups is populated, selected by leaf. A single
// struct (rather than two types behind an interface) is used because
// Go generics do not support generic methods beyond the receiver's own
// type parameters, and a shared struct avoids an extra layer of
// interface dispatch on every descent.
type node[K any, V any] struct {
	leaf bool

	// Leaf fields.
	entries []Entry[K, V]
	next    *node[K, V] // right sibling, nil at the tail leaf

	// Internal fields. len(keys) == len(children)-1 == len(sums)-1.
	// children[i] holds every key k with keys[i-1] <= k < keys[i]
	// (keys[-1] is -∞, keys[len(keys)] is +∞).
	keys     []K
	children []*node[K, V]
	sums     []summary[K]
}

func newLeaf[K any, V any]() *node[K, V] {
	return &node[K, V]{leaf: true}
}

func newInternal[K any, V any]() *node[K, V] {
	return &node[K, V]{leaf: false}
}

// childIndex returns the index of the child responsible for key k.
func childIndex[K any, V any](n *node[K, V], less func(a, b K) bool, k K) int {
	lo, hi := 0, len(n.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if less(k, n.keys[mid]) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// childBounds returns the key range covered by children[i], derived
// from the parent's routing keys alone (no subtree walk required).
func childBounds[K any, V any](n *node[K, V], i int) (Bound[K], Bound[K]) {
	lo := NegInf[K]()
	if i > 0 {
		lo = At(n.keys[i-1])
	}
	hi := PosInf[K]()
	if i < len(n.keys) {
		hi = At(n.keys[i])
	}
	return lo, hi
}

// leafSearch returns the index of k in n.entries, and whether it was
// found. When not found, the index is where k would be inserted.
func leafSearch[K any, V any](n *node[K, V], less func(a, b K) bool, k K) (int, bool) {
	lo, hi := 0, len(n.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		ek := n.entries[mid].Key
		switch {
		case less(ek, k):
			lo = mid + 1
		case less(k, ek):
			hi = mid
		default:
			return mid, true
		}
	}
	return lo, false
}

// summarizeLeaf computes a leaf's {hash, count, min, max} on demand
// from its stored entries, per §4.A ("leaves compute their own summary
// on demand").
func summarizeLeaf[K any, V any](s Schema[K, V], n *node[K, V]) summary[K] {
	var sm summary[K]
	sm.count = len(n.entries)
	for _, e := range n.entries {
		sm.hash ^= entryHash(s, e)
	}
	if sm.count > 0 {
		sm.min = n.entries[0].Key
		sm.max = n.entries[sm.count-1].Key
	}
	return sm
}

// summarizeInternal recomputes an internal node's child summaries into
// an aggregate summary by XOR/addition over the already-cached child
// summaries only, never by walking subtrees (§4.B "Hash recomputation").
func summarizeInternal[K any, V any](n *node[K, V]) summary[K] {
	var sm summary[K]
	first := true
	for _, cs := range n.sums {
		if cs.empty() {
			continue
		}
		sm.hash ^= cs.hash
		sm.count += cs.count
		if first {
			sm.min = cs.min
			first = false
		}
		sm.max = cs.max
	}
	return sm
}

// refreshChildSummary recomputes n.sums[i] from children[i] itself
// (one level, not a subtree walk) and returns the node's own aggregate
// summary so the caller can propagate it one more level up.
func refreshChildSummary[K any, V any](s Schema[K, V], n *node[K, V], i int) summary[K] {
	c := n.children[i]
	var cs summary[K]
	if c.leaf {
		cs = summarizeLeaf(s, c)
	} else {
		cs = summarizeInternal(c)
	}
	n.sums[i] = cs
	return cs
}
