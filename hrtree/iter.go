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

// Range walks every entry with a key in [lo, hi), in key order,
// calling fn for each. It stops early if fn returns false. Because it
// starts a fresh leaf-chain walk from lo every time, a call with new
// bounds is a valid restart even if the tree was mutated since the
// last call (§4.B "restartable given fresh bounds").
func (t *Tree[K, V]) Range(lo, hi Bound[K], fn func(Entry[K, V]) bool) {
	if rangeEmpty(t.schema.Less, lo, hi) {
		return
	}
	n := t.leafContaining(lo)
	for n != nil {
		for _, e := range n.entries {
			if !keyBeforeBound(t.schema.Less, e.Key, hi) {
				return
			}
			if keyBeforeBound(t.schema.Less, e.Key, lo) {
				continue
			}
			if !fn(e) {
				return
			}
		}
		n = n.next
	}
}

// Iter walks every entry in the tree in key order, tombstones
// included. Host-facing iteration (§6 iter()) should use the
// reconcile package's view instead, which filters tombstones.
func (t *Tree[K, V]) Iter(fn func(Entry[K, V]) bool) {
	lo, hi := Full[K]()
	t.Range(lo, hi, fn)
}

// leafContaining returns the leftmost leaf that could hold a key
// satisfying lo <= key, i.e. the leaf a Range walk starting at lo
// should begin from.
func (t *Tree[K, V]) leafContaining(lo Bound[K]) *node[K, V] {
	n := t.root
	for !n.leaf {
		if lo.IsNegInf() {
			n = n.children[0]
			continue
		}
		n = n.children[childIndex(n, t.schema.Less, lo.Key())]
	}
	return n
}
