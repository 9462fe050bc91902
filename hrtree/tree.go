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

// InsertionObserver is called inline, on whatever goroutine drives the
// tree, after every mutation that actually changes stored state (a
// fresh key, a winning LWW replacement, or a removal). It must not
// block and must not retain k/v/ts beyond the call (§9: no back
// reference into the tree is handed out).
type InsertionObserver[K any, V any] func(k K, v V, ts Timestamp)

// Tree is a Hash-Range Tree: a B+tree ordered by Schema.Less whose
// internal nodes cache a {hash, count, min, max} summary per child.
// A Tree has a single owner; it is not safe for concurrent use.
type Tree[K any, V any] struct {
	schema   Schema[K, V]
	order    int
	root     *node[K, V]
	size     int
	observer InsertionObserver[K, V]
}

// Option configures a Tree at construction time.
type Option[K any, V any] func(*Tree[K, V])

// WithOrder overrides DefaultOrder. order must be at least 4 so that
// borrow/merge on deletion always has room to work with.
func WithOrder[K any, V any](order int) Option[K, V] {
	return func(t *Tree[K, V]) {
		if order < 4 {
			panic("hrtree: order must be at least 4")
		}
		t.order = order
	}
}

// WithObserver registers the post-mutation hook at construction time.
// Equivalent to calling OnInsertion immediately after New.
func WithObserver[K any, V any](obs InsertionObserver[K, V]) Option[K, V] {
	return func(t *Tree[K, V]) { t.observer = obs }
}

// New creates an empty Tree for the given schema.
func New[K any, V any](schema Schema[K, V], opts ...Option[K, V]) *Tree[K, V] {
	schema.validate()
	t := &Tree[K, V]{
		schema: schema,
		order:  DefaultOrder,
		root:   newLeaf[K, V](),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnInsertion registers the post-mutation observer, replacing any
// previously registered one.
func (t *Tree[K, V]) OnInsertion(obs InsertionObserver[K, V]) { t.observer = obs }

// Len returns the number of entries of any kind, including retained
// tombstones; callers that care about the host-visible size should use the
// reconcile package's Len, which excludes tombstones.
func (t *Tree[K, V]) Len() int { return t.size }

// IsEmpty reports whether the tree holds no entries.
func (t *Tree[K, V]) IsEmpty() bool { return t.size == 0 }

// Get returns the value and timestamp stored for k. A tombstoned key
// reports as absent, matching the host-visible map semantics of §6.
func (t *Tree[K, V]) Get(k K) (V, Timestamp, bool) {
	n := t.root
	for !n.leaf {
		n = n.children[childIndex(n, t.schema.Less, k)]
	}
	idx, found := leafSearch(n, t.schema.Less, k)
	if !found || n.entries[idx].Tombstone {
		var zero V
		return zero, Timestamp{}, false
	}
	e := n.entries[idx]
	return e.Value, e.Timestamp, true
}

// GetEntry returns the raw stored entry for k, including tombstones.
// It is used internally by the reconcile package, which must be able
// to see tombstones in order to resolve conflicting deletes.
func (t *Tree[K, V]) GetEntry(k K) (Entry[K, V], bool) {
	n := t.root
	for !n.leaf {
		n = n.children[childIndex(n, t.schema.Less, k)]
	}
	idx, found := leafSearch(n, t.schema.Less, k)
	if !found {
		return Entry[K, V]{}, false
	}
	return n.entries[idx], true
}

type splitResult[K any, V any] struct {
	sepKey K
	right  *node[K, V]
}

// Insert stores (k, v, ts) if no entry exists for k or ts wins the
// last-writer-wins comparison against the current entry; otherwise it
// leaves the tree untouched. It returns the entry that was present for
// k before the call, if any.
func (t *Tree[K, V]) Insert(k K, v V, ts Timestamp) (Entry[K, V], bool) {
	return t.put(Entry[K, V]{Key: k, Value: v, Timestamp: ts})
}

// InsertTombstone records a deletion with a timestamp, so that a
// write with an older timestamp arriving later from a stale peer
// cannot resurrect the key (§3 invariant 4, §9).
func (t *Tree[K, V]) InsertTombstone(k K, ts Timestamp) (Entry[K, V], bool) {
	var zero V
	return t.put(Entry[K, V]{Key: k, Value: zero, Timestamp: ts, Tombstone: true})
}

func (t *Tree[K, V]) put(want Entry[K, V]) (Entry[K, V], bool) {
	old, hadOld, applied, split := t.insertRec(t.root, want)
	if split != nil {
		newRoot := newInternal[K, V]()
		newRoot.keys = []K{split.sepKey}
		newRoot.children = []*node[K, V]{t.root, split.right}
		newRoot.sums = make([]summary[K], 2)
		refreshChildSummary(t.schema, newRoot, 0)
		refreshChildSummary(t.schema, newRoot, 1)
		t.root = newRoot
	}
	if applied {
		if !hadOld {
			t.size++
		}
		if t.observer != nil {
			t.observer(want.Key, want.Value, want.Timestamp)
		}
	}
	return old, hadOld
}

func (t *Tree[K, V]) insertRec(n *node[K, V], want Entry[K, V]) (old Entry[K, V], hadOld, applied bool, split *splitResult[K, V]) {
	less := t.schema.Less
	if n.leaf {
		idx, found := leafSearch(n, less, want.Key)
		if found {
			old = n.entries[idx]
			hadOld = true
			if compareEntries(t.schema, want, old) > 0 {
				n.entries[idx] = want
				applied = true
			}
			return
		}
		n.entries = append(n.entries, Entry[K, V]{})
		copy(n.entries[idx+1:], n.entries[idx:])
		n.entries[idx] = want
		applied = true
		if len(n.entries) > t.order {
			split = t.splitLeaf(n)
		}
		return
	}

	idx := childIndex(n, less, want.Key)
	old, hadOld, applied, childSplit := t.insertRec(n.children[idx], want)
	if childSplit != nil {
		n.keys = append(n.keys, want.Key)
		copy(n.keys[idx+1:], n.keys[idx:])
		n.keys[idx] = childSplit.sepKey

		n.children = append(n.children, nil)
		copy(n.children[idx+2:], n.children[idx+1:])
		n.children[idx+1] = childSplit.right

		n.sums = append(n.sums, summary[K]{})
		copy(n.sums[idx+2:], n.sums[idx+1:])
		refreshChildSummary(t.schema, n, idx+1)
	}
	refreshChildSummary(t.schema, n, idx)

	if len(n.children) > t.order {
		split = t.splitInternal(n)
	}
	return
}

func (t *Tree[K, V]) splitLeaf(n *node[K, V]) *splitResult[K, V] {
	mid := len(n.entries) / 2
	right := newLeaf[K, V]()
	right.entries = append(right.entries, n.entries[mid:]...)
	n.entries = n.entries[:mid:mid]
	right.next = n.next
	n.next = right
	return &splitResult[K, V]{sepKey: right.entries[0].Key, right: right}
}

func (t *Tree[K, V]) splitInternal(n *node[K, V]) *splitResult[K, V] {
	mid := len(n.keys) / 2
	promoted := n.keys[mid]

	right := newInternal[K, V]()
	right.keys = append(right.keys, n.keys[mid+1:]...)
	right.children = append(right.children, n.children[mid+1:]...)
	right.sums = append(right.sums, n.sums[mid+1:]...)

	n.keys = n.keys[:mid:mid]
	n.children = n.children[:mid+1 : mid+1]
	n.sums = n.sums[:mid+1 : mid+1]

	return &splitResult[K, V]{sepKey: promoted, right: right}
}

func (t *Tree[K, V]) minFill() int {
	m := t.order / 2
	if m < 1 {
		m = 1
	}
	return m
}

// Remove deletes the entry for k outright (no tombstone). It returns
// the removed entry, if one existed. The reconcile package records
// host deletions with InsertTombstone so that they propagate, and uses
// Remove only to purge tombstones older than the grace interval.
func (t *Tree[K, V]) Remove(k K) (Entry[K, V], bool) {
	old, removed, _ := t.removeRec(t.root, k)
	if !removed {
		return old, false
	}
	if !t.root.leaf && len(t.root.children) == 1 {
		t.root = t.root.children[0]
	}
	t.size--
	if t.observer != nil {
		t.observer(old.Key, old.Value, old.Timestamp)
	}
	return old, true
}

func (t *Tree[K, V]) removeRec(n *node[K, V], k K) (old Entry[K, V], removed, underflow bool) {
	less := t.schema.Less
	if n.leaf {
		idx, found := leafSearch(n, less, k)
		if !found {
			return Entry[K, V]{}, false, false
		}
		old = n.entries[idx]
		n.entries = append(n.entries[:idx], n.entries[idx+1:]...)
		return old, true, len(n.entries) < t.minFill()
	}

	idx := childIndex(n, less, k)
	old, removed, childUnderflow := t.removeRec(n.children[idx], k)
	if !removed {
		return old, false, false
	}
	if childUnderflow {
		idx = t.fixUnderflow(n, idx)
	}
	refreshChildSummary(t.schema, n, idx)
	return old, true, len(n.children) < t.minFill()+1
}

// fixUnderflow repairs an underflowing child at index idx by borrowing
// from a sibling or, failing that, merging with one. It returns the
// index the child now lives at (merging may shift it left by one).
func (t *Tree[K, V]) fixUnderflow(n *node[K, V], idx int) int {
	min := t.minFill()
	if idx > 0 && canLend(n.children[idx-1], min) {
		borrowFromLeft(t.schema, n, idx)
		return idx
	}
	if idx < len(n.children)-1 && canLend(n.children[idx+1], min) {
		borrowFromRight(t.schema, n, idx)
		return idx
	}
	if idx > 0 {
		mergeChildren(t.schema, n, idx-1)
		return idx - 1
	}
	mergeChildren(t.schema, n, idx)
	return idx
}

func canLend[K any, V any](n *node[K, V], min int) bool {
	if n.leaf {
		return len(n.entries) > min
	}
	return len(n.children) > min+1
}

func borrowFromLeft[K any, V any](s Schema[K, V], n *node[K, V], idx int) {
	left, child := n.children[idx-1], n.children[idx]
	if child.leaf {
		last := len(left.entries) - 1
		e := left.entries[last]
		left.entries = left.entries[:last]
		child.entries = append(child.entries, Entry[K, V]{})
		copy(child.entries[1:], child.entries)
		child.entries[0] = e
		n.keys[idx-1] = child.entries[0].Key
	} else {
		lastChild := len(left.children) - 1
		movedChild := left.children[lastChild]
		movedSum := left.sums[lastChild]
		promotedKey := n.keys[idx-1]

		child.children = append(child.children, nil)
		copy(child.children[1:], child.children)
		child.children[0] = movedChild

		child.sums = append(child.sums, summary[K]{})
		copy(child.sums[1:], child.sums)
		child.sums[0] = movedSum

		child.keys = append(child.keys, promotedKey)
		copy(child.keys[1:], child.keys)
		child.keys[0] = promotedKey

		n.keys[idx-1] = left.keys[len(left.keys)-1]

		left.children = left.children[:lastChild]
		left.sums = left.sums[:lastChild]
		left.keys = left.keys[:len(left.keys)-1]
	}
	refreshChildSummary(s, n, idx-1)
	refreshChildSummary(s, n, idx)
}

func borrowFromRight[K any, V any](s Schema[K, V], n *node[K, V], idx int) {
	child, right := n.children[idx], n.children[idx+1]
	if child.leaf {
		e := right.entries[0]
		right.entries = right.entries[1:]
		child.entries = append(child.entries, e)
		n.keys[idx] = right.entries[0].Key
	} else {
		movedChild := right.children[0]
		movedSum := right.sums[0]
		promotedKey := n.keys[idx]

		child.children = append(child.children, movedChild)
		child.sums = append(child.sums, movedSum)
		child.keys = append(child.keys, promotedKey)

		n.keys[idx] = right.keys[0]

		right.children = right.children[1:]
		right.sums = right.sums[1:]
		right.keys = right.keys[1:]
	}
	refreshChildSummary(s, n, idx)
	refreshChildSummary(s, n, idx+1)
}

// mergeChildren folds children[li+1] into children[li], pulling the
// separating key down into the merged node for internal merges, and
// removes the now-empty slot from n.
func mergeChildren[K any, V any](s Schema[K, V], n *node[K, V], li int) {
	left, right := n.children[li], n.children[li+1]
	if left.leaf {
		left.entries = append(left.entries, right.entries...)
		left.next = right.next
	} else {
		left.keys = append(left.keys, n.keys[li])
		left.keys = append(left.keys, right.keys...)
		left.children = append(left.children, right.children...)
		left.sums = append(left.sums, right.sums...)
	}
	n.keys = append(n.keys[:li], n.keys[li+1:]...)
	n.children = append(n.children[:li+1], n.children[li+2:]...)
	n.sums = append(n.sums[:li+1], n.sums[li+2:]...)
	refreshChildSummary(s, n, li)
}
