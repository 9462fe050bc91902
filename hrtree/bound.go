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

// Bound is one edge of a half-open key range [lo, hi). A Bound can be
// a finite key, or one of the ±∞ sentinels required to express the
// full key range in a single range_hash/range_iter call.
type Bound[K any] struct {
	inf int8 // -1 = -inf, 0 = finite, 1 = +inf
	key K
}

// NegInf returns the -∞ bound.
func NegInf[K any]() Bound[K] { return Bound[K]{inf: -1} }

// PosInf returns the +∞ bound.
func PosInf[K any]() Bound[K] { return Bound[K]{inf: 1} }

// At returns the finite bound at k.
func At[K any](k K) Bound[K] { return Bound[K]{inf: 0, key: k} }

// Full is shorthand for the full key range [-∞, +∞).
func Full[K any]() (Bound[K], Bound[K]) { return NegInf[K](), PosInf[K]() }

// IsNegInf reports whether b is the -∞ sentinel.
func (b Bound[K]) IsNegInf() bool { return b.inf < 0 }

// IsPosInf reports whether b is the +∞ sentinel.
func (b Bound[K]) IsPosInf() bool { return b.inf > 0 }

// Key returns the finite key of b. It panics if b is a sentinel;
// callers must check IsNegInf/IsPosInf first.
func (b Bound[K]) Key() K {
	if b.inf != 0 {
		panic("hrtree: Bound.Key called on an infinite bound")
	}
	return b.key
}

// keyBeforeBound reports whether k sorts strictly before the bound b,
// i.e. k < b. -∞ is before everything finite; +∞ is after everything.
func keyBeforeBound[K any](less func(a, b K) bool, k K, b Bound[K]) bool {
	if b.IsPosInf() {
		return true
	}
	if b.IsNegInf() {
		return false
	}
	return less(k, b.key)
}

// boundBeforeKey reports whether b sorts strictly before k, i.e. b < k.
func boundBeforeKey[K any](less func(a, b K) bool, b Bound[K], k K) bool {
	if b.IsNegInf() {
		return true
	}
	if b.IsPosInf() {
		return false
	}
	return less(b.key, k)
}

// inRange reports whether k falls in the half-open range [lo, hi).
func inRange[K any](less func(a, b K) bool, k K, lo, hi Bound[K]) bool {
	return !keyBeforeBound(less, k, lo) && keyBeforeBound(less, k, hi)
}

// boundMax returns whichever of a, b sorts last.
func boundMax[K any](less func(a, b K) bool, a, b Bound[K]) Bound[K] {
	if boundLess(less, a, b) {
		return b
	}
	return a
}

// boundMin returns whichever of a, b sorts first.
func boundMin[K any](less func(a, b K) bool, a, b Bound[K]) Bound[K] {
	if boundLess(less, b, a) {
		return b
	}
	return a
}

// boundLess totally orders bounds, -∞ < finite < +∞.
func boundLess[K any](less func(a, b K) bool, a, b Bound[K]) bool {
	if a.inf != b.inf {
		return a.inf < b.inf
	}
	if a.inf != 0 {
		return false
	}
	return less(a.key, b.key)
}

// rangeEmpty reports whether [lo, hi) contains no keys at all.
func rangeEmpty[K any](less func(a, b K) bool, lo, hi Bound[K]) bool {
	return !boundLess(less, lo, hi)
}

// rangeContains reports whether [lo, hi) fully contains [subLo, subHi).
func rangeContains[K any](less func(a, b K) bool, lo, hi, subLo, subHi Bound[K]) bool {
	return !boundLess(less, subLo, lo) && !boundLess(less, hi, subHi)
}

// rangeDisjoint reports whether [lo, hi) and [subLo, subHi) share no keys.
func rangeDisjoint[K any](less func(a, b K) bool, lo, hi, subLo, subHi Bound[K]) bool {
	return !boundLess(less, lo, subHi) || !boundLess(less, subLo, hi)
}
