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
	"fmt"
	"math/rand"
	"testing"
)

// BenchmarkInsert measures steady-state insert cost, the dominant cost
// of §4.B's amortized O(log n) bound.
func BenchmarkInsert(b *testing.B) {
	tree := New(intSchema(), WithOrder[int, string](DefaultOrder))
	r := rand.New(rand.NewSource(1))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := r.Intn(b.N + 1)
		tree.Insert(k, fmt.Sprintf("v%d", k), ts(int64(i+1)))
	}
}

// BenchmarkRangeHash measures the O(log n) fingerprint computation
// §3/§4.B promise, over a tree pre-populated to a realistic size.
func BenchmarkRangeHash(b *testing.B) {
	const n = 100_000
	tree := New(intSchema(), WithOrder[int, string](DefaultOrder))
	for i := 0; i < n; i++ {
		tree.Insert(i, fmt.Sprintf("v%d", i), ts(int64(i+1)))
	}
	lo, hi := Full[int]()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.RangeHash(lo, hi)
	}
}

// BenchmarkRangeHashNarrow measures fingerprinting a small sub-range of
// a large tree, the shape the diff algorithm exercises once recursion
// has narrowed in on a mismatch (§4.D).
func BenchmarkRangeHashNarrow(b *testing.B) {
	const n = 100_000
	tree := New(intSchema(), WithOrder[int, string](DefaultOrder))
	for i := 0; i < n; i++ {
		tree.Insert(i, fmt.Sprintf("v%d", i), ts(int64(i+1)))
	}
	lo, hi := At(n/2), At(n/2+1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tree.RangeHash(lo, hi)
	}
}
