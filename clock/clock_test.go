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

package clock

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

func TestNowStrictlyIncreasesWithinSameTick(t *testing.T) {
	var sim mclock.Simulated
	g := New(&sim)

	a := g.Now()
	b := g.Now()
	if !a.Less(b) {
		t.Fatalf("two calls with no clock advance: a=%v b=%v, want a < b", a, b)
	}
}

func TestNowAdvancesWithClock(t *testing.T) {
	var sim mclock.Simulated
	g := New(&sim)

	a := g.Now()
	sim.Run(time.Second)
	b := g.Now()
	if b.Wall-a.Wall < int64(time.Second) {
		t.Fatalf("Wall delta = %d, want at least %d", b.Wall-a.Wall, int64(time.Second))
	}
}

func TestSeqStableAcrossCalls(t *testing.T) {
	var sim mclock.Simulated
	g := New(&sim)
	a := g.Now()
	sim.Run(time.Millisecond)
	b := g.Now()
	if a.Seq != b.Seq {
		t.Fatalf("Seq salt changed within one generator: %d vs %d", a.Seq, b.Seq)
	}
}

func TestDifferentGeneratorsLikelyDifferentSalt(t *testing.T) {
	var sim mclock.Simulated
	g1 := New(&sim)
	g2 := New(&sim)
	if g1.Now().Seq == g2.Now().Seq {
		// Statistically near-impossible for two independent
		// rand.Uint32 draws to collide; not a correctness bug if it
		// ever does, just worth knowing about.
		t.Log("two generators drew the same salt; harmless but notable")
	}
}
