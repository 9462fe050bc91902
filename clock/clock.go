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

// Package clock produces the Timestamps that drive last-writer-wins
// conflict resolution (§3 "Timestamp"). It wraps
// github.com/ethereum/go-ethereum/common/mclock so the reconcile
// package's event loop and its tests can run against a Simulated clock
// instead of the wall clock, the same way the teacher's own timers do.
package clock

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/distlabs/hrkv/hrtree"
)

// Generator produces hrtree.Timestamp values. Wall is in nanoseconds:
// for mclock.System it is read from the wall clock as Unix time (so
// timestamps compare sensibly across peers whose clocks roughly
// agree); for any other clock, such as mclock.Simulated in tests, it
// is that clock's AbsTime, i.e. virtual time shared by whatever clock
// the test wires into the rest of the service. Seq is a
// per-process random salt mixed into every timestamp, so that LWW ties
// between concurrent writers on different peers resolve the same way
// everywhere without any coordination (§3 "deterministic tiebreak").
type Generator struct {
	clk mclock.Clock

	mu   sync.Mutex
	salt uint32
	last int64
}

// New returns a Generator reading time from clk. Passing a
// *mclock.Simulated lets tests advance time deterministically; passing
// mclock.System{} (the zero value is usable) ties timestamps to the
// real wall clock.
func New(clk mclock.Clock) *Generator {
	if clk == nil {
		clk = mclock.System{}
	}
	return &Generator{
		clk:  clk,
		salt: rand.Uint32(),
		last: math.MinInt64,
	}
}

// Now returns the next timestamp. Within a single Generator, Wall
// strictly increases: when the clock has not moved past the previous
// timestamp's Wall, Wall is set one nanosecond past it instead, so
// ordering between local writes is preserved even at clock resolutions
// coarser than the call rate. Seq is always the Generator's salt.
func (g *Generator) Now() hrtree.Timestamp {
	g.mu.Lock()
	defer g.mu.Unlock()

	var wall int64
	if _, ok := g.clk.(mclock.System); ok {
		wall = time.Now().UnixNano()
	} else {
		wall = int64(g.clk.Now())
	}
	if wall <= g.last {
		wall = g.last + 1
	}
	g.last = wall
	return hrtree.Timestamp{Wall: wall, Seq: g.salt}
}

// Clock exposes the underlying mclock.Clock so the reconcile package's
// tickers and session timeouts run on the clock the Generator was
// built with. With a Simulated clock that is also the source of every
// timestamp, which keeps Simulated-clock tests deterministic end to
// end.
func (g *Generator) Clock() mclock.Clock { return g.clk }
