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

// This file implements the recursive range-bisection diff algorithm of
// §4.D as a pure decision function, kept free of socket/session
// plumbing so it can be tested against a bare *hrtree.Tree.
package reconcile

import (
	"github.com/distlabs/hrkv/config"
	"github.com/distlabs/hrkv/hrtree"
)

// hashRangeOutcome is the three-way branch of §4.D step 2 the receiver
// of a HashRange takes after comparing fingerprints.
type hashRangeOutcome[K any] struct {
	// Match is true when the local and remote fingerprints agree: the
	// range is converged and nothing further is sent (an absent reply
	// is itself the terminator).
	Match bool
	// Fanout is non-nil when the range was too large to exchange
	// directly; it holds the sub-ranges to report back to the peer.
	Fanout []hrtree.SubRange[K]
	// Small is true when neither Match nor Fanout applies: the range
	// is small enough to exchange raw entries directly.
	Small bool
}

// decideHashRange implements §4.D step 2 for a single received
// HashRange query over [lo, hi): compute the local fingerprint, then
// decide whether the range has converged, is small enough to exchange
// directly, or needs to be partitioned further.
func decideHashRange[K any, V any](tree *hrtree.Tree[K, V], cfg config.Config, lo, hi hrtree.Bound[K], remoteHash hrtree.Hash, remoteCount int) hashRangeOutcome[K] {
	localHash, localCount := tree.RangeHashAndCount(lo, hi)
	if localHash == remoteHash && localCount == remoteCount {
		return hashRangeOutcome[K]{Match: true}
	}

	maxCount := localCount
	if remoteCount > maxCount {
		maxCount = remoteCount
	}
	if maxCount <= cfg.DirectExchangeMaxEntries {
		return hashRangeOutcome[K]{Small: true}
	}

	fanout := cfg.Fanout
	if fanout < 2 {
		fanout = 2
	}
	return hashRangeOutcome[K]{Fanout: tree.SplitRange(lo, hi, fanout)}
}

// mismatchedSubRanges reports which sub-ranges of a received
// HashRangeFanout disagree with the local tree's own fingerprint for
// the same sub-range (§4.D step 3: "recurses only into the sub-ranges
// that differ").
func mismatchedSubRanges[K any, V any](tree *hrtree.Tree[K, V], lo, hi []hrtree.Bound[K], remoteHash []hrtree.Hash, remoteCount []int) []int {
	var mismatched []int
	for i := range lo {
		h, c := tree.RangeHashAndCount(lo[i], hi[i])
		if h != remoteHash[i] || c != remoteCount[i] {
			mismatched = append(mismatched, i)
		}
	}
	return mismatched
}
