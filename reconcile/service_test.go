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

package reconcile

import (
	"net"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"

	"github.com/distlabs/hrkv/clock"
	"github.com/distlabs/hrkv/config"
	"github.com/distlabs/hrkv/hrtree"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.ReconcilePeriod = 20 * time.Millisecond
	cfg.SessionTimeout = 200 * time.Millisecond
	cfg.TombstoneGCPeriod = 50 * time.Millisecond
	cfg.TombstoneGrace = 0
	cfg.DirectExchangeMaxEntries = 64
	cfg.Fanout = 4
	cfg.MTU = 1400
	cfg.TreeOrder = 4
	cfg.PeerCacheSize = 16
	return cfg
}

func newTestPair(t *testing.T, cfg config.Config) (a, b *Service[string, string]) {
	t.Helper()
	fnet := newFakeNetwork()
	connA := fnet.newConn("a")
	connB := fnet.newConn("b")

	peersA, err := NewPeerSet([]net.Addr{fakeAddr("b")}, fakeAddr("a"), cfg.PeerCacheSize)
	if err != nil {
		t.Fatalf("NewPeerSet a: %v", err)
	}
	peersB, err := NewPeerSet([]net.Addr{fakeAddr("a")}, fakeAddr("b"), cfg.PeerCacheSize)
	if err != nil {
		t.Fatalf("NewPeerSet b: %v", err)
	}

	a = New(stringSchema(), connA, peersA, cfg, clock.New(mclock.System{}))
	b = New(stringSchema(), connB, peersB, cfg, clock.New(mclock.System{}))
	a.Start()
	b.Start()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

// newTestPairWithLoss is newTestPair but drops a fraction of datagrams
// on both sides' fakeConn, exercising §8 scenario 6: periodic
// reconciliation must still converge under lossy transport.
func newTestPairWithLoss(t *testing.T, cfg config.Config, lossRate float64) (a, b *Service[string, string]) {
	t.Helper()
	fnet := newFakeNetwork()
	connA := fnet.newConn("a")
	connB := fnet.newConn("b")
	connA.lossRate = lossRate
	connB.lossRate = lossRate

	peersA, err := NewPeerSet([]net.Addr{fakeAddr("b")}, fakeAddr("a"), cfg.PeerCacheSize)
	if err != nil {
		t.Fatalf("NewPeerSet a: %v", err)
	}
	peersB, err := NewPeerSet([]net.Addr{fakeAddr("a")}, fakeAddr("b"), cfg.PeerCacheSize)
	if err != nil {
		t.Fatalf("NewPeerSet b: %v", err)
	}

	a = New(stringSchema(), connA, peersA, cfg, clock.New(mclock.System{}))
	b = New(stringSchema(), connB, peersB, cfg, clock.New(mclock.System{}))
	a.Start()
	b.Start()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

// eventually polls fn until it returns true or the timeout elapses.
func eventually(t *testing.T, timeout time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if fn() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", timeout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmptyConvergenceStaysEmpty(t *testing.T) {
	a, b := newTestPair(t, testConfig())
	time.Sleep(100 * time.Millisecond)
	if a.Len() != 0 || b.Len() != 0 {
		t.Fatalf("expected both sides to remain empty, got a=%d b=%d", a.Len(), b.Len())
	}
}

func TestEagerUpdatePropagates(t *testing.T) {
	a, b := newTestPair(t, testConfig())
	a.Insert("x", "1")

	eventually(t, 2*time.Second, func() bool {
		v, ok := b.Get("x")
		return ok && v == "1"
	})
}

func TestRemovePropagates(t *testing.T) {
	a, b := newTestPair(t, testConfig())
	a.Insert("x", "1")
	eventually(t, 2*time.Second, func() bool {
		_, ok := b.Get("x")
		return ok
	})

	a.Remove("x")
	eventually(t, 2*time.Second, func() bool {
		_, ok := b.Get("x")
		return !ok
	})
}

// TestPeriodicReconciliationRepairsMissedWrite bypasses the eager-update
// path entirely (writing straight into the tree, as an EagerUpdate
// datagram lost to UDP drop would leave it) and checks that the
// periodic HashRange probe still converges the two peers, per §4.D's
// "periodic fallback" role.
func TestPeriodicReconciliationRepairsMissedWrite(t *testing.T) {
	cfg := testConfig()
	a, b := newTestPair(t, cfg)

	a.do(func() {
		a.tree.Insert("only-on-a", "v1", hrtree.Timestamp{Wall: 1})
		a.liveCount++
	})

	eventually(t, 2*time.Second, func() bool {
		v, ok := b.Get("only-on-a")
		return ok && v == "v1"
	})
}

// TestLWWConflictConvergesToNewer seeds each side with a conflicting
// value for the same key under a controlled timestamp and checks that
// periodic reconciliation converges both sides on the strictly newer
// write (§3 invariant 3, §4.D).
func TestLWWConflictConvergesToNewer(t *testing.T) {
	cfg := testConfig()
	a, b := newTestPair(t, cfg)

	a.do(func() {
		a.tree.Insert("k", "old", hrtree.Timestamp{Wall: 1})
		a.liveCount++
	})
	b.do(func() {
		b.tree.Insert("k", "new", hrtree.Timestamp{Wall: 2})
		b.liveCount++
	})

	eventually(t, 2*time.Second, func() bool {
		va, oka := a.Get("k")
		vb, okb := b.Get("k")
		return oka && okb && va == "new" && vb == "new"
	})
}

func TestLenExcludesTombstones(t *testing.T) {
	a, b := newTestPair(t, testConfig())
	a.Insert("x", "1")
	a.Insert("y", "2")
	eventually(t, 2*time.Second, func() bool { return b.Len() == 2 })

	a.Remove("x")
	eventually(t, 2*time.Second, func() bool { return b.Len() == 1 })
	if _, ok := b.Get("y"); !ok {
		t.Fatal("expected the surviving key to remain readable")
	}
}

func TestRangeSkipsTombstones(t *testing.T) {
	a, _ := newTestPair(t, testConfig())
	a.Insert("x", "1")
	a.Remove("x")
	a.Insert("y", "2")

	seen := map[string]string{}
	lo, hi := hrtree.Full[string]()
	a.Range(lo, hi, func(k, v string, _ hrtree.Timestamp) bool {
		seen[k] = v
		return true
	})
	if _, ok := seen["x"]; ok {
		t.Fatal("Range must not surface a tombstoned key")
	}
	if seen["y"] != "2" {
		t.Fatalf("Range missed live key y: %v", seen)
	}
}

func TestCloseIsIdempotentAndStopsLoop(t *testing.T) {
	a, _ := newTestPair(t, testConfig())
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if ok := a.do(func() {}); ok {
		t.Fatal("do() should report false once the service is closed")
	}
}

// TestConvergesDespiteDatagramLoss injects 50% loss on every outbound
// datagram on both sides, which defeats eager update often enough that
// convergence can only come from the periodic HashRange fallback, and
// checks it still arrives within a bounded number of reconcile ticks
// (§4.D, §8 scenario 6).
func TestConvergesDespiteDatagramLoss(t *testing.T) {
	cfg := testConfig()
	a, b := newTestPairWithLoss(t, cfg, 0.5)

	a.do(func() {
		a.tree.Insert("only-on-a", "v1", hrtree.Timestamp{Wall: 1})
		a.liveCount++
	})

	const maxTicks = 200
	eventually(t, time.Duration(maxTicks)*cfg.ReconcilePeriod, func() bool {
		v, ok := b.Get("only-on-a")
		return ok && v == "v1"
	})
}

func TestOnInsertionObserverFires(t *testing.T) {
	cfg := testConfig()
	fnet := newFakeNetwork()
	conn := fnet.newConn("solo")
	peers, err := NewPeerSet(nil, fakeAddr("solo"), cfg.PeerCacheSize)
	if err != nil {
		t.Fatalf("NewPeerSet: %v", err)
	}
	svc := New(stringSchema(), conn, peers, cfg, clock.New(mclock.System{}))

	seen := make(chan string, 1)
	svc.OnInsertion(func(k, v string, _ hrtree.Timestamp) {
		seen <- k + "=" + v
	})
	svc.Start()
	t.Cleanup(func() { svc.Close() })

	svc.Insert("k", "v")
	select {
	case got := <-seen:
		if got != "k=v" {
			t.Fatalf("observer fired with %q, want k=v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("insertion observer did not fire")
	}
}
