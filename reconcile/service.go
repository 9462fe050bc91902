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

// Package reconcile implements the Reconciliation Service (§4.E): the
// single-threaded cooperative actor that owns one instance's HRTree,
// exposes it to the host application as an ordinary map, and keeps it
// converged with its peers by exchanging wire datagrams.
//
// "Single-threaded" is expressed here by message-passing rather than a
// real coroutine: exactly one goroutine (Service.loop) ever touches the
// tree or the session table. The receiver and ticker goroutines only
// ever produce work for that loop over channels; the sender goroutine
// writes queued datagrams to the socket and, when a send fails, marks
// the peer in the PeerSet's deprioritization cache, which has its own
// lock. None of them touches the tree, which is what gives it the
// lock-free single-owner guarantee from §5.
package reconcile

import (
	"net"
	"sync"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/distlabs/hrkv/clock"
	"github.com/distlabs/hrkv/config"
	"github.com/distlabs/hrkv/hrtree"
	"github.com/distlabs/hrkv/wire"
)

// PacketConn is the datagram socket abstraction the service depends
// on (§1 "a datagram socket abstraction"). *net.UDPConn satisfies it;
// tests substitute an in-memory fake.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	Close() error
}

type outboundDatagram struct {
	payload []byte
	addr    net.Addr
}

type inboundMsg struct {
	typ     wire.Type
	payload interface{}
	addr    net.Addr
}

// Service owns one peer's HRTree, socket and peer set, and runs the
// reconciliation protocol against Config.Peers. Service is the
// host-facing map of §6; every exported map operation (Insert, Remove,
// Get, Len, IsEmpty, Range) round-trips through the single loop
// goroutine, while OnInsertion sets the observer directly.
type Service[K any, V any] struct {
	schema hrtree.Schema[K, V]
	tree   *hrtree.Tree[K, V]
	cfg    config.Config
	clk    *clock.Generator
	peers  *PeerSet
	sess   *sessionTable
	conn   PacketConn

	hostObserver hrtree.InsertionObserver[K, V]
	liveCount    int

	reqCh   chan func()
	inCh    chan inboundMsg
	tickCh  chan struct{}
	gcCh    chan struct{}
	outCh   chan outboundDatagram
	outOnce sync.Once
	closeCh chan struct{}
	once    sync.Once
	eg      *errgroup.Group
}

// New constructs a Service. The caller is responsible for calling
// Start to begin the event loop and Close to tear it down.
func New[K any, V any](schema hrtree.Schema[K, V], conn PacketConn, peers *PeerSet, cfg config.Config, clk *clock.Generator) *Service[K, V] {
	order := cfg.TreeOrder
	if order == 0 {
		order = hrtree.DefaultOrder
	}
	s := &Service[K, V]{
		schema:  schema,
		cfg:     cfg,
		clk:     clk,
		peers:   peers,
		conn:    conn,
		sess:    newSessionTable(clk.Clock(), cfg.SessionTimeout),
		reqCh:   make(chan func()),
		inCh:    make(chan inboundMsg, 256),
		tickCh:  make(chan struct{}, 1),
		gcCh:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		eg:      &errgroup.Group{},
	}
	s.tree = hrtree.New(schema, hrtree.WithOrder[K, V](order), hrtree.WithObserver[K, V](s.onTreeMutation))
	return s
}

// Start launches the core loop, the receiver goroutine and the
// reconciliation and tombstone-GC ticker goroutines. It returns
// immediately. The sender goroutine is started on the first outgoing
// datagram instead (see outboundCh). All of them are supervised by a
// single errgroup.Group (§5's "independently failing goroutines" are
// in practice loops that only ever exit via closeCh, so none of them
// ever returns a non-nil error; the group exists to join them, not to
// cancel on first failure).
func (s *Service[K, V]) Start() {
	s.eg.Go(func() error { s.loop(); return nil })
	s.eg.Go(func() error { s.receiveLoop(); return nil })
	s.eg.Go(func() error { s.reconcileTickLoop(); return nil })
	s.eg.Go(func() error { s.gcTickLoop(); return nil })
}

// Close stops all goroutines and closes the underlying socket. It is
// safe to call more than once.
func (s *Service[K, V]) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
		s.eg.Wait()
	})
	return err
}

// do runs fn on the loop goroutine and waits for it to finish. Every
// exported map operation below is built on this, so all tree access is
// confined to the loop goroutine regardless of which goroutine called
// in.
func (s *Service[K, V]) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case s.reqCh <- func() { fn(); close(done) }:
	case <-s.closeCh:
		return false
	}
	select {
	case <-done:
		return true
	case <-s.closeCh:
		return false
	}
}

// onTreeMutation is the hrtree-level observer; it forwards to whatever
// host observer OnInsertion registered. Kept separate from eager
// propagation, which only fires for locally-originated writes (§4.E
// "when a local write occurs via the map API").
func (s *Service[K, V]) onTreeMutation(k K, v V, ts hrtree.Timestamp) {
	if s.hostObserver != nil {
		s.hostObserver(k, v, ts)
	}
}

// OnInsertion registers the post-mutation hook of §6. It must be
// called before Start to avoid racing the loop goroutine.
func (s *Service[K, V]) OnInsertion(fn hrtree.InsertionObserver[K, V]) {
	s.hostObserver = fn
}

// Insert stores v for k with a freshly allocated timestamp and eagerly
// propagates the write to every peer.
func (s *Service[K, V]) Insert(k K, v V) (old V, hadOld bool) {
	s.do(func() {
		ts := s.clk.Now()
		prev, had := s.tree.GetEntry(k)
		wasLive := had && !prev.Tombstone
		s.tree.Insert(k, v, ts)
		cur, _ := s.tree.GetEntry(k)
		if cur.Timestamp != ts {
			return // a fresher write already won; ours was stale, nothing to propagate
		}
		if wasLive {
			old, hadOld = prev.Value, true
		} else {
			s.liveCount++
		}
		s.broadcastEager(wire.Entry{Key: s.schema.EncodeKey(k), Value: s.schema.EncodeValue(v), Timestamp: wire.Timestamp{Wall: uint64(ts.Wall), Seq: ts.Seq}})
	})
	return
}

// Remove deletes k, recording a tombstone so the deletion propagates
// instead of being silently forgotten (§3 invariant 4).
func (s *Service[K, V]) Remove(k K) (old V, ok bool) {
	s.do(func() {
		prev, had := s.tree.GetEntry(k)
		if !had || prev.Tombstone {
			return
		}
		ts := s.clk.Now()
		s.tree.InsertTombstone(k, ts)
		cur, _ := s.tree.GetEntry(k)
		if cur.Timestamp != ts {
			return
		}
		old, ok = prev.Value, true
		s.liveCount--
		s.broadcastEager(wire.Entry{Key: s.schema.EncodeKey(k), Timestamp: wire.Timestamp{Wall: uint64(ts.Wall), Seq: ts.Seq}, Tombstone: true})
	})
	return
}

// Get returns the current value for k, or ok=false if absent or
// tombstoned.
func (s *Service[K, V]) Get(k K) (v V, ok bool) {
	s.do(func() { v, _, ok = s.tree.Get(k) })
	return
}

// Len returns the number of live (non-tombstoned) entries.
func (s *Service[K, V]) Len() (n int) {
	s.do(func() { n = s.liveCount })
	return
}

// IsEmpty reports whether the map holds no live entries.
func (s *Service[K, V]) IsEmpty() bool { return s.Len() == 0 }

// Range walks every live entry with a key in [lo, hi) in key order.
func (s *Service[K, V]) Range(lo, hi hrtree.Bound[K], fn func(K, V, hrtree.Timestamp) bool) {
	s.do(func() {
		s.tree.Range(lo, hi, func(e hrtree.Entry[K, V]) bool {
			if e.Tombstone {
				return true
			}
			return fn(e.Key, e.Value, e.Timestamp)
		})
	})
}

// broadcastEager sends EagerUpdate(e) to every known peer. Must be
// called from the loop goroutine.
func (s *Service[K, V]) broadcastEager(e wire.Entry) {
	for _, peer := range s.peers.All() {
		s.sendMsg(peer, wire.EagerUpdate{Entry: e})
	}
}

// sendMsg encodes payload and queues it for the sender goroutine.
// Encode/queue failures are logged and dropped per §7 ("Socket send
// errors -> log and continue").
func (s *Service[K, V]) sendMsg(addr net.Addr, payload interface{}) {
	buf, err := wire.Encode(payload, s.cfg.MTU)
	if err != nil {
		log.Warn("reconcile: failed to encode outgoing datagram", "peer", addr, "err", err)
		return
	}
	select {
	case s.outboundCh() <- outboundDatagram{payload: buf, addr: addr}:
	default:
		log.Warn("reconcile: outbound queue full, dropping datagram", "peer", addr)
	}
}

// outboundCh lazily creates the sender channel and spawns its
// goroutine on first use, so a service that never sends a datagram
// never starts a sender goroutine.
func (s *Service[K, V]) outboundCh() chan outboundDatagram {
	s.outOnce.Do(func() {
		s.outCh = make(chan outboundDatagram, 256)
		s.eg.Go(func() error { s.sendLoop(); return nil })
	})
	return s.outCh
}

func (s *Service[K, V]) sendLoop() {
	for {
		select {
		case d := <-s.outCh:
			if _, err := s.conn.WriteTo(d.payload, d.addr); err != nil {
				log.Warn("reconcile: send failed", "peer", d.addr, "err", err)
				s.peers.Deprioritize(d.addr)
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Service[K, V]) receiveLoop() {
	buf := make([]byte, 65535)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			log.Warn("reconcile: read failed", "err", err)
			continue
		}
		datagram := append([]byte(nil), buf[:n]...)
		typ, payload, err := wire.Decode(datagram)
		if err != nil {
			log.Warn("reconcile: dropping malformed datagram", "peer", addr, "err", err)
			continue
		}
		select {
		case s.inCh <- inboundMsg{typ: typ, payload: payload, addr: addr}:
		case <-s.closeCh:
			return
		}
	}
}

func (s *Service[K, V]) reconcileTickLoop() {
	clk := s.clk.Clock()
	alarm := mclock.NewAlarm(clk)
	alarm.Schedule(clk.Now().Add(s.cfg.ReconcilePeriod))
	for {
		select {
		case <-alarm.C():
			select {
			case s.tickCh <- struct{}{}:
			case <-s.closeCh:
				return
			default:
			}
			alarm.Schedule(clk.Now().Add(s.cfg.ReconcilePeriod))
		case <-s.closeCh:
			return
		}
	}
}

func (s *Service[K, V]) gcTickLoop() {
	clk := s.clk.Clock()
	alarm := mclock.NewAlarm(clk)
	alarm.Schedule(clk.Now().Add(s.cfg.TombstoneGCPeriod))
	for {
		select {
		case <-alarm.C():
			select {
			case s.gcCh <- struct{}{}:
			case <-s.closeCh:
				return
			default:
			}
			alarm.Schedule(clk.Now().Add(s.cfg.TombstoneGCPeriod))
		case <-s.closeCh:
			return
		}
	}
}

// loop is the single goroutine that ever touches the tree or the
// session table (§5). The sender goroutine also updates the peer
// set's deprioritization cache, under the PeerSet's own lock.
func (s *Service[K, V]) loop() {
	for {
		select {
		case fn := <-s.reqCh:
			fn()
		case m := <-s.inCh:
			s.dispatch(m)
		case <-s.tickCh:
			s.onReconcileTick()
		case <-s.gcCh:
			s.onGCTick()
		case <-s.closeCh:
			return
		}
	}
}

func (s *Service[K, V]) dispatch(m inboundMsg) {
	switch p := m.payload.(type) {
	case *wire.HashRange:
		s.handleHashRange(p, m.addr)
	case *wire.HashRangeFanout:
		s.handleFanout(p, m.addr)
	case *wire.EntryRequest:
		s.handleEntryRequest(p, m.addr)
	case *wire.Entries:
		s.handleEntries(p)
	case *wire.EagerUpdate:
		s.handleEagerUpdate(p)
	default:
		log.Warn("reconcile: unhandled inbound message", "type", m.typ, "peer", m.addr)
	}
}

// onReconcileTick is the periodic initiator of §4.E: pick a random
// peer and start a fresh reconciliation round over the full range.
func (s *Service[K, V]) onReconcileTick() {
	s.sess.Prune()
	peer, ok := s.peers.Random()
	if !ok {
		return
	}
	id := s.sess.New(peer)
	lo, hi := hrtree.Full[K]()
	s.sendHashRangeQuery(id, peer, lo, hi)
}

func (s *Service[K, V]) onGCTick() {
	cutoff := s.clk.Now()
	cutoff.Wall -= int64(s.cfg.TombstoneGrace)
	var stale []K
	lo, hi := hrtree.Full[K]()
	s.tree.Range(lo, hi, func(e hrtree.Entry[K, V]) bool {
		if e.Tombstone && e.Timestamp.Less(cutoff) {
			stale = append(stale, e.Key)
		}
		return true
	})
	for _, k := range stale {
		s.tree.Remove(k)
	}
}

// sendHashRangeQuery sends the "my fingerprint for this range is..."
// probe of §4.D step 1. It is used both by the periodic initiator and,
// recursively, whenever a HashRangeFanout response reveals a
// mismatched sub-range that still needs to be bisected further.
func (s *Service[K, V]) sendHashRangeQuery(session uint64, peer net.Addr, lo, hi hrtree.Bound[K]) {
	h, c := s.tree.RangeHashAndCount(lo, hi)
	s.sendMsg(peer, wire.HashRange{
		Session: session,
		Range:   rangeToWire(lo, hi, s.schema.EncodeKey),
		Hash:    h,
		Count:   uint64(c),
	})
}

// handleHashRange answers a received fingerprint probe (§4.D step 2),
// from either the original initiator or a recursive sub-range probe.
func (s *Service[K, V]) handleHashRange(hr *wire.HashRange, addr net.Addr) {
	lo, hi, err := rangeFromWire[K](hr.Range, s.schema.DecodeKey)
	if err != nil {
		log.Warn("reconcile: malformed HashRange", "peer", addr, "err", err)
		return
	}
	outcome := decideHashRange(s.tree, s.cfg, lo, hi, hr.Hash, int(hr.Count))
	switch {
	case outcome.Match:
		return
	case outcome.Fanout != nil:
		subs := make([]wire.SubRange, 0, len(outcome.Fanout))
		for _, sr := range outcome.Fanout {
			subs = append(subs, wire.SubRange{
				Range: rangeToWire(sr.Lo, sr.Hi, s.schema.EncodeKey),
				Hash:  sr.Hash,
				Count: uint64(sr.Count),
			})
		}
		s.sendMsg(addr, wire.HashRangeFanout{Session: hr.Session, Parent: hr.Range, Subs: subs})
	default:
		s.sendEntriesFor(hr.Session, addr, lo, hi)
		s.sendMsg(addr, wire.EntryRequest{Session: hr.Session, Range: hr.Range})
	}
}

// handleFanout is the initiator's side of §4.D step 3: recurse only
// into sub-ranges whose fingerprint still disagrees with the local
// tree.
func (s *Service[K, V]) handleFanout(f *wire.HashRangeFanout, addr net.Addr) {
	if !s.sess.Valid(f.Session, addr) {
		log.Debug("reconcile: dropping fanout for unknown/stale session", "session", f.Session, "peer", addr)
		return
	}
	s.sess.Touch(f.Session, addr)
	for _, sub := range f.Subs {
		lo, hi, err := rangeFromWire[K](sub.Range, s.schema.DecodeKey)
		if err != nil {
			log.Warn("reconcile: malformed sub-range in HashRangeFanout", "peer", addr, "err", err)
			continue
		}
		localHash, localCount := s.tree.RangeHashAndCount(lo, hi)
		if localHash == sub.Hash && localCount == int(sub.Count) {
			continue
		}
		s.sendHashRangeQuery(f.Session, addr, lo, hi)
	}
}

// handleEntryRequest replies with every entry (tombstones included) in
// the requested range, chunked to the configured MTU.
func (s *Service[K, V]) handleEntryRequest(req *wire.EntryRequest, addr net.Addr) {
	lo, hi, err := rangeFromWire[K](req.Range, s.schema.DecodeKey)
	if err != nil {
		log.Warn("reconcile: malformed EntryRequest", "peer", addr, "err", err)
		return
	}
	s.sendEntriesFor(req.Session, addr, lo, hi)
}

func (s *Service[K, V]) sendEntriesFor(session uint64, addr net.Addr, lo, hi hrtree.Bound[K]) {
	var entries []wire.Entry
	s.tree.Range(lo, hi, func(e hrtree.Entry[K, V]) bool {
		entries = append(entries, entryToWire(s.schema, e))
		return true
	})
	for _, batch := range splitEntriesForMTU(session, entries, s.cfg.MTU) {
		s.sendMsg(addr, batch)
	}
}

func (s *Service[K, V]) handleEntries(e *wire.Entries) {
	for _, we := range e.Entries {
		entry, err := entryFromWire[K, V](s.schema, we)
		if err != nil {
			log.Warn("reconcile: malformed entry in Entries", "err", err)
			continue
		}
		s.applyRemote(entry)
	}
}

func (s *Service[K, V]) handleEagerUpdate(u *wire.EagerUpdate) {
	entry, err := entryFromWire[K, V](s.schema, u.Entry)
	if err != nil {
		log.Warn("reconcile: malformed EagerUpdate", "err", err)
		return
	}
	s.applyRemote(entry)
}

// applyRemote runs a received entry through the tree's LWW insert and
// keeps liveCount in sync with the outcome. It never re-broadcasts:
// only writes made through the host-facing map API are eagerly
// propagated (§4.E).
func (s *Service[K, V]) applyRemote(e hrtree.Entry[K, V]) {
	prev, had := s.tree.GetEntry(e.Key)
	wasLive := had && !prev.Tombstone
	if e.Tombstone {
		s.tree.InsertTombstone(e.Key, e.Timestamp)
	} else {
		s.tree.Insert(e.Key, e.Value, e.Timestamp)
	}
	cur, _ := s.tree.GetEntry(e.Key)
	if cur.Timestamp != e.Timestamp {
		return
	}
	nowLive := !e.Tombstone
	switch {
	case wasLive && !nowLive:
		s.liveCount--
	case !wasLive && nowLive:
		s.liveCount++
	}
}

