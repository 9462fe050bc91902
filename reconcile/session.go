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
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
)

// session tracks one in-flight recursive diff round initiated by this
// instance. Only the initiator's side needs state — responders reply
// to each message statelessly and simply echo the session id (§4.D).
type session struct {
	peer     net.Addr
	deadline mclock.AbsTime
}

// sessionTable allocates session identifiers and answers whether a
// (session, peer) pair is still live, so that stale or spoofed
// responses are dropped rather than applied (§4.D, §7 "StaleSession").
type sessionTable struct {
	clk     mclock.Clock
	timeout time.Duration

	next  uint64
	table map[uint64]session
}

func newSessionTable(clk mclock.Clock, timeout time.Duration) *sessionTable {
	return &sessionTable{clk: clk, timeout: timeout, next: 1, table: make(map[uint64]session)}
}

// New allocates a fresh session for a round initiated against peer.
func (t *sessionTable) New(peer net.Addr) uint64 {
	id := t.next
	t.next++
	t.table[id] = session{peer: peer, deadline: t.clk.Now().Add(t.timeout)}
	return id
}

// Valid reports whether id is a live session started against peer.
func (t *sessionTable) Valid(id uint64, peer net.Addr) bool {
	s, ok := t.table[id]
	if !ok || s.peer.String() != peer.String() {
		return false
	}
	return t.clk.Now() < s.deadline
}

// Touch extends id's deadline, keeping a session alive across the
// multiple rounds a recursive fanout may take.
func (t *sessionTable) Touch(id uint64, peer net.Addr) {
	s, ok := t.table[id]
	if !ok || s.peer.String() != peer.String() {
		return
	}
	s.deadline = t.clk.Now().Add(t.timeout)
	t.table[id] = s
}

// Prune drops every session past its deadline and reports how many
// were removed.
func (t *sessionTable) Prune() int {
	now := t.clk.Now()
	pruned := 0
	for id, s := range t.table {
		if now >= s.deadline {
			delete(t.table, id)
			pruned++
		}
	}
	return pruned
}

// Len reports the number of currently tracked sessions, live or not
// yet pruned.
func (t *sessionTable) Len() int { return len(t.table) }
