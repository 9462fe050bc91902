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
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
)

// fakeAddr identifies a node on a fakeNetwork by name.
type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

type fakePacket struct {
	payload []byte
	from    net.Addr
}

// fakeConn is an in-memory PacketConn used to drive reconcile.Service
// end to end in tests without a real UDP socket. lossRate, when set,
// drops a fraction of outgoing datagrams to exercise §4.E's "UDP loss
// is expected" path.
type fakeConn struct {
	addr fakeAddr
	net  *fakeNetwork
	in   chan fakePacket

	mu       sync.Mutex
	closed   bool
	closedCh chan struct{}
	lossRate float64
	rng      *rand.Rand
}

func (c *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case pkt := <-c.in:
		n := copy(p, pkt.payload)
		return n, pkt.from, nil
	case <-c.closedCh:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	if c.lossRate > 0 && c.rng.Float64() < c.lossRate {
		return len(p), nil
	}
	dst, ok := c.net.lookup(addr.String())
	if !ok {
		return 0, fmt.Errorf("fakenet: unknown peer %s", addr)
	}
	cp := append([]byte(nil), p...)
	select {
	case dst.in <- fakePacket{payload: cp, from: c.addr}:
	default:
	}
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closedCh)
	}
	return nil
}

// fakeNetwork is a name-addressed registry of fakeConns.
type fakeNetwork struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{conns: make(map[string]*fakeConn)}
}

func (n *fakeNetwork) newConn(name string) *fakeConn {
	c := &fakeConn{
		addr:     fakeAddr(name),
		net:      n,
		in:       make(chan fakePacket, 1024),
		closedCh: make(chan struct{}),
		rng:      rand.New(rand.NewSource(1)),
	}
	n.mu.Lock()
	n.conns[name] = c
	n.mu.Unlock()
	return c
}

func (n *fakeNetwork) lookup(name string) (*fakeConn, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.conns[name]
	return c, ok
}
