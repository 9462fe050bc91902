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
	"math/rand"
	"net"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// MaxCIDRHosts bounds how many addresses FromCIDR will enumerate.
// Prefixes that would expand past this are rejected so a misconfigured
// wide network never produces a peer set sized in the millions (§9
// "Peer discovery over a CIDR").
const MaxCIDRHosts = 512

// PeerSet is the static peer network a Service gossips with. It is
// immutable after construction except for the soft deprioritization
// bookkeeping (§5 "peer set ... immutable after startup", §9 "soft
// round-robin").
type PeerSet struct {
	mu   sync.Mutex
	addr []net.Addr
	self string

	bad *lru.Cache
	rng *rand.Rand
}

// NewPeerSet builds a PeerSet from an explicit address list, excluding
// self (by string form) and deduplicating. cacheSize bounds the LRU
// used to soft-deprioritize unresponsive peers.
func NewPeerSet(addrs []net.Addr, self net.Addr, cacheSize int) (*PeerSet, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("reconcile: peer cache: %w", err)
	}
	p := &PeerSet{bad: cache, rng: rand.New(rand.NewSource(1))}
	if self != nil {
		p.self = self.String()
	}
	seen := map[string]bool{}
	for _, a := range addrs {
		if a.String() == p.self || seen[a.String()] {
			continue
		}
		seen[a.String()] = true
		p.addr = append(p.addr, a)
	}
	return p, nil
}

// FromList resolves each "host:port" string as a UDP address and
// builds a PeerSet from the result.
func FromList(hostports []string, self net.Addr, cacheSize int) (*PeerSet, error) {
	addrs := make([]net.Addr, 0, len(hostports))
	for _, hp := range hostports {
		a, err := net.ResolveUDPAddr("udp", hp)
		if err != nil {
			return nil, fmt.Errorf("reconcile: resolving peer %q: %w", hp, err)
		}
		addrs = append(addrs, a)
	}
	return NewPeerSet(addrs, self, cacheSize)
}

// FromCIDR enumerates every host address in cidr on port, excluding
// self. It refuses to expand a prefix wider than maxHosts (the caller
// should fall back to an explicit peer list for those), per §9.
func FromCIDR(cidr string, port int, self net.Addr, maxHosts, cacheSize int) (*PeerSet, error) {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("reconcile: invalid peer_cidr %q: %w", cidr, err)
	}
	if maxHosts <= 0 || maxHosts > MaxCIDRHosts {
		maxHosts = MaxCIDRHosts
	}

	var addrs []net.Addr
	for cur := ip.Mask(ipnet.Mask); ipnet.Contains(cur); cur = nextIP(cur) {
		if len(addrs) >= maxHosts {
			return nil, fmt.Errorf("reconcile: peer_cidr %q expands past %d hosts, use an explicit peer list", cidr, maxHosts)
		}
		addrs = append(addrs, &net.UDPAddr{IP: append(net.IP(nil), cur...), Port: port})
	}
	return NewPeerSet(addrs, self, cacheSize)
}

func nextIP(ip net.IP) net.IP {
	out := append(net.IP(nil), ip...)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			break
		}
	}
	return out
}

// Len reports the number of known peers.
func (p *PeerSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.addr)
}

// All returns a snapshot of every known peer address.
func (p *PeerSet) All() []net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]net.Addr, len(p.addr))
	copy(out, p.addr)
	return out
}

// Random picks one peer uniformly at random, preferring a peer that
// hasn't recently been deprioritized. Deprioritized peers are never
// excluded outright — UDP loss is expected and a peer that looked dead
// a minute ago may answer now (§5 "not removed ... may be
// deprioritized").
func (p *PeerSet) Random() (net.Addr, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.addr) == 0 {
		return nil, false
	}
	pick := p.addr[p.rng.Intn(len(p.addr))]
	if p.bad.Contains(pick.String()) && len(p.addr) > 1 {
		if alt := p.addr[p.rng.Intn(len(p.addr))]; !p.bad.Contains(alt.String()) {
			return alt, true
		}
	}
	return pick, true
}

// Deprioritize marks addr as recently unresponsive, making it less
// likely (not impossible) to be chosen by Random until it ages out of
// the LRU.
func (p *PeerSet) Deprioritize(addr net.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bad.Add(addr.String(), struct{}{})
}
