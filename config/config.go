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

// Package config loads the TOML configuration for a reconcile.Service
// node, the way cmd/geth loads its node configuration: a plain struct
// with toml tags, a documented default, and a Validate pass that turns
// nonsensical values into a startup error instead of a runtime panic.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds everything a node needs to join the gossip mesh and run
// the anti-entropy loop (§5, §7).
type Config struct {
	// ListenAddr is the local UDP address the node binds, e.g. "0.0.0.0".
	ListenAddr string `toml:"listen_addr"`
	// Port is the local UDP port.
	Port int `toml:"port"`

	// Peers is an explicit peer list, "host:port" per entry. Either
	// Peers or PeerCIDR must be set.
	Peers []string `toml:"peers"`
	// PeerCIDR enumerates candidate peers from a CIDR block instead of
	// an explicit list (§5 "peer discovery"), capped at MaxCIDRHosts.
	PeerCIDR string `toml:"peer_cidr"`
	// PeerPort is the UDP port assumed for every host enumerated from
	// PeerCIDR.
	PeerPort int `toml:"peer_port"`
	// MaxCIDRHosts bounds how many addresses PeerCIDR may expand to,
	// so a misconfigured /8 doesn't try to gossip with sixteen million
	// hosts.
	MaxCIDRHosts int `toml:"max_cidr_hosts"`

	// ReconcilePeriod is the interval between unprompted HashRange
	// probes sent to a randomly chosen peer (§4.D "periodic fallback").
	ReconcilePeriod time.Duration `toml:"reconcile_period"`
	// SessionTimeout bounds how long a reconciliation round may stay
	// open awaiting the peer's next message before it is abandoned
	// (§4.D "session").
	SessionTimeout time.Duration `toml:"session_timeout"`
	// Fanout is the branching factor used when a mismatched HashRange
	// is partitioned into a HashRangeFanout (§4.D).
	Fanout int `toml:"fanout"`
	// DirectExchangeMaxEntries is the largest entry count a mismatched
	// range may hold before the diff algorithm skips fanout and
	// requests the entries directly (§4.D "small-range short-circuit").
	DirectExchangeMaxEntries int `toml:"direct_exchange_max_entries"`
	// MTU bounds the size of a single outgoing datagram; larger
	// Entries batches are split across multiple datagrams (§4.C).
	MTU int `toml:"mtu"`

	// TombstoneGrace is how long a deletion is retained as a tombstone
	// before the periodic GC sweep may purge it, bounding how late a
	// peer can rejoin and still observe the deletion (open question,
	// resolved in DESIGN.md under package config).
	TombstoneGrace time.Duration `toml:"tombstone_grace"`
	// TombstoneGCPeriod is the interval between GC sweeps.
	TombstoneGCPeriod time.Duration `toml:"tombstone_gc_period"`

	// TreeOrder overrides hrtree.DefaultOrder; zero means use the
	// default.
	TreeOrder int `toml:"tree_order"`

	// PeerCacheSize bounds the LRU used for soft peer deprioritization
	// (§5 "soft deprioritization, never removal").
	PeerCacheSize int `toml:"peer_cache_size"`
}

// Default returns the configuration a node runs with if nothing in a
// loaded file overrides it.
func Default() Config {
	return Config{
		ListenAddr:               "0.0.0.0",
		Port:                     7946,
		PeerPort:                 7946,
		MaxCIDRHosts:             1024,
		ReconcilePeriod:          2 * time.Second,
		SessionTimeout:           5 * time.Second,
		Fanout:                   8,
		DirectExchangeMaxEntries: 64,
		MTU:                      1400,
		TombstoneGrace:           24 * time.Hour,
		TombstoneGCPeriod:        10 * time.Minute,
		TreeOrder:                32,
		PeerCacheSize:            256,
	}
}

// Load reads a TOML file at path into Default()'s values, then
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration inconsistency found.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if len(c.Peers) == 0 && c.PeerCIDR == "" {
		return fmt.Errorf("config: either peers or peer_cidr must be set")
	}
	if c.PeerCIDR != "" && c.MaxCIDRHosts <= 0 {
		return fmt.Errorf("config: max_cidr_hosts must be positive when peer_cidr is set")
	}
	if c.ReconcilePeriod <= 0 {
		return fmt.Errorf("config: reconcile_period must be positive")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("config: session_timeout must be positive")
	}
	if c.Fanout < 2 {
		return fmt.Errorf("config: fanout must be at least 2, got %d", c.Fanout)
	}
	if c.MTU < 64 {
		return fmt.Errorf("config: mtu too small: %d", c.MTU)
	}
	if c.DirectExchangeMaxEntries < 0 {
		return fmt.Errorf("config: direct_exchange_max_entries must be non-negative")
	}
	if c.TombstoneGrace < 0 {
		return fmt.Errorf("config: tombstone_grace must be non-negative")
	}
	if c.TombstoneGCPeriod <= 0 {
		return fmt.Errorf("config: tombstone_gc_period must be positive")
	}
	if c.TreeOrder != 0 && c.TreeOrder < 4 {
		return fmt.Errorf("config: tree_order must be at least 4, got %d", c.TreeOrder)
	}
	return nil
}
