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

package config

import (
	"testing"
	"time"
)

func TestDefaultIsValidGivenPeers(t *testing.T) {
	cfg := Default()
	cfg.Peers = []string{"127.0.0.1:7946"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() + explicit peers should validate, got %v", err)
	}
}

func TestDefaultAloneIsInvalid(t *testing.T) {
	if err := Default().Validate(); err == nil {
		t.Fatal("Default() with no peers and no peer_cidr should fail validation")
	}
}

func TestLoadFromTOML(t *testing.T) {
	cfg, err := Load("testdata/config.toml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7777 {
		t.Errorf("Port = %d, want 7777", cfg.Port)
	}
	if len(cfg.Peers) != 2 {
		t.Fatalf("Peers = %v, want 2 entries", cfg.Peers)
	}
	if cfg.ReconcilePeriod != 500*time.Millisecond {
		t.Errorf("ReconcilePeriod = %v, want 500ms", cfg.ReconcilePeriod)
	}
	if cfg.TombstoneGrace != time.Hour {
		t.Errorf("TombstoneGrace = %v, want 1h", cfg.TombstoneGrace)
	}
	if cfg.Fanout != 4 {
		t.Errorf("Fanout = %d, want 4", cfg.Fanout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("testdata/does-not-exist.toml"); err == nil {
		t.Fatal("Load of a missing file should fail")
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Peers = []string{"127.0.0.1:7946"}
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate should reject port 0")
	}
}

func TestValidateRejectsSmallFanout(t *testing.T) {
	cfg := Default()
	cfg.Peers = []string{"127.0.0.1:7946"}
	cfg.Fanout = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate should reject fanout < 2")
	}
}

func TestValidateRequiresMaxCIDRHostsWithPeerCIDR(t *testing.T) {
	cfg := Default()
	cfg.PeerCIDR = "10.0.0.0/24"
	cfg.MaxCIDRHosts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate should require max_cidr_hosts when peer_cidr is set")
	}
}
