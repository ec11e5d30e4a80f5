package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureCreatesThenLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, created, err := Ensure(path)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if !created {
		t.Fatalf("first Ensure did not create the file")
	}
	if cfg.Presence.HeartbeatSec != Default().Presence.HeartbeatSec {
		t.Fatalf("created config is not the default")
	}

	// Second run loads the existing file.
	again, created, err := Ensure(path)
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if created {
		t.Fatalf("second Ensure recreated the file")
	}
	if again.Identity.KeyFile != cfg.Identity.KeyFile {
		t.Fatalf("reloaded config differs: %+v", again)
	}
}

func TestLoadAppliesDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"profile":{"label":"alice"}}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Profile.Label != "alice" {
		t.Fatalf("label = %q, want alice", cfg.Profile.Label)
	}
	if cfg.Presence.TTLSec != Default().Presence.TTLSec {
		t.Fatalf("missing field not defaulted: %+v", cfg.Presence)
	}
}

func TestLoadStripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"profile":{"label":"bom"}}`)...)
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Profile.Label != "bom" {
		t.Fatalf("label = %q, want bom", cfg.Profile.Label)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty key file", func(c *Config) { c.Identity.KeyFile = " " }},
		{"port out of range", func(c *Config) { c.P2P.ListenPort = 70000 }},
		{"empty mdns tag", func(c *Config) { c.P2P.MdnsTag = "" }},
		{"zero ttl", func(c *Config) { c.Presence.TTLSec = 0 }},
		{"zero heartbeat", func(c *Config) { c.Presence.HeartbeatSec = 0 }},
		{"heartbeat >= ttl", func(c *Config) { c.Presence.HeartbeatSec = c.Presence.TTLSec }},
		{"bad stun scheme", func(c *Config) { c.Media.STUNServers = []string{"turn:example.com:3478"} }},
		{"bad console addr", func(c *Config) { c.Console.HTTPAddr = "no-port" }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: Validate accepted the config", tc.name)
		}
	}
}

func TestSaveRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Presence.TTLSec = 0
	if err := Save(path, cfg); err == nil {
		t.Fatalf("Save accepted an invalid config")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("invalid config was written anyway")
	}
}
