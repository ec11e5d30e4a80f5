package storage

import (
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestParseSeenLayouts(t *testing.T) {
	got := parseSeen("2026-08-31T20:34:48Z")
	want := time.Date(2026, 8, 31, 20, 34, 48, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("rfc3339 parsed as %v, want %v", got, want)
	}
	if parseSeen("2026-08-31 20:34:48").IsZero() {
		t.Fatalf("bare sqlite layout not parsed")
	}
	if !parseSeen("garbage").IsZero() {
		t.Fatalf("garbage parsed to a nonzero time")
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := openTestDB(t)

	if err := db.UpsertProfile(Profile{PeerID: "peer-a", Label: "alice", LastRoom: "lobby"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	p, ok := db.GetProfile("peer-a")
	if !ok {
		t.Fatalf("profile not found")
	}
	if p.Label != "alice" || p.LastRoom != "lobby" {
		t.Fatalf("profile = %+v", p)
	}
	if p.LastSeen.IsZero() {
		t.Fatalf("last_seen not set")
	}

	if _, ok := db.GetProfile("ghost"); ok {
		t.Fatalf("unknown peer returned a profile")
	}
}

func TestUpsertReplacesButKeepsRoom(t *testing.T) {
	db := openTestDB(t)

	if err := db.UpsertProfile(Profile{PeerID: "peer-a", Label: "alice", LastRoom: "lobby"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// A later assertion without a room keeps the old one.
	if err := db.UpsertProfile(Profile{PeerID: "peer-a", Label: "alice (afk)"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	p, _ := db.GetProfile("peer-a")
	if p.Label != "alice (afk)" {
		t.Fatalf("label = %q, want updated", p.Label)
	}
	if p.LastRoom != "lobby" {
		t.Fatalf("last_room = %q, want preserved lobby", p.LastRoom)
	}

	// An assertion with a room replaces it.
	if err := db.UpsertProfile(Profile{PeerID: "peer-a", Label: "alice", LastRoom: "games"}); err != nil {
		t.Fatalf("third upsert: %v", err)
	}
	if p, _ := db.GetProfile("peer-a"); p.LastRoom != "games" {
		t.Fatalf("last_room = %q, want games", p.LastRoom)
	}
}

func TestLabel(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertProfile(Profile{PeerID: "peer-a", Label: "alice"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if got := db.Label("peer-a"); got != "alice" {
		t.Fatalf("Label = %q, want alice", got)
	}
	if got := db.Label("ghost"); got != "" {
		t.Fatalf("Label for unknown peer = %q, want empty", got)
	}
}

func TestRecentProfilesHonorsLimit(t *testing.T) {
	db := openTestDB(t)
	ids := []string{"peer-a", "peer-b", "peer-c"}
	for _, id := range ids {
		if err := db.UpsertProfile(Profile{PeerID: id, Label: id}); err != nil {
			t.Fatalf("UpsertProfile %s: %v", id, err)
		}
	}

	all, err := db.RecentProfiles(10)
	if err != nil {
		t.Fatalf("RecentProfiles: %v", err)
	}
	if len(all) != len(ids) {
		t.Fatalf("profiles = %d, want %d", len(all), len(ids))
	}
	seen := make(map[string]bool)
	for _, p := range all {
		seen[p.PeerID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Fatalf("missing profile %s", id)
		}
	}

	limited, err := db.RecentProfiles(2)
	if err != nil {
		t.Fatalf("RecentProfiles limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited profiles = %d, want 2", len(limited))
	}
}

func TestOpenIsIdempotentPerDir(t *testing.T) {
	dir := t.TempDir()
	db1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := db1.UpsertProfile(Profile{PeerID: "peer-a", Label: "alice"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening finds the persisted row.
	db2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()
	if _, ok := db2.GetProfile("peer-a"); !ok {
		t.Fatalf("profile did not survive reopen")
	}
}
