package storage

import "time"

// parseSeen decodes the last_seen column. The driver hands DATETIME
// back as RFC 3339 text; rows written by other tools may carry the
// bare SQLite layout instead.
func parseSeen(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

// Profile is the persistent record of a participant's last asserted
// state. It is written on every presence join or update and never
// cleared when the participant goes offline.
type Profile struct {
	PeerID    string
	Label     string
	AvatarRef string
	LastRoom  string
	LastSeen  time.Time
}

// UpsertProfile stores or replaces a participant's cached profile.
func (d *DB) UpsertProfile(p Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO profiles (peer_id, label, avatar_ref, last_room, last_seen)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(peer_id) DO UPDATE SET
			label      = excluded.label,
			avatar_ref = excluded.avatar_ref,
			last_room  = CASE WHEN excluded.last_room = '' THEN profiles.last_room ELSE excluded.last_room END,
			last_seen  = CURRENT_TIMESTAMP`,
		p.PeerID, p.Label, p.AvatarRef, p.LastRoom,
	)
	return err
}

// GetProfile returns the cached profile for a peer, or false if unknown.
func (d *DB) GetProfile(peerID string) (Profile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var p Profile
	var lastSeen string
	err := d.db.QueryRow(`
		SELECT peer_id, label, avatar_ref, last_room, last_seen
		FROM profiles WHERE peer_id = ?`, peerID).
		Scan(&p.PeerID, &p.Label, &p.AvatarRef, &p.LastRoom, &lastSeen)
	if err != nil {
		return Profile{}, false
	}
	p.LastSeen = parseSeen(lastSeen)
	return p, true
}

// Label returns the cached label for a peer, or "" if unknown.
func (d *DB) Label(peerID string) string {
	p, ok := d.GetProfile(peerID)
	if !ok {
		return ""
	}
	return p.Label
}

// RecentProfiles returns up to limit profiles, most recently seen first.
func (d *DB) RecentProfiles(limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = 50
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.Query(`
		SELECT peer_id, label, avatar_ref, last_room, last_seen
		FROM profiles ORDER BY last_seen DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		var lastSeen string
		if err := rows.Scan(&p.PeerID, &p.Label, &p.AvatarRef, &p.LastRoom, &lastSeen); err != nil {
			return nil, err
		}
		p.LastSeen = parseSeen(lastSeen)
		out = append(out, p)
	}
	return out, rows.Err()
}
