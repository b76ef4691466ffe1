package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
)

// DirectKey returns the canonical unordered pair key for a direct channel.
// (A,B) and (B,A) map to the same key.
func DirectKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// CreateGroupChannel creates a named group channel with the given initial
// members.
func (db *DB) CreateGroupChannel(name string, memberIDs []string) (*Channel, error) {
	now := time.Now().UnixMilli()
	ch := &Channel{
		ID:        uuid.New().String(),
		Kind:      ChannelGroup,
		Name:      name,
		CreatedAt: now,
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO channels (id, kind, name, created_at)
		VALUES (?, ?, ?, ?)`,
		ch.ID, ch.Kind, ch.Name, ch.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	for _, uid := range memberIDs {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO channel_members (channel_id, user_id, joined_at)
			VALUES (?, ?, ?)`, ch.ID, uid, now); err != nil {
			return nil, fmt.Errorf("insert membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ch, nil
}

// CreateDirectChannel creates the two-party channel for (a, b) plus both
// membership rows in one transaction. Returns ErrConflict if a concurrent
// request already created the channel for this pair.
func (db *DB) CreateDirectChannel(a, b string) (*Channel, error) {
	now := time.Now().UnixMilli()
	ch := &Channel{
		ID:        uuid.New().String(),
		Kind:      ChannelDirect,
		CreatedAt: now,
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO channels (id, kind, dm_key, created_at)
		VALUES (?, ?, ?, ?)`,
		ch.ID, ch.Kind, DirectKey(a, b), ch.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("direct channel for pair exists: %w", apperr.ErrConflict)
		}
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	for _, uid := range []string{a, b} {
		if _, err := tx.Exec(`
			INSERT INTO channel_members (channel_id, user_id, joined_at)
			VALUES (?, ?, ?)`, ch.ID, uid, now); err != nil {
			return nil, fmt.Errorf("insert membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ch, nil
}

// FindDirectChannel returns the direct channel whose membership set is
// exactly {a, b}, or nil if no such channel exists.
func (db *DB) FindDirectChannel(a, b string) (*Channel, error) {
	var ch Channel
	err := db.QueryRow(`
		SELECT c.id, c.kind, c.name, c.created_at
		FROM channels c
		WHERE c.kind = 'direct'
		  AND (SELECT COUNT(*) FROM channel_members m WHERE m.channel_id = c.id) = 2
		  AND EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_id = ?)
		  AND EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_id = ?)`,
		a, b).
		Scan(&ch.ID, &ch.Kind, &ch.Name, &ch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetDirectChannelByKey returns the direct channel for the unordered pair
// (a, b) regardless of its current membership rows, or ErrNotFound.
func (db *DB) GetDirectChannelByKey(a, b string) (*Channel, error) {
	var ch Channel
	err := db.QueryRow(`
		SELECT id, kind, name, created_at FROM channels WHERE dm_key = ?`,
		DirectKey(a, b)).
		Scan(&ch.ID, &ch.Kind, &ch.Name, &ch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("direct channel %s: %w", DirectKey(a, b), apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// GetChannel returns a channel by ID, or ErrNotFound.
func (db *DB) GetChannel(id string) (*Channel, error) {
	var ch Channel
	err := db.QueryRow(`
		SELECT id, kind, name, created_at FROM channels WHERE id = ?`, id).
		Scan(&ch.ID, &ch.Kind, &ch.Name, &ch.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("channel %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// AddMember adds a user to a channel (idempotent).
func (db *DB) AddMember(channelID, userID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT OR IGNORE INTO channel_members (channel_id, user_id, joined_at)
		VALUES (?, ?, ?)`, channelID, userID, now)
	return err
}

// RemoveMember removes a user from a channel. For direct channels this is
// the per-participant "leave": the channel row persists for the other side.
func (db *DB) RemoveMember(channelID, userID string) error {
	_, err := db.Exec(`
		DELETE FROM channel_members WHERE channel_id = ? AND user_id = ?`,
		channelID, userID)
	return err
}

// IsMember reports whether the user belongs to the channel.
func (db *DB) IsMember(channelID, userID string) (bool, error) {
	var one int
	err := db.QueryRow(`
		SELECT 1 FROM channel_members WHERE channel_id = ? AND user_id = ?`,
		channelID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListMembers returns the member user IDs of a channel.
func (db *DB) ListMembers(channelID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT user_id FROM channel_members WHERE channel_id = ? ORDER BY joined_at ASC`,
		channelID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	// Fallback for wrapped driver errors.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
