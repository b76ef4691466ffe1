package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
)

// CreateUser adds a directory entry and returns it.
func (db *DB) CreateUser(displayName, avatarURL string) (*User, error) {
	u := &User{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		AvatarURL:   avatarURL,
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (id, display_name, avatar_url, created_at)
		VALUES (?, ?, ?, ?)`,
		u.ID, u.DisplayName, u.AvatarURL, now)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// GetUser returns a single user by ID, or ErrNotFound.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT id, display_name, avatar_url, last_seen_at
		FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.LastSeenAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateLastSeen records the last-seen timestamp for a user.
func (db *DB) UpdateLastSeen(id string, ts int64) error {
	res, err := db.Exec(`UPDATE users SET last_seen_at = ? WHERE id = ?`, ts, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %q: %w", id, apperr.ErrNotFound)
	}
	return nil
}
