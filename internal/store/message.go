package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
)

// CreateMessage persists a new message and returns it with its
// server-assigned identity and timestamp. parentMessageID may be empty for a
// top-level message; attachment may be nil.
func (db *DB) CreateMessage(channelID, senderID, content, parentMessageID string, att *Attachment) (*Message, error) {
	if parentMessageID != "" {
		parent, err := db.GetMessage(parentMessageID)
		if err != nil {
			return nil, err
		}
		// Replies always hang off a top-level message; no nested threads.
		if parent.ParentMessageID != "" {
			return nil, fmt.Errorf("parent %q is itself a reply: %w", parentMessageID, apperr.ErrInvalidArgument)
		}
		if parent.ChannelID != channelID {
			return nil, fmt.Errorf("parent belongs to another channel: %w", apperr.ErrInvalidArgument)
		}
	}

	m := &Message{
		ID:              uuid.New().String(),
		ChannelID:       channelID,
		SenderID:        senderID,
		Content:         content,
		ParentMessageID: parentMessageID,
		Attachment:      att,
		CreatedAt:       time.Now().UnixMilli(),
	}

	var fileURL, fileName, fileType any
	var fileSize any
	if att != nil {
		fileURL, fileName, fileType, fileSize = att.FileURL, att.FileName, att.FileType, att.FileSize
	}
	_, err := db.Exec(`
		INSERT INTO messages (id, channel_id, sender_id, content, parent_message_id, file_url, file_name, file_type, file_size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChannelID, m.SenderID, m.Content, nullIfEmpty(m.ParentMessageID),
		fileURL, fileName, fileType, fileSize, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// GetMessage returns a single message by ID, or ErrNotFound.
func (db *DB) GetMessage(id string) (*Message, error) {
	row := db.QueryRow(`
		SELECT id, channel_id, sender_id, content, parent_message_id, file_url, file_name, file_type, file_size, created_at
		FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %q: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns top-level messages for a channel using keyset
// pagination by created_at, newest first.
func (db *DB) ListMessages(channelID string, beforeMs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeMs <= 0 {
		beforeMs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, channel_id, sender_id, content, parent_message_id, file_url, file_name, file_type, file_size, created_at
		FROM messages
		WHERE channel_id = ? AND parent_message_id IS NULL AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?`, channelID, beforeMs, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

// ListThreadReplies returns the replies to a top-level message, oldest first.
func (db *DB) ListThreadReplies(parentMessageID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, channel_id, sender_id, content, parent_message_id, file_url, file_name, file_type, file_size, created_at
		FROM messages
		WHERE parent_message_id = ?
		ORDER BY created_at ASC
		LIMIT ?`, parentMessageID, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var parent, fileURL, fileName, fileType sql.NullString
	var fileSize sql.NullInt64
	if err := row.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.Content, &parent,
		&fileURL, &fileName, &fileType, &fileSize, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.ParentMessageID = parent.String
	if fileURL.Valid {
		m.Attachment = &Attachment{
			FileURL:  fileURL.String,
			FileName: fileName.String,
			FileType: fileType.String,
			FileSize: fileSize.Int64,
		}
	}
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
