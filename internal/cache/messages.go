package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lfmelo/dealdesk/internal/domain"
)

// ReplaceMessages swaps the cached history of one conversation.
func (db *DB) ReplaceMessages(conversationID string, msgs []domain.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	now := time.Now().UnixMilli()
	for _, m := range msgs {
		attachments, err := json.Marshal(m.Attachments)
		if err != nil {
			return fmt.Errorf("encode attachments: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, id, text, sender, sender_id, timestamp, is_own, status, attachments, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			conversationID, m.ID, m.Text, m.Sender, m.SenderID, m.Timestamp.UnixMilli(),
			m.IsOwn, string(m.Status), string(attachments), now); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// ListMessages returns the cached history of one conversation ordered by
// timestamp ascending.
func (db *DB) ListMessages(conversationID string) ([]domain.Message, error) {
	rows, err := db.Query(`
		SELECT id, text, sender, sender_id, timestamp, is_own, status, attachments
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []domain.Message
	for rows.Next() {
		m := domain.Message{ConversationID: conversationID}
		var ts int64
		var status, attachments string
		if err := rows.Scan(&m.ID, &m.Text, &m.Sender, &m.SenderID, &ts, &m.IsOwn, &status, &attachments); err != nil {
			return nil, err
		}
		m.Timestamp = time.UnixMilli(ts)
		m.Status = domain.MessageStatus(status)
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments for %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
