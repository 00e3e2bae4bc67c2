package cache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lfmelo/dealdesk/internal/domain"
)

// ReplaceConversations swaps the cached conversation snapshot for the given
// list in one transaction.
func (db *DB) ReplaceConversations(convs []domain.Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	now := time.Now().UnixMilli()
	for _, c := range convs {
		var lastSeen any
		if c.LastSeen != nil {
			lastSeen = c.LastSeen.UnixMilli()
		}
		if _, err := tx.Exec(`
			INSERT INTO conversations (id, participant_id, participant, last_message, timestamp, unread_count, is_online, last_seen, order_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ParticipantID, c.Participant, c.LastMessage, c.Timestamp.UnixMilli(),
			c.UnreadCount, c.IsOnline, lastSeen, c.OrderID, now); err != nil {
			return fmt.Errorf("insert conversation %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// ListConversations returns the cached conversations in storage order; the
// store sorts at snapshot time.
func (db *DB) ListConversations() ([]domain.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, participant_id, participant, last_message, timestamp, unread_count, is_online, last_seen, order_id
		FROM conversations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		var ts int64
		var lastSeen sql.NullInt64
		if err := rows.Scan(&c.ID, &c.ParticipantID, &c.Participant, &c.LastMessage,
			&ts, &c.UnreadCount, &c.IsOnline, &lastSeen, &c.OrderID); err != nil {
			return nil, err
		}
		c.Timestamp = time.UnixMilli(ts)
		if lastSeen.Valid {
			seen := time.UnixMilli(lastSeen.Int64)
			c.LastSeen = &seen
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
