package store

import (
	"fmt"
	"strconv"
	"time"
)

const messageCols = `id, peer, msg_key, server_id, temp_id, client_id, sender, receiver, body, status, created_at`

// statusRank orders delivery states so upserts never move a message back.
const statusRank = `CASE %s WHEN 'seen' THEN 2 WHEN 'sent' THEN 1 ELSE 0 END`

// MessageKey returns the row key for a message.
func MessageKey(serverID int64, clientID string) string {
	if serverID != 0 {
		return "s:" + strconv.FormatInt(serverID, 10)
	}
	return "c:" + clientID
}

// UpsertMessage inserts or updates a message (idempotent on peer + key).
// Confirming a pending message replaces its client-keyed row.
func (db *DB) UpsertMessage(m *Message) error {
	return db.UpsertMessages([]*Message{m})
}

// UpsertMessages upserts a batch in one transaction.
func (db *DB) UpsertMessages(msgs []*Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := `
		INSERT INTO messages (peer, msg_key, server_id, temp_id, client_id, sender, receiver, body, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(peer, msg_key) DO UPDATE SET
			temp_id = excluded.temp_id,
			client_id = CASE WHEN excluded.client_id != '' THEN excluded.client_id ELSE messages.client_id END,
			body = excluded.body,
			status = CASE WHEN ` + fmt.Sprintf(statusRank, "excluded.status") + ` > ` + fmt.Sprintf(statusRank, "messages.status") + `
				THEN excluded.status ELSE messages.status END,
			created_at = CASE WHEN excluded.created_at != 0 THEN excluded.created_at ELSE messages.created_at END`

	for _, m := range msgs {
		m.Key = MessageKey(m.ServerID, m.ClientID)
		if m.CreatedAt == 0 {
			m.CreatedAt = time.Now().UnixMilli()
		}
		if m.ServerID != 0 && m.ClientID != "" {
			if _, err := tx.Exec(`DELETE FROM messages WHERE peer = ? AND msg_key = ?`,
				m.Peer, MessageKey(0, m.ClientID)); err != nil {
				return fmt.Errorf("drop pending row: %w", err)
			}
		}
		if _, err := tx.Exec(upsert, m.Peer, m.Key, m.ServerID, m.TempID, m.ClientID, m.Sender, m.Receiver,
			m.Body, m.Status, m.CreatedAt); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.Key, err)
		}
	}
	return tx.Commit()
}

// ListMessages returns up to limit messages exchanged with peer that were
// created before beforeMs, oldest first.
func (db *DB) ListMessages(peer string, beforeMs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeMs <= 0 {
		beforeMs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT `+messageCols+`
		FROM messages
		WHERE peer = ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, peer, beforeMs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkMessageSeen sets a confirmed message to seen.
func (db *DB) MarkMessageSeen(peer string, serverID int64) error {
	_, err := db.Exec(`UPDATE messages SET status = 'seen' WHERE peer = ? AND msg_key = ?`,
		peer, MessageKey(serverID, ""))
	return err
}

func scanMessage(s scanner, m *Message) error {
	return s.Scan(&m.ID, &m.Peer, &m.Key, &m.ServerID, &m.TempID, &m.ClientID, &m.Sender, &m.Receiver,
		&m.Body, &m.Status, &m.CreatedAt)
}
