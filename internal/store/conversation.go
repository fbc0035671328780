package store

import (
	"database/sql"
	"fmt"
	"time"
)

const conversationCols = `peer, full_name, profile_pic, online, preview_text, preview_sender, preview_seen, unread_count, last_activity`

// inbox order: unread first, newest activity, then peer
const conversationOrder = `ORDER BY (unread_count > 0) DESC, last_activity DESC, peer ASC`

// ReplaceConversations swaps the mirrored inbox for a fresh snapshot.
func (db *DB) ReplaceConversations(list []Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	now := time.Now().UnixMilli()
	for i := range list {
		if err := upsertConversation(tx, &list[i], now); err != nil {
			return fmt.Errorf("insert conversation %q: %w", list[i].Peer, err)
		}
	}
	return tx.Commit()
}

// UpsertConversation inserts or replaces one inbox row.
func (db *DB) UpsertConversation(c *Conversation) error {
	return upsertConversation(db, c, time.Now().UnixMilli())
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertConversation(x execer, c *Conversation, now int64) error {
	_, err := x.Exec(`
		INSERT INTO conversations (`+conversationCols+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(peer) DO UPDATE SET
			full_name = excluded.full_name,
			profile_pic = excluded.profile_pic,
			online = excluded.online,
			preview_text = excluded.preview_text,
			preview_sender = excluded.preview_sender,
			preview_seen = excluded.preview_seen,
			unread_count = excluded.unread_count,
			last_activity = excluded.last_activity,
			updated_at = excluded.updated_at`,
		c.Peer, c.FullName, c.ProfilePic, c.Online, c.PreviewText, c.PreviewSender, c.PreviewSeen,
		c.UnreadCount, c.LastActivity, now)
	return err
}

// ListConversations returns mirrored rows in inbox order, optionally
// filtered by a case-insensitive substring of the peer or full name.
func (db *DB) ListConversations(query string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 200
	}
	q := `SELECT ` + conversationCols + ` FROM conversations`
	var args []any
	if query != "" {
		q += ` WHERE peer LIKE ? ESCAPE '\' OR full_name LIKE ? ESCAPE '\'`
		pat := likePattern(query)
		args = append(args, pat, pat)
	}
	q += " " + conversationOrder + " LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := scanConversation(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConversation returns one row, or nil when the peer is unknown.
func (db *DB) GetConversation(peer string) (*Conversation, error) {
	var c Conversation
	err := scanConversation(db.QueryRow(`SELECT `+conversationCols+` FROM conversations WHERE peer = ?`, peer), &c)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner, c *Conversation) error {
	return s.Scan(&c.Peer, &c.FullName, &c.ProfilePic, &c.Online, &c.PreviewText, &c.PreviewSender,
		&c.PreviewSeen, &c.UnreadCount, &c.LastActivity)
}
