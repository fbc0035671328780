package store

import "time"

// QueueOutbox adds a message to the send outbox. Queuing the same client id
// twice is a no-op.
func (db *DB) QueueOutbox(e *OutboxEntry) error {
	now := time.Now().UnixMilli()
	created := e.CreatedAt
	if created == 0 {
		created = now
	}
	_, err := db.Exec(`
		INSERT INTO outbox (client_id, peer, sender, body, temp_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(client_id) DO NOTHING`,
		e.ClientID, e.Peer, e.Sender, e.Body, e.TempID, created, now)
	return err
}

// MarkOutboxSending records that an entry was written to the channel.
func (db *DB) MarkOutboxSending(clientID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sending', updated_at = ? WHERE client_id = ? AND status = 'queued'`, now, clientID)
	return err
}

// MarkOutboxSent records the server confirmation for an entry.
func (db *DB) MarkOutboxSent(clientID string, serverID int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', server_id = ?, updated_at = ? WHERE client_id = ?`, serverID, now, clientID)
	return err
}

// PendingOutbox returns queued entries for peer in creation order. An empty
// peer returns every queued entry.
func (db *DB) PendingOutbox(peer string) ([]OutboxEntry, error) {
	q := `
		SELECT id, client_id, peer, sender, body, temp_id, status, server_id, created_at
		FROM outbox WHERE status = 'queued'`
	var args []any
	if peer != "" {
		q += " AND peer = ?"
		args = append(args, peer)
	}
	q += " ORDER BY created_at ASC, id ASC"

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Peer, &e.Sender, &e.Body, &e.TempID, &e.Status, &e.ServerID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PruneOutbox deletes confirmed entries older than the cutoff.
func (db *DB) PruneOutbox(before time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM outbox WHERE status = 'sent' AND updated_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
