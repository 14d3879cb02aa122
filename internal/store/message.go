package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/waconsole/internal/domain"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// UpsertMessage inserts or updates a message, idempotent on
// (contact_id, msg_id). The owning contact is created when unknown. A new
// inbound message increments the contact's unread counter. It reports
// whether the message was newly inserted.
func (db *DB) UpsertMessage(m *Message) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := upsertMessage(tx, m, time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	return inserted, tx.Commit()
}

// IngestBatch upserts a batch of history messages in one transaction and
// returns how many were new.
func (db *DB) IngestBatch(msgs []*Message) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	inserted := 0
	for _, m := range msgs {
		ok, err := upsertMessage(tx, m, now)
		if err != nil {
			return 0, fmt.Errorf("message %q: %w", m.MsgID, err)
		}
		if ok {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return inserted, nil
}

func upsertMessage(tx execer, m *Message, now int64) (bool, error) {
	if m.Status == "" {
		m.Status = string(defaultStatus(m.FromMe))
	}
	if m.MessageType == "" {
		m.MessageType = "text"
	}

	if _, err := tx.Exec(`
		INSERT INTO contacts (id, phone_number, last_message_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = MAX(contacts.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		m.ContactID, PhoneFromID(m.ContactID), m.Timestamp, now); err != nil {
		return false, fmt.Errorf("upsert contact: %w", err)
	}

	var (
		rowID    int64
		existing string
	)
	err := tx.QueryRow(`SELECT id, status FROM messages WHERE contact_id = ? AND msg_id = ?`,
		m.ContactID, m.MsgID).Scan(&rowID, &existing)
	inserted := errors.Is(err, sql.ErrNoRows)
	switch {
	case inserted:
		res, err := tx.Exec(`
			INSERT INTO messages (contact_id, msg_id, body, message_type, from_me, status, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ContactID, m.MsgID, m.Body, m.MessageType, m.FromMe, m.Status, m.Timestamp, now)
		if err != nil {
			return false, fmt.Errorf("insert message: %w", err)
		}
		if rowID, err = res.LastInsertId(); err != nil {
			return false, err
		}
	case err != nil:
		return false, fmt.Errorf("lookup message: %w", err)
	default:
		status := m.Status
		if m.FromMe && !domain.MessageStatus(existing).Advances(domain.MessageStatus(status)) {
			status = existing
		}
		if _, err := tx.Exec(`UPDATE messages SET body = ?, message_type = ?, status = ?, timestamp = ? WHERE id = ?`,
			m.Body, m.MessageType, status, m.Timestamp, rowID); err != nil {
			return false, fmt.Errorf("update message: %w", err)
		}
		m.Status = status
	}
	m.RowID = rowID

	if len(m.Attachments) > 0 {
		if _, err := tx.Exec(`DELETE FROM attachments WHERE message_id = ?`, rowID); err != nil {
			return false, fmt.Errorf("clear attachments: %w", err)
		}
		for _, a := range m.Attachments {
			if _, err := tx.Exec(`INSERT INTO attachments (message_id, id, type, url, name, size) VALUES (?, ?, ?, ?, ?, ?)`,
				rowID, a.ID, a.Type, a.URL, a.Name, a.Size); err != nil {
				return false, fmt.Errorf("insert attachment %q: %w", a.ID, err)
			}
		}
	}

	if inserted && !m.FromMe {
		if _, err := tx.Exec(`UPDATE contacts SET unread_count = unread_count + 1 WHERE id = ?`, m.ContactID); err != nil {
			return false, fmt.Errorf("bump unread: %w", err)
		}
	}
	return inserted, nil
}

// ListMessages returns a contact's messages in ascending timestamp order,
// ties by message id, with attachments.
func (db *DB) ListMessages(contactID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, contact_id, msg_id, body, message_type, from_me, status, timestamp
		FROM messages
		WHERE contact_id = ?
		ORDER BY timestamp ASC, msg_id ASC`, contactID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	byRow := make(map[int64]int)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.RowID, &m.ContactID, &m.MsgID, &m.Body, &m.MessageType, &m.FromMe, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		byRow[m.RowID] = len(msgs)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return msgs, nil
	}

	arows, err := db.Query(`
		SELECT a.message_id, a.id, a.type, a.url, a.name, a.size
		FROM attachments a
		JOIN messages m ON m.id = a.message_id
		WHERE m.contact_id = ?
		ORDER BY a.message_id, a.rowid`, contactID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = arows.Close() }()
	for arows.Next() {
		var (
			rowID int64
			a     Attachment
		)
		if err := arows.Scan(&rowID, &a.ID, &a.Type, &a.URL, &a.Name, &a.Size); err != nil {
			return nil, err
		}
		if i, ok := byRow[rowID]; ok {
			msgs[i].Attachments = append(msgs[i].Attachments, a)
		}
	}
	return msgs, arows.Err()
}

// ApplyReceipt upgrades the status of an outgoing message. It reports
// whether the stored status changed; unknown messages and non-forward
// transitions are ignored.
func (db *DB) ApplyReceipt(r domain.Receipt) (bool, error) {
	var (
		status string
		fromMe bool
	)
	err := db.QueryRow(`SELECT status, from_me FROM messages WHERE contact_id = ? AND msg_id = ?`,
		r.ContactID, r.MessageID).Scan(&status, &fromMe)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !fromMe || !domain.MessageStatus(status).Advances(r.Status) {
		return false, nil
	}
	_, err = db.Exec(`UPDATE messages SET status = ? WHERE contact_id = ? AND msg_id = ?`,
		string(r.Status), r.ContactID, r.MessageID)
	return err == nil, err
}
