package store

import (
	"database/sql"
	"fmt"
	"time"
)

const upsertContactSQL = `
	INSERT INTO contacts (id, name, push_name, phone_number, profile_image, last_seen, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
		push_name = CASE WHEN excluded.push_name != '' THEN excluded.push_name ELSE contacts.push_name END,
		phone_number = CASE WHEN excluded.phone_number != '' THEN excluded.phone_number ELSE contacts.phone_number END,
		profile_image = CASE WHEN excluded.profile_image != '' THEN excluded.profile_image ELSE contacts.profile_image END,
		last_seen = MAX(contacts.last_seen, excluded.last_seen),
		updated_at = excluded.updated_at`

// UpsertContact inserts or updates a contact. Empty fields never erase
// known values.
func (db *DB) UpsertContact(c *Contact) error {
	_, err := db.Exec(upsertContactSQL, contactArgs(c, time.Now().UnixMilli())...)
	return err
}

// BulkUpsertContacts inserts or updates multiple contacts in a single transaction.
func (db *DB) BulkUpsertContacts(contacts []Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for i := range contacts {
		if _, err := tx.Exec(upsertContactSQL, contactArgs(&contacts[i], now)...); err != nil {
			return fmt.Errorf("upsert contact %q: %w", contacts[i].ID, err)
		}
	}
	return tx.Commit()
}

func contactArgs(c *Contact, now int64) []any {
	phone := c.PhoneNumber
	if phone == "" {
		phone = PhoneFromID(c.ID)
	}
	return []any{c.ID, c.Name, c.PushName, phone, c.ProfileImage, c.LastSeen, now}
}

// GetContact returns a contact by id, or nil when unknown.
func (db *DB) GetContact(id string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`
		SELECT id, name, push_name, phone_number, profile_image, unread_count, last_message_at, last_seen
		FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.PushName, &c.PhoneNumber, &c.ProfileImage, &c.UnreadCount, &c.LastMessageAt, &c.LastSeen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns every contact with its most recent message, most
// recent activity first. Contacts without messages sort last, by display
// name. Unresolved LID contacts are hidden.
func (db *DB) ListContacts() ([]Contact, error) {
	rows, err := db.Query(`
		SELECT c.id, c.name, c.push_name, c.phone_number, c.profile_image,
			c.unread_count, c.last_message_at, c.last_seen,
			m.msg_id, m.body, m.message_type, m.from_me, m.status, m.timestamp
		FROM contacts c
		LEFT JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE contact_id = c.id
			ORDER BY timestamp DESC, msg_id DESC
			LIMIT 1)
		WHERE c.id NOT LIKE '%@lid'
		ORDER BY c.last_message_at DESC,
			COALESCE(NULLIF(c.name,''), NULLIF(c.push_name,''), NULLIF(c.phone_number,''), c.id) ASC,
			c.id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var (
			c      Contact
			msgID  sql.NullString
			body   sql.NullString
			kind   sql.NullString
			fromMe sql.NullBool
			status sql.NullString
			ts     sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.PushName, &c.PhoneNumber, &c.ProfileImage,
			&c.UnreadCount, &c.LastMessageAt, &c.LastSeen,
			&msgID, &body, &kind, &fromMe, &status, &ts); err != nil {
			return nil, err
		}
		if msgID.Valid {
			c.Last = &Message{
				ContactID:   c.ID,
				MsgID:       msgID.String,
				Body:        body.String,
				MessageType: kind.String,
				FromMe:      fromMe.Bool,
				Status:      status.String,
				Timestamp:   ts.Int64,
			}
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// MarkRead resets the contact's unread counter.
func (db *DB) MarkRead(contactID string) error {
	_, err := db.Exec(`UPDATE contacts SET unread_count = 0, updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), contactID)
	return err
}
