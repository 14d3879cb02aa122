package store

import "fmt"

// LIDMapping maps a linked-device LID user to a phone number user.
type LIDMapping struct {
	LID string
	PN  string
}

// SyncLIDMap replaces the lid_map table with the given mappings.
func (db *DB) SyncLIDMap(mappings []LIDMapping) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM lid_map`); err != nil {
		return fmt.Errorf("clear lid_map: %w", err)
	}
	for _, m := range mappings {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO lid_map (lid, pn) VALUES (?, ?)`, m.LID, m.PN); err != nil {
			return fmt.Errorf("insert lid_map %q: %w", m.LID, err)
		}
	}
	return tx.Commit()
}

// ReconcileLIDs folds contacts addressed by LID into their phone number
// contact: messages move over, counters merge, and the LID contact is
// removed. Returns the number of LID contacts merged.
func (db *DB) ReconcileLIDs() (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	steps := []struct {
		name  string
		query string
	}{
		{"ensure PN contacts", `
			INSERT INTO contacts (id, name, push_name, phone_number, profile_image, unread_count, last_message_at, last_seen, updated_at)
			SELECT lm.pn || '@s.whatsapp.net', c.name, c.push_name, '+' || lm.pn, c.profile_image,
				c.unread_count, c.last_message_at, c.last_seen, c.updated_at
			FROM contacts c
			JOIN lid_map lm ON c.id = lm.lid || '@lid'
			WHERE true
			ON CONFLICT(id) DO UPDATE SET
				name = CASE WHEN contacts.name = '' THEN excluded.name ELSE contacts.name END,
				push_name = CASE WHEN contacts.push_name = '' THEN excluded.push_name ELSE contacts.push_name END,
				unread_count = contacts.unread_count + excluded.unread_count,
				last_message_at = MAX(contacts.last_message_at, excluded.last_message_at),
				last_seen = MAX(contacts.last_seen, excluded.last_seen),
				updated_at = excluded.updated_at`},
		{"reassign messages", `
			UPDATE OR IGNORE messages SET
				contact_id = (SELECT lm.pn || '@s.whatsapp.net' FROM lid_map lm WHERE messages.contact_id = lm.lid || '@lid')
			WHERE contact_id IN (SELECT lm.lid || '@lid' FROM lid_map lm)`},
		{"drop duplicate messages", `
			DELETE FROM messages WHERE contact_id IN (SELECT lm.lid || '@lid' FROM lid_map lm)`},
	}
	for _, s := range steps {
		if _, err := tx.Exec(s.query); err != nil {
			return 0, fmt.Errorf("%s: %w", s.name, err)
		}
	}

	result, err := tx.Exec(`DELETE FROM contacts WHERE id IN (SELECT lm.lid || '@lid' FROM lid_map lm)`)
	if err != nil {
		return 0, fmt.Errorf("delete LID contacts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return result.RowsAffected()
}
